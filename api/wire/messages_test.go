package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestCodec_ListWithNegativeValues(t *testing.T) {
	in := &ListSequencesResponse{Sequences: []*SequenceInfo{
		{ID: 1, Name: "a", Increment: -3, MinValue: -90, MaxValue: -1, Start: -1, Current: -7},
		{ID: 2, Name: "b", Increment: 1, MaxValue: 1 << 62, Cycle: true},
	}}
	b, err := Codec{}.Marshal(in)
	require.NoError(t, err)

	out := &ListSequencesResponse{}
	require.NoError(t, Codec{}.Unmarshal(b, out))
	assert.Equal(t, in, out)
}

func TestCodec_SkipsUnknownFields(t *testing.T) {
	b := (&NameRequest{Session: "s", Name: "n"}).Marshal()
	b = protowire.AppendTag(b, 99, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 42)
	b = protowire.AppendTag(b, 98, protowire.BytesType)
	b = protowire.AppendString(b, "future")

	var got NameRequest
	require.NoError(t, got.Unmarshal(b))
	assert.Equal(t, NameRequest{Session: "s", Name: "n"}, got)
}

func TestCodec_RejectsTruncatedInput(t *testing.T) {
	b := (&SetValRequest{Session: "session", Name: "n", Value: -5}).Marshal()

	var got SetValRequest
	err := got.Unmarshal(b[:3])
	require.ErrorIs(t, err, ErrMalformed)
}

func TestCodec_RejectsForeignTypes(t *testing.T) {
	_, err := Codec{}.Marshal("not a message")
	require.Error(t, err)
	require.Error(t, Codec{}.Unmarshal(nil, new(int)))
}

func TestCodec_EmptyMessageDecodesToZero(t *testing.T) {
	m := CreateSequenceRequest{Name: "stale", Cycle: true}
	require.NoError(t, m.Unmarshal(nil))
	assert.Equal(t, CreateSequenceRequest{}, m)
}
