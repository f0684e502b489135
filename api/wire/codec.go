// Package wire defines the messages of the SequenceService gRPC API and
// their protobuf wire encoding, written directly with protowire. Field
// numbers and types follow api/proto/seqdb/v1/sequence.proto.
package wire

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Message is a request or response of the service.
type Message interface {
	Marshal() []byte
	Unmarshal(b []byte) error
}

// CodecName is registered with gRPC as the content subtype.
const CodecName = "proto"

// Codec is a gRPC codec for wire messages.
type Codec struct{}

func (Codec) Name() string { return CodecName }

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, errors.Newf("wire: cannot marshal %T", v)
	}
	return m.Marshal(), nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return errors.Newf("wire: cannot unmarshal into %T", v)
	}
	return m.Unmarshal(data)
}

// ErrMalformed is returned for bytes that are not a valid message.
var ErrMalformed = errors.New("wire: malformed message")

// field is one decoded field: v for varints, raw for length-delimited.
type field struct {
	num protowire.Number
	v   uint64
	raw []byte
}

// each walks the fields of b. Fixed-width fields are skipped.
func each(b []byte, fn func(f field)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return errors.Wrap(ErrMalformed, protowire.ParseError(m).Error())
			}
			fn(field{num: num, v: v})
			b = b[m:]
		case protowire.BytesType:
			raw, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return errors.Wrap(ErrMalformed, protowire.ParseError(m).Error())
			}
			fn(field{num: num, raw: raw})
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return errors.Wrap(ErrMalformed, protowire.ParseError(m).Error())
			}
			b = b[m:]
		}
	}
	return nil
}

// Zero values are omitted, as proto3 does.

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}
