package catalog

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"seqdb/domain/sequence"
)

// Field numbers of the catalog row message.
const (
	fieldID        protowire.Number = 1
	fieldScope     protowire.Number = 2
	fieldName      protowire.Number = 3
	fieldIncrement protowire.Number = 4
	fieldMax       protowire.Number = 5
	fieldMin       protowire.Number = 6
	fieldStart     protowire.Number = 7
	fieldCycle     protowire.Number = 8
	fieldCacheSize protowire.Number = 9
	fieldCurrent   protowire.Number = 10
)

// ErrCorruptRow is returned for bytes that do not decode as a catalog row.
var ErrCorruptRow = errors.New("catalog: corrupt row")

// Encode serializes a catalog row in protobuf wire format.
func Encode(r sequence.Row) []byte {
	b := make([]byte, 0, 64+len(r.Name))
	b = protowire.AppendTag(b, fieldID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.ID))
	b = protowire.AppendTag(b, fieldScope, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.ScopeID))
	b = protowire.AppendTag(b, fieldName, protowire.BytesType)
	b = protowire.AppendString(b, r.Name)
	b = appendSint(b, fieldIncrement, r.Increment)
	b = appendSint(b, fieldMax, r.MaxValue)
	b = appendSint(b, fieldMin, r.MinValue)
	b = appendSint(b, fieldStart, r.Start)
	b = protowire.AppendTag(b, fieldCycle, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(r.Cycle))
	b = appendSint(b, fieldCacheSize, r.CacheSize)
	b = appendSint(b, fieldCurrent, r.Current)
	return b
}

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

// Decode parses a row written by Encode. Unknown fields are skipped.
func Decode(b []byte) (sequence.Row, error) {
	var r sequence.Row
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return sequence.Row{}, errors.Wrap(ErrCorruptRow, protowire.ParseError(n).Error())
		}
		b = b[n:]

		if num == fieldName && typ == protowire.BytesType {
			s, m := protowire.ConsumeString(b)
			if m < 0 {
				return sequence.Row{}, errors.Wrap(ErrCorruptRow, protowire.ParseError(m).Error())
			}
			r.Name = s
			b = b[m:]
			continue
		}
		if typ != protowire.VarintType {
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return sequence.Row{}, errors.Wrap(ErrCorruptRow, protowire.ParseError(m).Error())
			}
			b = b[m:]
			continue
		}

		v, m := protowire.ConsumeVarint(b)
		if m < 0 {
			return sequence.Row{}, errors.Wrap(ErrCorruptRow, protowire.ParseError(m).Error())
		}
		b = b[m:]
		switch num {
		case fieldID:
			r.ID = uint32(v)
		case fieldScope:
			r.ScopeID = uint32(v)
		case fieldIncrement:
			r.Increment = protowire.DecodeZigZag(v)
		case fieldMax:
			r.MaxValue = protowire.DecodeZigZag(v)
		case fieldMin:
			r.MinValue = protowire.DecodeZigZag(v)
		case fieldStart:
			r.Start = protowire.DecodeZigZag(v)
		case fieldCycle:
			r.Cycle = protowire.DecodeBool(v)
		case fieldCacheSize:
			r.CacheSize = protowire.DecodeZigZag(v)
		case fieldCurrent:
			r.Current = protowire.DecodeZigZag(v)
		}
	}
	if r.ID == 0 {
		return sequence.Row{}, errors.Wrap(ErrCorruptRow, "missing id")
	}
	return r, nil
}
