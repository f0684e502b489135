package wire

import "google.golang.org/protobuf/encoding/protowire"

// -------------------- Sessions --------------------

type OpenSessionRequest struct {
	ScopeID uint32
}

func (m *OpenSessionRequest) Marshal() []byte {
	return appendUint(nil, 1, uint64(m.ScopeID))
}

func (m *OpenSessionRequest) Unmarshal(b []byte) error {
	*m = OpenSessionRequest{}
	return each(b, func(f field) {
		if f.num == 1 {
			m.ScopeID = uint32(f.v)
		}
	})
}

type OpenSessionResponse struct {
	Session string
}

func (m *OpenSessionResponse) Marshal() []byte {
	return appendString(nil, 1, m.Session)
}

func (m *OpenSessionResponse) Unmarshal(b []byte) error {
	*m = OpenSessionResponse{}
	return each(b, func(f field) {
		if f.num == 1 {
			m.Session = string(f.raw)
		}
	})
}

// SessionRequest carries only a session; CloseSession and
// ListSequences take it.
type SessionRequest struct {
	Session string
}

func (m *SessionRequest) Marshal() []byte {
	return appendString(nil, 1, m.Session)
}

func (m *SessionRequest) Unmarshal(b []byte) error {
	*m = SessionRequest{}
	return each(b, func(f field) {
		if f.num == 1 {
			m.Session = string(f.raw)
		}
	})
}

// Empty is the response of calls that return nothing.
type Empty struct{}

func (*Empty) Marshal() []byte          { return nil }
func (*Empty) Unmarshal(b []byte) error { return each(b, func(field) {}) }

// -------------------- DDL --------------------

type CreateSequenceRequest struct {
	Session   string
	Name      string
	Increment int64
	MaxValue  int64
	MinValue  int64
	Start     int64
	Cycle     bool
}

func (m *CreateSequenceRequest) Marshal() []byte {
	b := appendString(nil, 1, m.Session)
	b = appendString(b, 2, m.Name)
	b = appendSint(b, 3, m.Increment)
	b = appendSint(b, 4, m.MaxValue)
	b = appendSint(b, 5, m.MinValue)
	b = appendSint(b, 6, m.Start)
	return appendBool(b, 7, m.Cycle)
}

func (m *CreateSequenceRequest) Unmarshal(b []byte) error {
	*m = CreateSequenceRequest{}
	return each(b, func(f field) {
		switch f.num {
		case 1:
			m.Session = string(f.raw)
		case 2:
			m.Name = string(f.raw)
		case 3:
			m.Increment = protowire.DecodeZigZag(f.v)
		case 4:
			m.MaxValue = protowire.DecodeZigZag(f.v)
		case 5:
			m.MinValue = protowire.DecodeZigZag(f.v)
		case 6:
			m.Start = protowire.DecodeZigZag(f.v)
		case 7:
			m.Cycle = protowire.DecodeBool(f.v)
		}
	})
}

type CreateSequenceResponse struct {
	ID uint32
}

func (m *CreateSequenceResponse) Marshal() []byte {
	return appendUint(nil, 1, uint64(m.ID))
}

func (m *CreateSequenceResponse) Unmarshal(b []byte) error {
	*m = CreateSequenceResponse{}
	return each(b, func(f field) {
		if f.num == 1 {
			m.ID = uint32(f.v)
		}
	})
}

// NameRequest addresses one sequence: DropSequence, NextVal and CurrVal.
type NameRequest struct {
	Session string
	Name    string
}

func (m *NameRequest) Marshal() []byte {
	b := appendString(nil, 1, m.Session)
	return appendString(b, 2, m.Name)
}

func (m *NameRequest) Unmarshal(b []byte) error {
	*m = NameRequest{}
	return each(b, func(f field) {
		switch f.num {
		case 1:
			m.Session = string(f.raw)
		case 2:
			m.Name = string(f.raw)
		}
	})
}

type RenameSequenceRequest struct {
	Session string
	Name    string
	NewName string
}

func (m *RenameSequenceRequest) Marshal() []byte {
	b := appendString(nil, 1, m.Session)
	b = appendString(b, 2, m.Name)
	return appendString(b, 3, m.NewName)
}

func (m *RenameSequenceRequest) Unmarshal(b []byte) error {
	*m = RenameSequenceRequest{}
	return each(b, func(f field) {
		switch f.num {
		case 1:
			m.Session = string(f.raw)
		case 2:
			m.Name = string(f.raw)
		case 3:
			m.NewName = string(f.raw)
		}
	})
}

// -------------------- Values --------------------

type SetValRequest struct {
	Session string
	Name    string
	Value   int64
}

func (m *SetValRequest) Marshal() []byte {
	b := appendString(nil, 1, m.Session)
	b = appendString(b, 2, m.Name)
	return appendSint(b, 3, m.Value)
}

func (m *SetValRequest) Unmarshal(b []byte) error {
	*m = SetValRequest{}
	return each(b, func(f field) {
		switch f.num {
		case 1:
			m.Session = string(f.raw)
		case 2:
			m.Name = string(f.raw)
		case 3:
			m.Value = protowire.DecodeZigZag(f.v)
		}
	})
}

type ValueResponse struct {
	Value int64
}

func (m *ValueResponse) Marshal() []byte {
	return appendSint(nil, 1, m.Value)
}

func (m *ValueResponse) Unmarshal(b []byte) error {
	*m = ValueResponse{}
	return each(b, func(f field) {
		if f.num == 1 {
			m.Value = protowire.DecodeZigZag(f.v)
		}
	})
}

// -------------------- Listing --------------------

type SequenceInfo struct {
	ID        uint32
	Name      string
	Increment int64
	MaxValue  int64
	MinValue  int64
	Start     int64
	Cycle     bool
	Current   int64
}

func (m *SequenceInfo) Marshal() []byte {
	b := appendUint(nil, 1, uint64(m.ID))
	b = appendString(b, 2, m.Name)
	b = appendSint(b, 3, m.Increment)
	b = appendSint(b, 4, m.MaxValue)
	b = appendSint(b, 5, m.MinValue)
	b = appendSint(b, 6, m.Start)
	b = appendBool(b, 7, m.Cycle)
	return appendSint(b, 8, m.Current)
}

func (m *SequenceInfo) Unmarshal(b []byte) error {
	*m = SequenceInfo{}
	return each(b, func(f field) {
		switch f.num {
		case 1:
			m.ID = uint32(f.v)
		case 2:
			m.Name = string(f.raw)
		case 3:
			m.Increment = protowire.DecodeZigZag(f.v)
		case 4:
			m.MaxValue = protowire.DecodeZigZag(f.v)
		case 5:
			m.MinValue = protowire.DecodeZigZag(f.v)
		case 6:
			m.Start = protowire.DecodeZigZag(f.v)
		case 7:
			m.Cycle = protowire.DecodeBool(f.v)
		case 8:
			m.Current = protowire.DecodeZigZag(f.v)
		}
	})
}

type ListSequencesResponse struct {
	Sequences []*SequenceInfo
}

func (m *ListSequencesResponse) Marshal() []byte {
	var b []byte
	for _, s := range m.Sequences {
		b = appendBytes(b, 1, s.Marshal())
	}
	return b
}

func (m *ListSequencesResponse) Unmarshal(b []byte) error {
	*m = ListSequencesResponse{}
	var nested [][]byte
	if err := each(b, func(f field) {
		if f.num == 1 {
			nested = append(nested, f.raw)
		}
	}); err != nil {
		return err
	}
	for _, raw := range nested {
		s := &SequenceInfo{}
		if err := s.Unmarshal(raw); err != nil {
			return err
		}
		m.Sequences = append(m.Sequences, s)
	}
	return nil
}

// NamesResponse lists sequence names in order.
type NamesResponse struct {
	Names []string
}

func (m *NamesResponse) Marshal() []byte {
	var b []byte
	for _, n := range m.Names {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, n)
	}
	return b
}

func (m *NamesResponse) Unmarshal(b []byte) error {
	*m = NamesResponse{}
	return each(b, func(f field) {
		if f.num == 1 {
			m.Names = append(m.Names, string(f.raw))
		}
	})
}
