package sequence

// Options are the generator parameters fixed at CREATE SEQUENCE time.
type Options struct {
	Increment int64
	MaxValue  int64
	MinValue  int64
	Start     int64
	Cycle     bool

	// CacheSize is reserved for batch allocation. Values are always vended
	// one at a time.
	CacheSize int64
}

// Validate checks the bound/increment invariants.
func (o Options) Validate() error {
	if o.MinValue > o.MaxValue {
		return invalidDefinition("MINVALUE (%d) must be less than MAXVALUE (%d)", o.MinValue, o.MaxValue)
	}
	if o.Increment == 0 {
		return invalidDefinition("INCREMENT must not be zero")
	}
	if o.Increment > 0 && o.Start < o.MinValue {
		return invalidDefinition("START value (%d) cannot be less than MINVALUE (%d)", o.Start, o.MinValue)
	}
	if o.Increment < 0 && o.Start > o.MaxValue {
		return invalidDefinition("START value (%d) cannot be greater than MAXVALUE (%d)", o.Start, o.MaxValue)
	}
	return nil
}

// Row is a detached copy of a sequence's persisted columns.
type Row struct {
	ID      uint32
	ScopeID uint32
	Name    string
	Options
	Current int64
}

// State is a single generator. It is not safe for concurrent use; the
// Directory serialises access per sequence.
type State struct {
	id      uint32
	scopeID uint32
	name    string
	opts    Options
	current int64
}

// NewState validates opts and returns a generator positioned at Start.
func NewState(id, scopeID uint32, name string, opts Options) (*State, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.CacheSize < 1 {
		opts.CacheSize = 1
	}
	return &State{
		id:      id,
		scopeID: scopeID,
		name:    name,
		opts:    opts,
		current: opts.Start,
	}, nil
}

// stateFromRow rebuilds a generator from a persisted row.
func stateFromRow(r Row) (*State, error) {
	s, err := NewState(r.ID, r.ScopeID, r.Name, r.Options)
	if err != nil {
		return nil, err
	}
	s.current = r.Current
	return s, nil
}

func (s *State) ID() uint32       { return s.id }
func (s *State) ScopeID() uint32  { return s.scopeID }
func (s *State) Name() string     { return s.name }
func (s *State) Options() Options { return s.opts }

// Current is the value the next Advance will return.
func (s *State) Current() int64 { return s.current }

// Advance returns the current value and steps the generator for the
// following call. On a bound violation without cycling the state is left
// untouched.
func (s *State) Advance() (int64, error) {
	prev := s.current
	inc, max, min := s.opts.Increment, s.opts.MaxValue, s.opts.MinValue

	if inc > 0 {
		if (max >= 0 && s.current > max-inc) || (max < 0 && s.current+inc > max) {
			if !s.opts.Cycle {
				return 0, reachedMaximum(s.name, max)
			}
			s.current = min
		} else {
			s.current += inc
		}
		return prev, nil
	}

	if (min < 0 && s.current < min-inc) || (min >= 0 && s.current+inc < min) {
		if !s.opts.Cycle {
			return 0, reachedMinimum(s.name, min)
		}
		s.current = max
	} else {
		s.current += inc
	}
	return prev, nil
}

// SetCurrent forces the raw current value. v must lie within the bounds.
func (s *State) SetCurrent(v int64) error {
	if v < s.opts.MinValue || v > s.opts.MaxValue {
		return outOfBounds(s.name, v, s.opts.MinValue, s.opts.MaxValue)
	}
	s.current = v
	return nil
}

// Row snapshots the state.
func (s *State) Row() Row {
	return Row{
		ID:      s.id,
		ScopeID: s.scopeID,
		Name:    s.name,
		Options: s.opts,
		Current: s.current,
	}
}

func (s *State) restore(r Row) {
	s.name = r.Name
	s.current = r.Current
}
