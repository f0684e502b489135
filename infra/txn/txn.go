package txn

import (
	"sync"

	"github.com/cockroachdb/errors"

	"seqdb/infra/storage"
)

var (
	// ErrCommitFailed is a transient commit failure: a participant could not
	// make the write set durable. The transaction stays active and Commit may
	// be called again.
	ErrCommitFailed = errors.New("txn: commit failed")
	// ErrTxnAborted is returned when a transaction is rolled back instead of
	// committed, typically after a read or write conflict.
	ErrTxnAborted = errors.New("txn: transaction aborted")
	// ErrTxnFinished is returned when a finished transaction is used again.
	ErrTxnFinished = errors.New("txn: transaction already finished")
)

// Result is the outcome recorded on a transaction.
type Result int

const (
	Success Result = iota
	Failure
	Aborted
)

func (r Result) String() string {
	switch r {
	case Success:
		return "SUCCESS"
	case Failure:
		return "FAILURE"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Visibility classifies a version for a transaction.
type Visibility int

const (
	Invisible Visibility = iota
	Visible
	Deleted
)

func (v Visibility) String() string {
	switch v {
	case Invisible:
		return "INVISIBLE"
	case Visible:
		return "VISIBLE"
	case Deleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

type rwType uint8

const (
	rwRead rwType = iota
	rwReadOwn
	rwUpdate
	rwDelete
	rwInsert
	rwInsDel
)

// Location names a version in a specific table.
type Location struct {
	Table *storage.Table
	Ptr   storage.ItemPointer
}

type rwEntry struct {
	loc  Location
	kind rwType
	next Location // new version of an update
}

// Participant takes part in commit. Commit runs before the commit id is
// assigned and may run more than once if an earlier attempt failed.
type Participant interface {
	Commit(t *Txn) error
	Abort(t *Txn)
}

type state uint8

const (
	active state = iota
	committed
	aborted
)

// Txn is a transaction. It is not safe for concurrent use except for the
// hook and participant registration, which callers on other goroutines may
// use while the owner is blocked.
type Txn struct {
	id       uint64
	beginCID uint64
	readOnly bool
	epoch    *readerEpoch

	mu           sync.Mutex
	state        state
	result       Result
	rw           map[Location]*rwEntry
	order        []*rwEntry
	commitHooks  []func()
	abortHooks   []func()
	participants []namedParticipant
}

type namedParticipant struct {
	name string
	p    Participant
}

func (t *Txn) ID() uint64       { return t.id }
func (t *Txn) BeginCID() uint64 { return t.beginCID }
func (t *Txn) ReadOnly() bool   { return t.readOnly }

func (t *Txn) Result() Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// SetResult records the outcome so far. A Failure result makes Commit roll
// the transaction back.
func (t *Txn) SetResult(r Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result = r
}

// OnCommit registers fn to run after the transaction commits.
func (t *Txn) OnCommit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commitHooks = append(t.commitHooks, fn)
}

// OnAbort registers fn to run after the transaction aborts. Abort hooks run
// in reverse registration order.
func (t *Txn) OnAbort(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.abortHooks = append(t.abortHooks, fn)
}

// Participant returns the participant registered under name, registering
// the one create returns if there is none yet.
func (t *Txn) Participant(name string, create func() Participant) Participant {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, np := range t.participants {
		if np.name == name {
			return np.p
		}
	}
	p := create()
	t.participants = append(t.participants, namedParticipant{name: name, p: p})
	return p
}

// IsWritten reports whether the transaction created or modified loc.
func (t *Txn) IsWritten(loc Location) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.rw[loc]
	if !ok {
		return false
	}
	return e.kind == rwInsert || e.kind == rwUpdate || e.kind == rwDelete || e.kind == rwInsDel
}

// IsInserted reports whether loc is a version the transaction itself
// created and still holds.
func (t *Txn) IsInserted(loc Location) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.rw[loc]
	return ok && e.kind == rwInsert
}

func (t *Txn) lookup(loc Location) (rwType, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.rw[loc]
	if !ok {
		return 0, false
	}
	return e.kind, true
}

func (t *Txn) record(loc Location, kind rwType) *rwEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.rw[loc]; ok {
		e.kind = kind
		return e
	}
	e := &rwEntry{loc: loc, kind: kind}
	t.rw[loc] = e
	t.order = append(t.order, e)
	return e
}

func (t *Txn) hasWrites() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.order {
		if e.kind != rwRead {
			return true
		}
	}
	return false
}
