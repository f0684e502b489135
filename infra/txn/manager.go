package txn

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"seqdb/infra/storage"
)

// BootstrapCID is the commit id of versions loaded at startup.
const BootstrapCID uint64 = 1

// Manager begins, commits and aborts transactions and decides what each one
// may see.
type Manager struct {
	log logrus.FieldLogger
	ids *idSequencer

	commitMu sync.Mutex
	lastCID  atomic.Uint64
	live     *epochs

	commits atomic.Uint64
	aborts  atomic.Uint64
}

func NewManager(log logrus.FieldLogger) *Manager {
	m := &Manager{
		log:  log.WithField("component", "txn"),
		ids:  newIDSequencer(),
		live: newEpochs(),
	}
	m.lastCID.Store(BootstrapCID)
	return m
}

// LastCID is the commit id of the most recent commit.
func (m *Manager) LastCID() uint64 { return m.lastCID.Load() }

// OldestActive is the smallest snapshot any live transaction reads at.
// Versions that ended at or before it are invisible to everyone.
func (m *Manager) OldestActive() uint64 { return m.live.oldest(m.LastCID) }

// ActiveCount is the number of live transactions.
func (m *Manager) ActiveCount() int { return m.live.len() }

// Stats returns the number of commits and aborts so far.
func (m *Manager) Stats() (commits, aborts uint64) {
	return m.commits.Load(), m.aborts.Load()
}

func (m *Manager) Begin() *Txn { return m.begin(false) }

// BeginReadOnly starts a transaction that never takes ownership or stamps
// readers.
func (m *Manager) BeginReadOnly() *Txn { return m.begin(true) }

func (m *Manager) begin(readOnly bool) *Txn {
	ep := m.live.enter(m.LastCID)
	return &Txn{
		id:       m.ids.Next(),
		beginCID: ep.value(),
		readOnly: readOnly,
		epoch:    ep,
		rw:       make(map[Location]*rwEntry),
	}
}

// IsVisible classifies the version behind h for t.
func (m *Manager) IsVisible(t *Txn, loc Location, h *storage.Header) Visibility {
	owner := h.TxnID()
	begin := h.BeginCID()
	end := h.EndCID()

	activated := t.beginCID >= begin
	invalidated := t.beginCID >= end

	if owner == storage.InvalidTxnID {
		if activated && !invalidated {
			return Deleted
		}
		return Invisible
	}

	if owner == t.id {
		kind, _ := t.lookup(loc)
		if begin == storage.MaxCID {
			if kind == rwInsDel {
				return Deleted
			}
			return Visible
		}
		switch kind {
		case rwReadOwn:
			return Visible
		case rwDelete:
			return Deleted
		default:
			// superseded by this transaction's own newer version
			return Invisible
		}
	}

	if owner != storage.InitialTxnID && begin == storage.MaxCID {
		return Invisible
	}
	if activated && !invalidated {
		return Visible
	}
	return Invisible
}

// PerformRead records a read of loc. With acquire the transaction also
// takes ownership of the version so it can later replace it. It returns
// false on a conflict.
func (m *Manager) PerformRead(t *Txn, loc Location, acquire bool) bool {
	if t.readOnly {
		return true
	}
	h, ok := header(loc)
	if !ok {
		return false
	}

	if acquire {
		if isOwner(t, h) {
			return true
		}
		if !isOwnable(h) || !acquireOwnership(t, h) {
			return false
		}
		t.record(loc, rwReadOwn)
		return true
	}

	if isOwner(t, h) {
		return true
	}
	if !setLastReader(t, h) {
		return false
	}
	if _, seen := t.lookup(loc); !seen {
		t.record(loc, rwRead)
	}
	return true
}

// PerformInsert records a version t created with storage owner t.ID().
func (m *Manager) PerformInsert(t *Txn, loc Location) {
	t.record(loc, rwInsert)
}

// PerformUpdate replaces the owned version old with next, which t inserted
// with itself as owner.
func (m *Manager) PerformUpdate(t *Txn, old, next Location) error {
	h, ok := header(old)
	if !ok || !isOwner(t, h) {
		return errors.Newf("txn %d: update of %v without ownership", t.id, old.Ptr)
	}
	e := t.record(old, rwUpdate)
	e.next = next
	t.record(next, rwInsert)
	return nil
}

// PerformDelete ends the owned version at loc.
func (m *Manager) PerformDelete(t *Txn, loc Location) error {
	h, ok := header(loc)
	if !ok || !isOwner(t, h) {
		return errors.Newf("txn %d: delete of %v without ownership", t.id, loc.Ptr)
	}
	if kind, _ := t.lookup(loc); kind == rwInsert {
		t.record(loc, rwInsDel)
		return nil
	}
	t.record(loc, rwDelete)
	return nil
}

// Commit makes t's writes visible. A participant failure returns an error
// marked ErrCommitFailed and leaves t active so Commit can be retried. A
// transaction whose result is Failure is aborted and ErrTxnAborted returned.
func (m *Manager) Commit(t *Txn) error {
	t.mu.Lock()
	st, res := t.state, t.result
	parts := append([]namedParticipant(nil), t.participants...)
	t.mu.Unlock()

	if st != active {
		return errors.Wrapf(ErrTxnFinished, "txn %d", t.id)
	}
	if res == Failure {
		m.Abort(t)
		return errors.Wrapf(ErrTxnAborted, "txn %d", t.id)
	}

	if t.readOnly || !t.hasWrites() {
		m.finish(t, committed)
		return nil
	}

	for _, np := range parts {
		if err := np.p.Commit(t); err != nil {
			m.log.WithError(err).WithFields(logrus.Fields{
				"txn":         t.id,
				"participant": np.name,
			}).Warn("commit participant failed")
			return errors.Mark(errors.Wrapf(err, "txn %d: %s", t.id, np.name), ErrCommitFailed)
		}
	}

	m.commitMu.Lock()
	cid := m.lastCID.Load() + 1
	t.mu.Lock()
	for _, e := range t.order {
		applyCommit(e, cid)
	}
	t.mu.Unlock()
	m.lastCID.Store(cid)
	m.commitMu.Unlock()

	m.finish(t, committed)
	return nil
}

// Abort rolls t back. Aborting a finished transaction is a no-op.
func (m *Manager) Abort(t *Txn) {
	t.mu.Lock()
	if t.state != active {
		t.mu.Unlock()
		return
	}
	parts := append([]namedParticipant(nil), t.participants...)
	for _, e := range t.order {
		applyAbort(e)
	}
	t.mu.Unlock()

	for _, np := range parts {
		np.p.Abort(t)
	}
	m.finish(t, aborted)
}

func (m *Manager) finish(t *Txn, to state) {
	t.mu.Lock()
	t.state = to
	var hooks []func()
	if to == committed {
		hooks = t.commitHooks
		m.commits.Add(1)
	} else {
		t.result = Aborted
		hooks = make([]func(), 0, len(t.abortHooks))
		for i := len(t.abortHooks) - 1; i >= 0; i-- {
			hooks = append(hooks, t.abortHooks[i])
		}
		m.aborts.Add(1)
	}
	t.commitHooks, t.abortHooks = nil, nil
	t.mu.Unlock()

	m.live.exit(t.epoch)
	for _, fn := range hooks {
		fn()
	}
	if to == aborted {
		m.log.WithField("txn", t.id).Debug("transaction aborted")
	}
}

// -------------------- version transitions --------------------

func applyCommit(e *rwEntry, cid uint64) {
	h, ok := header(e.loc)
	if !ok {
		return
	}
	switch e.kind {
	case rwInsert:
		h.SetBeginCID(cid)
		h.SetEndCID(storage.MaxCID)
		h.SetTxnID(storage.InitialTxnID)
	case rwInsDel:
		h.SetTxnID(storage.InvalidTxnID)
	case rwUpdate, rwDelete:
		h.SetEndCID(cid)
		h.SetTxnID(storage.InitialTxnID)
	case rwReadOwn:
		h.SetTxnID(storage.InitialTxnID)
	}
}

func applyAbort(e *rwEntry) {
	h, ok := header(e.loc)
	if !ok {
		return
	}
	switch e.kind {
	case rwInsert, rwInsDel:
		h.SetTxnID(storage.InvalidTxnID)
	case rwUpdate, rwDelete, rwReadOwn:
		h.SetTxnID(storage.InitialTxnID)
	}
}

// -------------------- ownership --------------------

func header(loc Location) (*storage.Header, bool) {
	g, err := loc.Table.Locate(loc.Ptr)
	if err != nil {
		return nil, false
	}
	return g.Header(loc.Ptr.Offset), true
}

func isOwner(t *Txn, h *storage.Header) bool {
	return h.TxnID() == t.id
}

// isOwnable reports whether h is the newest committed version and free.
func isOwnable(h *storage.Header) bool {
	return h.TxnID() == storage.InitialTxnID && h.EndCID() == storage.MaxCID
}

// acquireOwnership fails if a transaction with a later snapshot already
// read the version.
func acquireOwnership(t *Txn, h *storage.Header) bool {
	h.Lock()
	defer h.Unlock()
	if h.LastReaderCID() > t.beginCID {
		return false
	}
	return h.CompareAndSwapTxnID(storage.InitialTxnID, t.id)
}

func setLastReader(t *Txn, h *storage.Header) bool {
	h.Lock()
	defer h.Unlock()
	if h.TxnID() != storage.InitialTxnID {
		return false
	}
	if h.LastReaderCID() < t.beginCID {
		h.SetLastReader(t.beginCID)
	}
	return true
}
