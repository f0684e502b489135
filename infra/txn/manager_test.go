package txn

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqdb/infra/storage"
)

func newManager(t *testing.T) (*Manager, *storage.Table) {
	t.Helper()
	log, _ := test.NewNullLogger()
	return NewManager(log), storage.NewTable("t", 8)
}

func bootstrap(tbl *storage.Table, row string) Location {
	return Location{Table: tbl, Ptr: tbl.Insert([]byte(row), storage.InitialTxnID, BootstrapCID)}
}

func insert(m *Manager, t *Txn, tbl *storage.Table, row string) Location {
	loc := Location{Table: tbl, Ptr: tbl.Insert([]byte(row), t.ID(), storage.MaxCID)}
	m.PerformInsert(t, loc)
	return loc
}

func hdr(t *testing.T, loc Location) *storage.Header {
	t.Helper()
	g, err := loc.Table.Locate(loc.Ptr)
	require.NoError(t, err)
	return g.Header(loc.Ptr.Offset)
}

func TestManager_TxnIDsStartAfterReservedStates(t *testing.T) {
	m, _ := newManager(t)
	a, b := m.Begin(), m.Begin()
	assert.Equal(t, uint64(2), a.ID())
	assert.Equal(t, uint64(3), b.ID())
	assert.Equal(t, BootstrapCID, a.BeginCID())
}

func TestManager_InsertVisibleToOwnerOnlyUntilCommit(t *testing.T) {
	m, tbl := newManager(t)

	w := m.Begin()
	loc := insert(m, w, tbl, "a")

	r := m.Begin()
	assert.Equal(t, Visible, m.IsVisible(w, loc, hdr(t, loc)))
	assert.Equal(t, Invisible, m.IsVisible(r, loc, hdr(t, loc)))

	require.NoError(t, m.Commit(w))
	assert.Equal(t, uint64(2), m.LastCID())

	// r's snapshot predates the commit.
	assert.Equal(t, Invisible, m.IsVisible(r, loc, hdr(t, loc)))
	later := m.Begin()
	assert.Equal(t, Visible, m.IsVisible(later, loc, hdr(t, loc)))
}

func TestManager_AbortedInsertIsInvisible(t *testing.T) {
	m, tbl := newManager(t)

	w := m.Begin()
	loc := insert(m, w, tbl, "a")
	m.Abort(w)

	assert.Equal(t, storage.InvalidTxnID, hdr(t, loc).TxnID())
	assert.Equal(t, Aborted, w.Result())
	assert.Equal(t, Invisible, m.IsVisible(m.Begin(), loc, hdr(t, loc)))
}

func TestManager_UpdateSwapsVersionsAtCommit(t *testing.T) {
	m, tbl := newManager(t)
	old := bootstrap(tbl, "v1")

	w := m.Begin()
	require.True(t, m.PerformRead(w, old, true))
	next := insert(m, w, tbl, "v2")
	require.NoError(t, m.PerformUpdate(w, old, next))

	assert.Equal(t, Invisible, m.IsVisible(w, old, hdr(t, old)))
	assert.Equal(t, Visible, m.IsVisible(w, next, hdr(t, next)))
	assert.True(t, w.IsWritten(old))

	other := m.Begin()
	assert.Equal(t, Visible, m.IsVisible(other, old, hdr(t, old)))
	assert.Equal(t, Invisible, m.IsVisible(other, next, hdr(t, next)))

	require.NoError(t, m.Commit(w))

	after := m.Begin()
	assert.Equal(t, Invisible, m.IsVisible(after, old, hdr(t, old)))
	assert.Equal(t, Visible, m.IsVisible(after, next, hdr(t, next)))
	// A snapshot taken before the commit still sees the old version.
	assert.Equal(t, Visible, m.IsVisible(other, old, hdr(t, old)))
}

func TestManager_AbortedUpdateRestoresOwnership(t *testing.T) {
	m, tbl := newManager(t)
	old := bootstrap(tbl, "v1")

	w := m.Begin()
	require.True(t, m.PerformRead(w, old, true))
	next := insert(m, w, tbl, "v2")
	require.NoError(t, m.PerformUpdate(w, old, next))
	m.Abort(w)

	assert.Equal(t, storage.InitialTxnID, hdr(t, old).TxnID())
	assert.Equal(t, storage.MaxCID, hdr(t, old).EndCID())
	assert.Equal(t, storage.InvalidTxnID, hdr(t, next).TxnID())

	w2 := m.Begin()
	assert.True(t, m.PerformRead(w2, old, true))
}

func TestManager_DeleteOwnInsertLeavesNothing(t *testing.T) {
	m, tbl := newManager(t)

	w := m.Begin()
	loc := insert(m, w, tbl, "a")
	require.NoError(t, m.PerformDelete(w, loc))
	assert.Equal(t, Deleted, m.IsVisible(w, loc, hdr(t, loc)))
	require.NoError(t, m.Commit(w))

	assert.Equal(t, storage.InvalidTxnID, hdr(t, loc).TxnID())
	assert.Equal(t, Invisible, m.IsVisible(m.Begin(), loc, hdr(t, loc)))
}

func TestManager_DeleteRequiresOwnership(t *testing.T) {
	m, tbl := newManager(t)
	loc := bootstrap(tbl, "a")

	w := m.Begin()
	assert.Error(t, m.PerformDelete(w, loc))

	require.True(t, m.PerformRead(w, loc, true))
	require.NoError(t, m.PerformDelete(w, loc))
	assert.Equal(t, Deleted, m.IsVisible(w, loc, hdr(t, loc)))
	require.NoError(t, m.Commit(w))

	assert.Equal(t, Invisible, m.IsVisible(m.Begin(), loc, hdr(t, loc)))
}

func TestManager_WriteWriteConflict(t *testing.T) {
	m, tbl := newManager(t)
	loc := bootstrap(tbl, "a")

	a, b := m.Begin(), m.Begin()
	require.True(t, m.PerformRead(a, loc, true))
	assert.False(t, m.PerformRead(b, loc, true))
	// Plain reads of a version another transaction owns conflict too.
	assert.False(t, m.PerformRead(b, loc, false))
}

func TestManager_LaterReaderBlocksEarlierWriter(t *testing.T) {
	m, tbl := newManager(t)
	loc := bootstrap(tbl, "a")
	other := bootstrap(tbl, "b")

	early := m.Begin()

	// Advance the clock so the next reader has a later snapshot.
	w := m.Begin()
	require.True(t, m.PerformRead(w, other, true))
	require.NoError(t, m.Commit(w))

	late := m.Begin()
	require.True(t, m.PerformRead(late, loc, false))
	assert.Equal(t, late.BeginCID(), hdr(t, loc).LastReaderCID())

	assert.False(t, m.PerformRead(early, loc, true))
	assert.True(t, m.PerformRead(m.Begin(), loc, true))
}

func TestManager_ReadOnlySkipsStamping(t *testing.T) {
	m, tbl := newManager(t)
	loc := bootstrap(tbl, "a")

	r := m.BeginReadOnly()
	assert.True(t, m.PerformRead(r, loc, true))
	assert.Equal(t, storage.InitialTxnID, hdr(t, loc).TxnID())
	assert.Equal(t, uint64(0), hdr(t, loc).LastReaderCID())
	require.NoError(t, m.Commit(r))
}

type flakyParticipant struct {
	failures int
	commits  int
	aborts   int
}

func (p *flakyParticipant) Commit(*Txn) error {
	p.commits++
	if p.failures > 0 {
		p.failures--
		return errors.New("disk full")
	}
	return nil
}

func (p *flakyParticipant) Abort(*Txn) { p.aborts++ }

func TestManager_ParticipantFailureLeavesTxnActive(t *testing.T) {
	m, tbl := newManager(t)

	w := m.Begin()
	loc := insert(m, w, tbl, "a")
	p := &flakyParticipant{failures: 2}
	got := w.Participant("store", func() Participant { return p })
	require.Same(t, p, got)
	require.Same(t, p, w.Participant("store", func() Participant { return &flakyParticipant{} }))

	committed := false
	w.OnCommit(func() { committed = true })

	for i := 0; i < 2; i++ {
		err := m.Commit(w)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCommitFailed))
		assert.Equal(t, uint64(BootstrapCID), m.LastCID())
		assert.False(t, committed)
	}

	require.NoError(t, m.Commit(w))
	assert.True(t, committed)
	assert.Equal(t, 3, p.commits)
	assert.Equal(t, uint64(2), hdr(t, loc).BeginCID())

	assert.True(t, errors.Is(m.Commit(w), ErrTxnFinished))
}

func TestManager_FailureResultAbortsOnCommit(t *testing.T) {
	m, tbl := newManager(t)

	w := m.Begin()
	insert(m, w, tbl, "a")
	p := &flakyParticipant{}
	w.Participant("store", func() Participant { return p })

	var order []int
	w.OnAbort(func() { order = append(order, 1) })
	w.OnAbort(func() { order = append(order, 2) })

	w.SetResult(Failure)
	err := m.Commit(w)
	assert.True(t, errors.Is(err, ErrTxnAborted))
	assert.Equal(t, []int{2, 1}, order)
	assert.Equal(t, 1, p.aborts)
	assert.Equal(t, 0, p.commits)

	commits, aborts := m.Stats()
	assert.Equal(t, uint64(0), commits)
	assert.Equal(t, uint64(1), aborts)
}

func TestManager_OldestActiveTracksLiveSnapshots(t *testing.T) {
	m, tbl := newManager(t)
	loc := bootstrap(tbl, "a")

	old := m.Begin()
	assert.Equal(t, BootstrapCID, m.OldestActive())

	w := m.Begin()
	require.True(t, m.PerformRead(w, loc, true))
	next := insert(m, w, tbl, "b")
	require.NoError(t, m.PerformUpdate(w, loc, next))
	require.NoError(t, m.Commit(w))

	// old still pins the superseded version.
	assert.Equal(t, BootstrapCID, m.OldestActive())
	assert.Equal(t, 0, tbl.Vacuum(m.OldestActive()))

	m.Abort(old)
	assert.Equal(t, 0, m.ActiveCount())
	assert.Equal(t, m.LastCID(), m.OldestActive())
	assert.Equal(t, 1, tbl.Vacuum(m.OldestActive()))
	assert.True(t, hdr(t, loc).IsFree())
}
