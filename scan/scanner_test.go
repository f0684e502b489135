package scan

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqdb/infra/storage"
	"seqdb/infra/txn"
)

func setup(t *testing.T, rows ...string) (*txn.Manager, *storage.Table, []txn.Location) {
	t.Helper()
	log, _ := test.NewNullLogger()
	m := txn.NewManager(log)
	tbl := storage.NewTable("t", 2)
	var locs []txn.Location
	for _, r := range rows {
		locs = append(locs, txn.Location{Table: tbl, Ptr: tbl.Insert([]byte(r), storage.InitialTxnID, txn.BootstrapCID)})
	}
	return m, tbl, locs
}

func rows(ts []Tuple) []string {
	var out []string
	for _, tp := range ts {
		out = append(out, string(tp.Row))
	}
	return out
}

func TestScanner_EmitsVisibleRowsPerTile(t *testing.T) {
	m, tbl, _ := setup(t, "a", "b", "c")
	s := New(m, tbl, m.Begin(), Options{})

	require.True(t, s.Next())
	assert.Equal(t, []string{"a", "b"}, rows(s.Tile()))
	require.True(t, s.Next())
	assert.Equal(t, []string{"c"}, rows(s.Tile()))
	assert.False(t, s.Next())
	assert.NoError(t, s.Err())
}

func TestScanner_Predicate(t *testing.T) {
	m, tbl, _ := setup(t, "apple", "banana", "avocado")
	s := New(m, tbl, m.Begin(), Options{Predicate: func(row []byte) bool {
		return bytes.HasPrefix(row, []byte("a"))
	}})

	got, err := All(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "avocado"}, rows(got))
}

func TestScanner_SkipsEmptyTileGroups(t *testing.T) {
	m, tbl, locs := setup(t, "a", "b", "c")

	w := m.Begin()
	for _, loc := range locs[:2] {
		require.True(t, m.PerformRead(w, loc, true))
		require.NoError(t, m.PerformDelete(w, loc))
	}
	require.NoError(t, m.Commit(w))

	s := New(m, tbl, m.Begin(), Options{})
	require.True(t, s.Next())
	assert.Equal(t, []string{"c"}, rows(s.Tile()))
	assert.False(t, s.Next())
}

func TestScanner_HidesUncommittedAndSeesOwnWrites(t *testing.T) {
	m, tbl, _ := setup(t, "a")

	w := m.Begin()
	loc := txn.Location{Table: tbl, Ptr: tbl.Insert([]byte("b"), w.ID(), storage.MaxCID)}
	m.PerformInsert(w, loc)

	other, err := All(New(m, tbl, m.BeginReadOnly(), Options{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, rows(other))

	own, err := All(New(m, tbl, w, Options{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, rows(own))
}

func TestScanner_ConflictFailsTransaction(t *testing.T) {
	m, tbl, locs := setup(t, "a", "b")

	// b is being updated; its committed version is still visible to r.
	w := m.Begin()
	require.True(t, m.PerformRead(w, locs[1], true))

	r := m.Begin()
	s := New(m, tbl, r, Options{})
	assert.False(t, s.Next())
	require.Error(t, s.Err())
	assert.True(t, errors.Is(s.Err(), ErrReadConflict))
	assert.Nil(t, s.Tile())
	assert.Equal(t, txn.Failure, r.Result())

	assert.True(t, errors.Is(m.Commit(r), txn.ErrTxnAborted))
}

func TestScanner_AcquireTakesOwnership(t *testing.T) {
	m, tbl, locs := setup(t, "a", "b")

	w := m.Begin()
	got, err := All(New(m, tbl, w, Options{
		Acquire:   true,
		Predicate: func(row []byte) bool { return string(row) == "b" },
	}))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, locs[1], got[0].Loc)

	g, err := tbl.Locate(locs[1].Ptr)
	require.NoError(t, err)
	assert.Equal(t, w.ID(), g.Header(locs[1].Ptr.Offset).TxnID())
}

func TestScanner_IgnoresGroupsAddedMidScan(t *testing.T) {
	m, tbl, _ := setup(t, "a", "b")
	s := New(m, tbl, m.Begin(), Options{})

	require.True(t, s.Next())
	tbl.Insert([]byte("c"), storage.InitialTxnID, txn.BootstrapCID)
	assert.False(t, s.Next())
}
