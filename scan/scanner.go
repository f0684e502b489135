// Package scan reads a table through a transaction's visibility oracle.
package scan

import (
	"github.com/cockroachdb/errors"

	"seqdb/infra/storage"
	"seqdb/infra/txn"
)

// ErrReadConflict is returned when a matching row could not be registered
// as read, usually because another transaction is modifying it. The
// transaction's result is set to txn.Failure.
var ErrReadConflict = errors.New("scan: read conflict")

// Oracle decides visibility and records reads for a transaction.
type Oracle interface {
	IsVisible(t *txn.Txn, loc txn.Location, h *storage.Header) txn.Visibility
	PerformRead(t *txn.Txn, loc txn.Location, acquire bool) bool
}

// Predicate filters row bytes. A nil predicate matches everything.
type Predicate func(row []byte) bool

// Tuple is a row the scan emitted.
type Tuple struct {
	Loc txn.Location
	Row []byte
}

// Options tune a scan.
type Options struct {
	Predicate Predicate
	// Acquire takes ownership of every emitted row, for scans that feed an
	// update or delete.
	Acquire bool
}

// Scanner emits the rows of a table visible to one transaction, one tile
// group at a time. Tile groups added after the scan started are not read.
type Scanner struct {
	oracle Oracle
	tbl    *storage.Table
	t      *txn.Txn
	opts   Options

	started bool
	groups  int
	next    int
	tile    []Tuple
	err     error
}

func New(oracle Oracle, tbl *storage.Table, t *txn.Txn, opts Options) *Scanner {
	return &Scanner{oracle: oracle, tbl: tbl, t: t, opts: opts}
}

// Next moves to the next tile group with at least one emitted row. It
// returns false once every group is read or the scan failed.
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}
	if !s.started {
		s.started = true
		s.groups = s.tbl.TileGroupCount()
	}
	for s.next < s.groups {
		g, err := s.tbl.TileGroup(s.next)
		s.next++
		if err != nil {
			s.err = err
			return false
		}
		s.tile = s.scanGroup(g)
		if s.err != nil {
			s.tile = nil
			return false
		}
		if len(s.tile) > 0 {
			return true
		}
	}
	s.tile = nil
	return false
}

// Tile is the output of the group Next moved to.
func (s *Scanner) Tile() []Tuple { return s.tile }

// Err is the error that stopped the scan, if any.
func (s *Scanner) Err() error { return s.err }

func (s *Scanner) scanGroup(g *storage.TileGroup) []Tuple {
	var out []Tuple
	n := g.ActiveTupleCount()
	for off := uint32(0); off < n; off++ {
		loc := txn.Location{Table: s.tbl, Ptr: storage.ItemPointer{Block: g.ID(), Offset: off}}
		if s.oracle.IsVisible(s.t, loc, g.Header(off)) != txn.Visible {
			continue
		}
		row := g.Row(off)
		if row == nil {
			continue
		}
		if s.opts.Predicate != nil && !s.opts.Predicate(row) {
			continue
		}
		if !s.oracle.PerformRead(s.t, loc, s.opts.Acquire) {
			s.t.SetResult(txn.Failure)
			s.err = errors.Wrapf(ErrReadConflict, "%s: txn %d at %d:%d",
				s.tbl.Name(), s.t.ID(), loc.Ptr.Block, loc.Ptr.Offset)
			return nil
		}
		out = append(out, Tuple{Loc: loc, Row: row})
	}
	return out
}

// All drains a scanner into one slice.
func All(s *Scanner) ([]Tuple, error) {
	var out []Tuple
	for s.Next() {
		out = append(out, s.Tile()...)
	}
	return out, s.Err()
}
