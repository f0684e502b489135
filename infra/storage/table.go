package storage

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// DefaultTileGroupSize is the slot count of a tile group unless the table
// is configured otherwise.
const DefaultTileGroupSize = 256

// ErrNoSuchTileGroup is returned for an item pointer outside the table.
var ErrNoSuchTileGroup = errors.New("storage: no such tile group")

// Table is an append-mostly heap of tile groups. Group i has id i.
type Table struct {
	name      string
	groupSize uint32

	mu     sync.RWMutex
	groups []*TileGroup
}

func NewTable(name string, groupSize uint32) *Table {
	if groupSize == 0 {
		groupSize = DefaultTileGroupSize
	}
	return &Table{name: name, groupSize: groupSize}
}

func (t *Table) Name() string { return t.name }

// Insert stores row as a new version owned by owner with the given begin
// commit id. Uncommitted versions use MaxCID.
func (t *Table) Insert(row []byte, owner, begin uint64) ItemPointer {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, g := range t.groups {
		if g.free.Len() == 0 && g.next.Load() >= g.capacity {
			continue
		}
		if off, ok := g.allocate(row, owner, begin); ok {
			return ItemPointer{Block: g.id, Offset: off}
		}
	}
	g := newTileGroup(uint32(len(t.groups)), t.groupSize)
	t.groups = append(t.groups, g)
	off, _ := g.allocate(row, owner, begin)
	return ItemPointer{Block: g.id, Offset: off}
}

// TileGroupCount is the number of tile groups allocated so far.
func (t *Table) TileGroupCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.groups)
}

// TileGroup returns group i.
func (t *Table) TileGroup(i int) (*TileGroup, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i < 0 || i >= len(t.groups) {
		return nil, errors.Wrapf(ErrNoSuchTileGroup, "%s: tile group %d of %d", t.name, i, len(t.groups))
	}
	return t.groups[i], nil
}

// Locate resolves an item pointer.
func (t *Table) Locate(p ItemPointer) (*TileGroup, error) {
	g, err := t.TileGroup(int(p.Block))
	if err != nil {
		return nil, err
	}
	if p.Offset >= g.ActiveTupleCount() {
		return nil, errors.Wrapf(ErrNoSuchTileGroup, "%s: slot %d:%d", t.name, p.Block, p.Offset)
	}
	return g, nil
}

// Vacuum frees versions that no transaction starting at or after oldest can
// see. Only one Vacuum may run at a time.
func (t *Table) Vacuum(oldest uint64) int {
	t.mu.RLock()
	groups := t.groups
	t.mu.RUnlock()

	n := 0
	for _, g := range groups {
		n += g.reclaim(oldest)
	}
	return n
}

// Stats counts the slots handed out and the slots currently free.
func (t *Table) Stats() (used, free int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, g := range t.groups {
		used += int(g.ActiveTupleCount())
		free += g.free.Len()
	}
	return used, free
}
