package storage

import "sync/atomic"

// ItemPointer addresses a version: the tile group and the slot within it.
type ItemPointer struct {
	Block  uint32
	Offset uint32
}

// TileGroup is a fixed-capacity block of slots.
type TileGroup struct {
	id       uint32
	capacity uint32
	headers  []Header
	rows     []atomic.Pointer[[]byte]
	next     atomic.Uint32
	free     *freeRing
}

func newTileGroup(id, capacity uint32) *TileGroup {
	return &TileGroup{
		id:       id,
		capacity: capacity,
		headers:  make([]Header, capacity),
		rows:     make([]atomic.Pointer[[]byte], capacity),
		free:     newFreeRing(nextPowerOfTwo(capacity)),
	}
}

func (g *TileGroup) ID() uint32       { return g.id }
func (g *TileGroup) Capacity() uint32 { return g.capacity }

// ActiveTupleCount is the number of slots ever handed out. Slots past it
// have never held a version.
func (g *TileGroup) ActiveTupleCount() uint32 {
	return min(g.next.Load(), g.capacity)
}

func (g *TileGroup) Header(off uint32) *Header {
	return &g.headers[off]
}

// Row returns the bytes of the version in slot off, or nil for a free slot.
// The slice must not be modified.
func (g *TileGroup) Row(off uint32) []byte {
	p := g.rows[off].Load()
	if p == nil {
		return nil
	}
	return *p
}

// SetRow replaces the bytes of a version the caller owns and has not yet
// committed.
func (g *TileGroup) SetRow(off uint32, row []byte) {
	g.rows[off].Store(&row)
}

// allocate claims a slot and publishes row into it. Callers serialize.
func (g *TileGroup) allocate(row []byte, owner, begin uint64) (uint32, bool) {
	off, ok := g.free.Dequeue()
	if !ok {
		n := g.next.Load()
		if n >= g.capacity {
			return 0, false
		}
		off = n
		defer g.next.Store(n + 1)
	}
	h := &g.headers[off]
	h.Lock()
	g.rows[off].Store(&row)
	h.init(owner, begin)
	h.Unlock()
	return off, true
}

// reclaim frees every slot whose version is invisible to all transactions
// that began at or after oldest. It returns the number of slots freed.
func (g *TileGroup) reclaim(oldest uint64) int {
	n := 0
	for off := uint32(0); off < g.ActiveTupleCount(); off++ {
		h := &g.headers[off]
		if h.IsFree() || !reclaimable(h, oldest) {
			continue
		}
		h.Lock()
		ok := reclaimable(h, oldest)
		if ok {
			h.reset()
			g.rows[off].Store(nil)
		}
		h.Unlock()
		if ok && g.free.Enqueue(off) {
			n++
		}
	}
	return n
}

func reclaimable(h *Header, oldest uint64) bool {
	switch h.TxnID() {
	case InvalidTxnID:
		return h.BeginCID() != 0
	case InitialTxnID:
		return h.EndCID() <= oldest
	default:
		return false
	}
}
