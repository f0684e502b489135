package storage

import (
	"math"
	"sync"
	"sync/atomic"
)

const (
	// InvalidTxnID marks a slot no transaction owns and no reader should see
	// as a live version: an aborted insert, or a free slot.
	InvalidTxnID uint64 = 0
	// InitialTxnID marks a committed version that nobody owns.
	InitialTxnID uint64 = 1
	// MaxCID is the open end of a commit id range.
	MaxCID uint64 = math.MaxUint64
)

// Header is the MVCC metadata of one slot. Fields are read without a lock;
// the mutex serializes the read-modify-write steps of the concurrency
// control protocol (ownership, last reader).
type Header struct {
	mu            sync.Mutex
	txnID         atomic.Uint64
	beginCID      atomic.Uint64
	endCID        atomic.Uint64
	lastReaderCID atomic.Uint64
}

func (h *Header) Lock()   { h.mu.Lock() }
func (h *Header) Unlock() { h.mu.Unlock() }

func (h *Header) TxnID() uint64         { return h.txnID.Load() }
func (h *Header) BeginCID() uint64      { return h.beginCID.Load() }
func (h *Header) EndCID() uint64        { return h.endCID.Load() }
func (h *Header) LastReaderCID() uint64 { return h.lastReaderCID.Load() }

func (h *Header) SetTxnID(id uint64)       { h.txnID.Store(id) }
func (h *Header) SetBeginCID(cid uint64)   { h.beginCID.Store(cid) }
func (h *Header) SetEndCID(cid uint64)     { h.endCID.Store(cid) }
func (h *Header) SetLastReader(cid uint64) { h.lastReaderCID.Store(cid) }

// CompareAndSwapTxnID installs a new owner if the slot is still held by old.
func (h *Header) CompareAndSwapTxnID(old, new uint64) bool {
	return h.txnID.CompareAndSwap(old, new)
}

// IsFree reports whether the slot holds no version at all.
func (h *Header) IsFree() bool {
	return h.txnID.Load() == InvalidTxnID && h.beginCID.Load() == 0
}

// init publishes a fresh version. The owner goes last so a concurrent reader
// sees either the old free slot or a complete header.
func (h *Header) init(owner, begin uint64) {
	h.txnID.Store(InvalidTxnID)
	h.beginCID.Store(begin)
	h.endCID.Store(MaxCID)
	h.lastReaderCID.Store(0)
	h.txnID.Store(owner)
}

// reset returns the slot to the zero, invisible state.
func (h *Header) reset() {
	h.txnID.Store(InvalidTxnID)
	h.beginCID.Store(0)
	h.endCID.Store(0)
	h.lastReaderCID.Store(0)
}
