package storage

import "sync/atomic"

// freeRing is a lock-free SPSC ring of reclaimed slot offsets. The vacuum
// pass is the only producer; allocation, serialized by the table lock, is
// the only consumer.
type freeRing struct {
	head  uint64
	_pad1 [56]byte
	tail  uint64
	_pad2 [56]byte
	buf   []uint32
	mask  uint64
}

func newFreeRing(size uint64) *freeRing {
	if size&(size-1) != 0 {
		panic("storage: free ring size must be power of two")
	}
	return &freeRing{
		buf:  make([]uint32, size),
		mask: size - 1,
	}
}

func (r *freeRing) Enqueue(off uint32) bool {
	h := atomic.LoadUint64(&r.head)
	t := atomic.LoadUint64(&r.tail)
	if h-t == uint64(len(r.buf)) {
		return false
	}
	r.buf[h&r.mask] = off
	atomic.StoreUint64(&r.head, h+1)
	return true
}

func (r *freeRing) Dequeue() (uint32, bool) {
	t := atomic.LoadUint64(&r.tail)
	h := atomic.LoadUint64(&r.head)
	if t == h {
		return 0, false
	}
	off := r.buf[t&r.mask]
	atomic.StoreUint64(&r.tail, t+1)
	return off, true
}

func (r *freeRing) Len() int {
	return int(atomic.LoadUint64(&r.head) - atomic.LoadUint64(&r.tail))
}

func nextPowerOfTwo(n uint32) uint64 {
	p := uint64(1)
	for p < uint64(n) {
		p <<= 1
	}
	return p
}
