package txn

import (
	"sync"
	"sync/atomic"
)

const inactive = ^uint64(0)

// readerEpoch marks the snapshot a live transaction reads at.
type readerEpoch struct {
	epoch atomic.Uint64
}

func (r *readerEpoch) enter(cid uint64) { r.epoch.Store(cid) }
func (r *readerEpoch) exit()            { r.epoch.Store(inactive) }
func (r *readerEpoch) value() uint64    { return r.epoch.Load() }

// epochs tracks every live transaction so vacuum knows the oldest snapshot
// still in use.
type epochs struct {
	mu      sync.Mutex
	readers map[*readerEpoch]struct{}
}

func newEpochs() *epochs {
	return &epochs{readers: make(map[*readerEpoch]struct{})}
}

// enter registers a reader at the snapshot current() returns. Loading the
// snapshot under the lock keeps oldest() from missing a reader that has
// chosen its snapshot but not yet registered.
func (e *epochs) enter(current func() uint64) *readerEpoch {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := &readerEpoch{}
	r.enter(current())
	e.readers[r] = struct{}{}
	return r
}

func (e *epochs) exit(r *readerEpoch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r.exit()
	delete(e.readers, r)
}

// oldest returns the smallest live snapshot, or current() when nobody reads.
func (e *epochs) oldest(current func() uint64) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	min := inactive
	for r := range e.readers {
		if v := r.value(); v < min {
			min = v
		}
	}
	if min == inactive {
		return current()
	}
	return min
}

func (e *epochs) len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.readers)
}
