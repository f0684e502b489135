package txn

import (
	"sync/atomic"

	"seqdb/infra/storage"
)

// idSequencer hands out transaction ids. Ids at or below
// storage.InitialTxnID are reserved for header states.
type idSequencer struct {
	next atomic.Uint64
}

func newIDSequencer() *idSequencer {
	s := &idSequencer{}
	s.next.Store(storage.InitialTxnID)
	return s
}

func (s *idSequencer) Next() uint64 {
	return s.next.Add(1)
}

func (s *idSequencer) Current() uint64 {
	return s.next.Load()
}
