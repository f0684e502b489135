package catalog

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/encoding/protowire"

	"seqdb/domain/sequence"
	"seqdb/infra/storage"
	"seqdb/infra/txn"
	"seqdb/scan"
)

var (
	// ErrRowNotFound is returned when no version of a sequence row is
	// visible to the transaction.
	ErrRowNotFound = errors.New("catalog: row not found")
	// ErrConflict is returned when another transaction holds the row. The
	// caller should abort and retry with a new transaction.
	ErrConflict = errors.New("catalog: write conflict")
)

// Config locates the durable catalog.
type Config struct {
	Dir string
	// FS overrides the filesystem, e.g. vfs.NewMem() in tests.
	FS            vfs.FS
	TileGroupSize uint32
	// Origin is stamped on outbox events so a node can skip its own.
	Origin string
}

// Store is the sequence catalog. Every row is a version in an MVCC table;
// committed rows are also kept in pebble so they survive a restart.
type Store struct {
	log    logrus.FieldLogger
	db     *pebble.DB
	mgr    *txn.Manager
	tbl    *storage.Table
	origin string

	outboxSeq atomic.Uint64
	outboxMu  sync.Mutex
}

func Open(cfg Config, mgr *txn.Manager, log logrus.FieldLogger) (*Store, error) {
	opts := &pebble.Options{}
	if cfg.FS != nil {
		opts.FS = cfg.FS
	}
	db, err := pebble.Open(cfg.Dir, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open catalog at %q", cfg.Dir)
	}
	return &Store{
		log:    log.WithField("component", "catalog"),
		db:     db,
		mgr:    mgr,
		tbl:    storage.NewTable("pg_sequence", cfg.TileGroupSize),
		origin: cfg.Origin,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Table is the MVCC table holding the catalog rows.
func (s *Store) Table() *storage.Table { return s.tbl }

// Load installs every persisted row as a committed version and returns the
// rows. It must run once, before any transaction touches the catalog.
func (s *Store) Load() ([]sequence.Row, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(rowPrefix),
		UpperBound: []byte(rowPrefix + "~"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var rows []sequence.Row
	for iter.First(); iter.Valid(); iter.Next() {
		r, err := Decode(iter.Value())
		if err != nil {
			return nil, errors.Wrapf(err, "key %s", iter.Key())
		}
		scopeID, id, err := parseRowKey(iter.Key())
		if err != nil || scopeID != r.ScopeID || id != r.ID {
			return nil, errors.Wrapf(ErrCorruptRow, "key %s holds sequence %d/%d", iter.Key(), r.ScopeID, r.ID)
		}
		s.tbl.Insert(Encode(r), storage.InitialTxnID, txn.BootstrapCID)
		rows = append(rows, r)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	last, err := s.lastOutboxSeq()
	if err != nil {
		return nil, err
	}
	s.outboxSeq.Store(last)

	s.log.WithFields(logrus.Fields{
		"rows":   len(rows),
		"outbox": last,
	}).Info("catalog loaded")
	return rows, nil
}

// Insert adds a new sequence row in t.
func (s *Store) Insert(t *txn.Txn, row sequence.Row) error {
	enc := Encode(row)
	loc := txn.Location{Table: s.tbl, Ptr: s.tbl.Insert(enc, t.ID(), storage.MaxCID)}
	s.mgr.PerformInsert(t, loc)

	p := s.participant(t)
	p.set(rowKey(row.ScopeID, row.ID), enc)
	return p.stageEvent(Event{Type: EventCreated, Scope: row.ScopeID, ID: row.ID, Name: row.Name})
}

// Update replaces the row of row.ID in t. A version t created itself is
// rewritten in place.
func (s *Store) Update(t *txn.Txn, row sequence.Row) error {
	loc, old, err := s.locate(t, row.ID)
	if err != nil {
		return err
	}
	enc := Encode(row)
	if t.IsInserted(loc) {
		g, err := s.tbl.Locate(loc.Ptr)
		if err != nil {
			return err
		}
		g.SetRow(loc.Ptr.Offset, enc)
	} else {
		next := txn.Location{Table: s.tbl, Ptr: s.tbl.Insert(enc, t.ID(), storage.MaxCID)}
		if err := s.mgr.PerformUpdate(t, loc, next); err != nil {
			return err
		}
	}

	p := s.participant(t)
	p.set(rowKey(row.ScopeID, row.ID), enc)
	if old.Name != row.Name {
		return p.stageEvent(Event{Type: EventRenamed, Scope: row.ScopeID, ID: row.ID, Name: old.Name, NewName: row.Name})
	}
	return nil
}

// Delete removes the row of row.ID in t.
func (s *Store) Delete(t *txn.Txn, row sequence.Row) error {
	loc, old, err := s.locate(t, row.ID)
	if err != nil {
		return err
	}
	if err := s.mgr.PerformDelete(t, loc); err != nil {
		return err
	}

	p := s.participant(t)
	p.del(rowKey(old.ScopeID, old.ID))
	return p.stageEvent(Event{Type: EventDropped, Scope: old.ScopeID, ID: old.ID, Name: old.Name})
}

// List returns the rows of a scope visible to t, in storage order.
func (s *Store) List(t *txn.Txn, scopeID uint32) ([]sequence.Row, error) {
	tuples, err := scan.All(scan.New(s.mgr, s.tbl, t, scan.Options{
		Predicate: func(b []byte) bool {
			r, err := Decode(b)
			return err == nil && r.ScopeID == scopeID
		},
	}))
	if err != nil {
		return nil, errors.Mark(err, ErrConflict)
	}
	rows := make([]sequence.Row, 0, len(tuples))
	for _, tp := range tuples {
		r, err := Decode(tp.Row)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// Get returns the row of id visible to t without taking ownership.
func (s *Store) Get(t *txn.Txn, id uint32) (sequence.Row, error) {
	tuples, err := scan.All(scan.New(s.mgr, s.tbl, t, scan.Options{
		Predicate: idIs(id),
	}))
	if err != nil {
		return sequence.Row{}, errors.Mark(err, ErrConflict)
	}
	if len(tuples) == 0 {
		return sequence.Row{}, errors.Mark(errors.Newf("catalog row for sequence %d not found", id), ErrRowNotFound)
	}
	return Decode(tuples[0].Row)
}

// locate finds the version of id visible to t and takes ownership of it.
func (s *Store) locate(t *txn.Txn, id uint32) (txn.Location, sequence.Row, error) {
	tuples, err := scan.All(scan.New(s.mgr, s.tbl, t, scan.Options{
		Predicate: idIs(id),
		Acquire:   true,
	}))
	if err != nil {
		return txn.Location{}, sequence.Row{}, errors.Mark(err, ErrConflict)
	}
	if len(tuples) == 0 {
		return txn.Location{}, sequence.Row{}, errors.Mark(errors.Newf("catalog row for sequence %d not found", id), ErrRowNotFound)
	}
	row, err := Decode(tuples[0].Row)
	if err != nil {
		return txn.Location{}, sequence.Row{}, err
	}
	return tuples[0].Loc, row, nil
}

// idIs matches rows by their leading id field without decoding the rest.
func idIs(id uint32) scan.Predicate {
	return func(b []byte) bool {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 || num != fieldID || typ != protowire.VarintType {
			return false
		}
		v, m := protowire.ConsumeVarint(b[n:])
		return m >= 0 && v == uint64(id)
	}
}

func (s *Store) lastOutboxSeq() (uint64, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(outboxPrefix),
		UpperBound: []byte(outboxPrefix + "~"),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseOutboxKey(iter.Key())
}

// -------------------- Participant --------------------

const participantName = "catalog"

type op struct {
	key   []byte
	value []byte
	del   bool
}

// batchParticipant collects the pebble writes of one transaction and
// applies them as a single synced batch at commit.
type batchParticipant struct {
	s      *Store
	ops    []op
	events []Event
}

func (s *Store) participant(t *txn.Txn) *batchParticipant {
	return t.Participant(participantName, func() txn.Participant {
		return &batchParticipant{s: s}
	}).(*batchParticipant)
}

func (p *batchParticipant) set(key, value []byte) {
	p.ops = append(p.ops, op{key: key, value: value})
}

func (p *batchParticipant) del(key []byte) {
	p.ops = append(p.ops, op{key: key, del: true})
}

// Commit builds a fresh batch on every call so a failed attempt can be
// retried. Outbox seqs are consumed only when the batch lands.
func (p *batchParticipant) Commit(t *txn.Txn) error {
	b := p.s.db.NewBatch()
	defer b.Close()
	for _, o := range p.ops {
		var err error
		if o.del {
			err = b.Delete(o.key, nil)
		} else {
			err = b.Set(o.key, o.value, nil)
		}
		if err != nil {
			return err
		}
	}
	if len(p.events) == 0 {
		return b.Commit(pebble.Sync)
	}

	p.s.outboxMu.Lock()
	defer p.s.outboxMu.Unlock()
	last, err := p.appendEvents(b, p.s.outboxSeq.Load())
	if err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return err
	}
	p.s.outboxSeq.Store(last)
	return nil
}

func (p *batchParticipant) Abort(*txn.Txn) {
	p.ops = nil
	p.events = nil
}

// -------------------- Helpers --------------------

const rowPrefix = "seq/"

func rowKey(scopeID, id uint32) []byte {
	return []byte(fmt.Sprintf(rowPrefix+"%010d/%010d", scopeID, id))
}

func parseRowKey(b []byte) (scopeID, id uint32, err error) {
	_, err = fmt.Sscanf(string(bytes.TrimPrefix(b, []byte(rowPrefix))), "%d/%d", &scopeID, &id)
	return scopeID, id, err
}
