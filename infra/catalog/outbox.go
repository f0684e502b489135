package catalog

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

// -------------------- Event --------------------

type EventType string

const (
	EventCreated EventType = "created"
	EventDropped EventType = "dropped"
	EventRenamed EventType = "renamed"
)

// Event describes a committed DDL change to a sequence. Nodes consuming the
// change feed evict session caches by Name.
type Event struct {
	V       int       `json:"v"`
	Type    EventType `json:"type"`
	Origin  string    `json:"origin"`
	Scope   uint32    `json:"scope"`
	ID      uint32    `json:"id"`
	Name    string    `json:"name"`
	NewName string    `json:"new_name,omitempty"`
	Seq     uint64    `json:"seq"`
}

const eventVersion = 1

// -------------------- State --------------------

type OutboxState uint8

const (
	StateNew OutboxState = iota
	StateSent
	StateAcked
)

func (s OutboxState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

type OutboxRecord struct {
	Seq         uint64
	State       OutboxState
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// Event decodes the payload.
func (r *OutboxRecord) Event() (Event, error) {
	var ev Event
	if err := json.Unmarshal(r.Payload, &ev); err != nil {
		return Event{}, errors.Wrapf(err, "outbox record %d", r.Seq)
	}
	return ev, nil
}

const outboxHeaderLen = 1 + 4 + 8

// binary encoding: [state:1][retries:4][lastAttempt:8][payload...]
func encodeOutbox(r OutboxRecord) []byte {
	buf := make([]byte, outboxHeaderLen+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[outboxHeaderLen:], r.Payload)
	return buf
}

func decodeOutbox(seq uint64, b []byte) (OutboxRecord, error) {
	if len(b) < outboxHeaderLen {
		return OutboxRecord{}, errors.Newf("invalid outbox record length %d", len(b))
	}
	return OutboxRecord{
		Seq:         seq,
		State:       OutboxState(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     append([]byte(nil), b[outboxHeaderLen:]...),
	}, nil
}

// -------------------- API --------------------

// stageEvent queues an event for the transaction. Its outbox seq is only
// assigned at commit.
func (p *batchParticipant) stageEvent(ev Event) error {
	ev.V = eventVersion
	ev.Origin = p.s.origin
	p.events = append(p.events, ev)
	return nil
}

// appendEvents numbers the staged events after base and adds them to b as
// NEW records. It returns the last seq used.
func (p *batchParticipant) appendEvents(b *pebble.Batch, base uint64) (uint64, error) {
	seq := base
	for _, ev := range p.events {
		seq++
		ev.Seq = seq
		payload, err := json.Marshal(ev)
		if err != nil {
			return base, errors.Wrap(err, "marshal outbox event")
		}
		rec := encodeOutbox(OutboxRecord{State: StateNew, Payload: payload})
		if err := b.Set(outboxKey(seq), rec, nil); err != nil {
			return base, err
		}
	}
	return seq, nil
}

// ScanPending iterates records that were never acknowledged, in commit
// order: seqs are assigned and written under outboxMu, so a batch holding a
// lower seq always lands first. SENT records are included since the send may
// not have landed.
func (s *Store) ScanPending(fn func(rec *OutboxRecord) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(outboxPrefix),
		UpperBound: []byte(outboxPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseOutboxKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeOutbox(seq, iter.Value())
		if err != nil {
			return err
		}
		if rec.State == StateAcked {
			continue
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// MarkSent records a send attempt.
func (s *Store) MarkSent(seq uint64) error {
	return s.updateOutbox(seq, func(r *OutboxRecord) {
		r.State = StateSent
		r.Retries++
		r.LastAttempt = time.Now().UnixNano()
	})
}

// MarkAcked records that the broker accepted the event.
func (s *Store) MarkAcked(seq uint64) error {
	return s.updateOutbox(seq, func(r *OutboxRecord) {
		r.State = StateAcked
	})
}

// GetOutbox returns one record.
func (s *Store) GetOutbox(seq uint64) (OutboxRecord, error) {
	val, closer, err := s.db.Get(outboxKey(seq))
	if err != nil {
		return OutboxRecord{}, err
	}
	defer closer.Close()
	return decodeOutbox(seq, val)
}

// PurgeAcked deletes acknowledged records and returns how many it removed.
func (s *Store) PurgeAcked() (int, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(outboxPrefix),
		UpperBound: []byte(outboxPrefix + "~"),
	})
	if err != nil {
		return 0, err
	}
	b := s.db.NewBatch()
	defer b.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		if len(iter.Value()) > 0 && OutboxState(iter.Value()[0]) == StateAcked {
			if err := b.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
				_ = iter.Close()
				return 0, err
			}
			n++
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return n, b.Commit(pebble.Sync)
}

func (s *Store) updateOutbox(seq uint64, fn func(r *OutboxRecord)) error {
	s.outboxMu.Lock()
	defer s.outboxMu.Unlock()

	rec, err := s.GetOutbox(seq)
	if err != nil {
		return errors.Wrapf(err, "outbox record %d", seq)
	}
	fn(&rec)
	return s.db.Set(outboxKey(seq), encodeOutbox(rec), pebble.Sync)
}

// -------------------- Helpers --------------------

const outboxPrefix = "outbox/"

func outboxKey(seq uint64) []byte {
	return []byte(fmt.Sprintf(outboxPrefix+"%020d", seq))
}

func parseOutboxKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte(outboxPrefix))), "%d", &seq)
	return seq, err
}
