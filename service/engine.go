package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"seqdb/domain/sequence"
	"seqdb/infra/catalog"
	"seqdb/infra/metrics"
	"seqdb/infra/txn"
)

// ErrSessionNotFound is returned for a namespace no open session owns.
var ErrSessionNotFound = errors.New("session not found")

// TxnManager begins and finishes the transactions the engine runs in.
type TxnManager interface {
	Begin() *txn.Txn
	BeginReadOnly() *txn.Txn
	Commit(t *txn.Txn) error
	Abort(t *txn.Txn)
}

// Catalog is the durable side of the directory.
type Catalog interface {
	sequence.Store[*txn.Txn]
	List(t *txn.Txn, scopeID uint32) ([]sequence.Row, error)
	Get(t *txn.Txn, id uint32) (sequence.Row, error)
}

// Session scopes currval to one client and resolves names in one scope.
type Session struct {
	Namespace string
	ScopeID   uint32
}

type Config struct {
	Retry RetryPolicy
	// RedactNames keeps sequence names out of log output.
	RedactNames bool
}

/*
Engine is the only entry point for sequence operations.

It composes:
- the directory (definitions and current values)
- the session cache (currval)
- the catalog (durability, behind a transaction)
*/
type Engine struct {
	log     logrus.FieldLogger
	txns    TxnManager
	catalog Catalog
	dir     *sequence.Directory[*txn.Txn]
	cache   *sequence.CurrValCache
	metrics *metrics.Metrics
	retry   RetryPolicy
	redact  bool

	mu       sync.RWMutex
	sessions map[string]Session
}

func New(cfg Config, txns TxnManager, cat Catalog, m *metrics.Metrics, log logrus.FieldLogger) *Engine {
	return &Engine{
		log:      log.WithField("component", "engine"),
		txns:     txns,
		catalog:  cat,
		dir:      sequence.NewDirectory[*txn.Txn](cat),
		cache:    sequence.NewCurrValCache(),
		metrics:  m,
		retry:    cfg.Retry,
		redact:   cfg.RedactNames,
		sessions: make(map[string]Session),
	}
}

//
// ──────────────────────────────────────────────────────────
// Sessions
// ──────────────────────────────────────────────────────────
//

// OpenSession starts a session resolving names in scopeID.
func (e *Engine) OpenSession(scopeID uint32) Session {
	s := Session{Namespace: uuid.NewString(), ScopeID: scopeID}
	e.mu.Lock()
	e.sessions[s.Namespace] = s
	e.mu.Unlock()
	e.metrics.SessionOpened()
	return s
}

// CloseSession ends a session and forgets its currval entries.
func (e *Engine) CloseSession(namespace string) error {
	e.mu.Lock()
	_, ok := e.sessions[namespace]
	delete(e.sessions, namespace)
	e.mu.Unlock()
	if !ok {
		return sessionNotFound(namespace)
	}
	n := e.cache.EvictByNamespace(namespace)
	e.metrics.SessionClosed()
	e.log.WithFields(logrus.Fields{"session": namespace, "evicted": n}).Debug("session closed")
	return nil
}

func (e *Engine) session(namespace string) (Session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[namespace]
	if !ok {
		return Session{}, sessionNotFound(namespace)
	}
	return s, nil
}

func sessionNotFound(namespace string) error {
	return errors.Mark(errors.Newf("session %q is not open", namespace), ErrSessionNotFound)
}

//
// ──────────────────────────────────────────────────────────
// DDL
// ──────────────────────────────────────────────────────────
//

// CreateSequence defines a sequence in the session's scope.
func (e *Engine) CreateSequence(ctx context.Context, namespace, name string, opts sequence.Options) (uint32, error) {
	s, err := e.session(namespace)
	if err != nil {
		return 0, err
	}
	t := e.txns.Begin()
	id, err := e.dir.Create(t, s.ScopeID, name, opts)
	if err != nil {
		e.txns.Abort(t)
		e.metrics.DDL("create", resultOf(err))
		return 0, err
	}
	if err := e.commit(ctx, t, "create"); err != nil {
		e.metrics.DDL("create", resultOf(err))
		return 0, err
	}
	e.metrics.DDL("create", "ok")
	e.ddlLog("create", s.ScopeID, name).WithField("id", id).Info("sequence created")
	return id, nil
}

// DropSequence removes a sequence and every session's currval of it.
func (e *Engine) DropSequence(ctx context.Context, namespace, name string) error {
	s, err := e.session(namespace)
	if err != nil {
		return err
	}
	t := e.txns.Begin()
	if _, err := e.dir.Drop(t, s.ScopeID, name); err != nil {
		e.txns.Abort(t)
		e.metrics.DDL("drop", resultOf(err))
		return err
	}
	if err := e.commit(ctx, t, "drop"); err != nil {
		e.metrics.DDL("drop", resultOf(err))
		return err
	}
	e.EvictSequence(s.ScopeID, name)
	e.metrics.DDL("drop", "ok")
	e.ddlLog("drop", s.ScopeID, name).Info("sequence dropped")
	return nil
}

// RenameSequence gives a sequence a new name. Cached currval entries under
// the old name are dropped.
func (e *Engine) RenameSequence(ctx context.Context, namespace, name, newName string) error {
	s, err := e.session(namespace)
	if err != nil {
		return err
	}
	t := e.txns.Begin()
	if _, err := e.dir.Rename(t, s.ScopeID, name, newName); err != nil {
		e.txns.Abort(t)
		e.metrics.DDL("rename", resultOf(err))
		return err
	}
	if err := e.commit(ctx, t, "rename"); err != nil {
		e.metrics.DDL("rename", resultOf(err))
		return err
	}
	e.EvictSequence(s.ScopeID, name)
	e.metrics.DDL("rename", "ok")
	e.ddlLog("rename", s.ScopeID, name).WithField("to", e.logName(newName)).Info("sequence renamed")
	return nil
}

func (e *Engine) ddlLog(action string, scopeID uint32, name string) logrus.FieldLogger {
	return e.log.WithFields(logrus.Fields{
		"action":   action,
		"scope":    scopeID,
		"sequence": e.logName(name),
	})
}

func (e *Engine) logName(name string) string {
	if e.redact {
		return string(redact.Sprint(name).Redact())
	}
	return name
}

//
// ──────────────────────────────────────────────────────────
// Values
// ──────────────────────────────────────────────────────────
//

// NextValue vends the sequence's next value to the session. The value is
// durable before it is returned and is never handed out again, whatever
// happens to the caller afterwards.
func (e *Engine) NextValue(ctx context.Context, namespace, name string) (int64, error) {
	start := time.Now()
	v, err := e.nextValue(ctx, namespace, name)
	e.metrics.NextVal(resultOf(err), time.Since(start))
	return v, err
}

func (e *Engine) nextValue(ctx context.Context, namespace, name string) (int64, error) {
	s, err := e.session(namespace)
	if err != nil {
		return 0, err
	}
	e.cache.Evict(namespace, name)

	var prev int64
	err = e.dir.Update(sequence.Key{ScopeID: s.ScopeID, Name: name}, func(st *sequence.State) error {
		v, err := st.Advance()
		if err != nil {
			return err
		}
		row := st.Row()
		if err := e.persist(ctx, func(t *txn.Txn) error { return e.catalog.Update(t, row) }, "nextval"); err != nil {
			return err
		}
		prev = v
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.cache.Put(namespace, s.ScopeID, name, prev)
	return prev, nil
}

// CurrentValue returns the value NextValue last returned to the session.
// It never consults the directory.
func (e *Engine) CurrentValue(namespace, name string) (int64, error) {
	if _, err := e.session(namespace); err != nil {
		return 0, err
	}
	return e.cache.Get(namespace, name)
}

// SetValue forces the sequence's current value; the next NextValue returns
// v. Session caches are left alone.
func (e *Engine) SetValue(ctx context.Context, namespace, name string, v int64) error {
	s, err := e.session(namespace)
	if err != nil {
		return err
	}
	return e.dir.Update(sequence.Key{ScopeID: s.ScopeID, Name: name}, func(st *sequence.State) error {
		if err := st.SetCurrent(v); err != nil {
			return err
		}
		row := st.Row()
		return e.persist(ctx, func(t *txn.Txn) error { return e.catalog.Update(t, row) }, "setval")
	})
}

// Describe resolves name in the session's scope and returns its committed
// catalog row.
func (e *Engine) Describe(namespace, name string) (sequence.Row, error) {
	s, err := e.session(namespace)
	if err != nil {
		return sequence.Row{}, err
	}
	id, err := e.dir.LookupIdentifier(name, s.ScopeID)
	if err != nil {
		return sequence.Row{}, err
	}
	t := e.txns.BeginReadOnly()
	row, err := e.catalog.Get(t, id)
	if err != nil {
		e.txns.Abort(t)
		if errors.Is(err, catalog.ErrRowNotFound) {
			// Dropped between the lookup and the read.
			return sequence.Row{}, errors.Mark(err, sequence.ErrNotFound)
		}
		return sequence.Row{}, err
	}
	if err := e.txns.Commit(t); err != nil {
		return sequence.Row{}, err
	}
	return row, nil
}

// SequenceNames lists the names of the session's scope in order, straight
// from the directory.
func (e *Engine) SequenceNames(namespace string) ([]string, error) {
	s, err := e.session(namespace)
	if err != nil {
		return nil, err
	}
	return e.dir.Names(s.ScopeID), nil
}

// ListSequences returns the committed sequences of the session's scope,
// ordered by name, as read from the catalog table.
func (e *Engine) ListSequences(namespace string) ([]sequence.Row, error) {
	s, err := e.session(namespace)
	if err != nil {
		return nil, err
	}
	t := e.txns.BeginReadOnly()
	rows, err := e.catalog.List(t, s.ScopeID)
	if err != nil {
		e.txns.Abort(t)
		return nil, err
	}
	if err := e.txns.Commit(t); err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows, nil
}

// EvictSequence drops every session's currval of the sequence scopeID/name.
// It is called after a local drop or rename and for changes other nodes
// report.
func (e *Engine) EvictSequence(scopeID uint32, name string) int {
	n := e.cache.EvictBySequenceName(scopeID, name)
	e.metrics.Evicted(n)
	return n
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, sequence.ErrNotFound):
		return "not_found"
	case errors.Is(err, sequence.ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, sequence.ErrDuplicateName):
		return "duplicate"
	case errors.Is(err, sequence.ErrInvalidDefinition):
		return "invalid"
	case errors.Is(err, ErrSessionNotFound):
		return "no_session"
	default:
		return "error"
	}
}
