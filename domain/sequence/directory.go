package sequence

import (
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"
)

// Key identifies a sequence: names are unique within an owning scope.
type Key struct {
	ScopeID uint32
	Name    string
}

func keyLess(a, b Key) bool {
	if a.ScopeID != b.ScopeID {
		return a.ScopeID < b.ScopeID
	}
	return strings.Compare(a.Name, b.Name) < 0
}

// Tx is the transaction boundary a directory change is staged in. The
// directory defers its final bookkeeping to the outcome of the transaction.
type Tx interface {
	OnCommit(fn func())
	OnAbort(fn func())
}

// Store reflects directory changes into the durable catalog inside tx.
type Store[T Tx] interface {
	Insert(tx T, row Row) error
	Delete(tx T, row Row) error
	Update(tx T, row Row) error
}

type handle struct {
	mu      sync.Mutex
	state   *State
	dropped bool
}

// Directory maps (scope, name) to sequence state. Structural changes take the
// directory lock; value changes only take the per-sequence lock.
type Directory[T Tx] struct {
	store Store[T]

	mu     sync.RWMutex
	byKey  map[Key]*handle
	names  *btree.BTreeG[Key]
	nextID uint32
}

// NewDirectory returns an empty directory backed by store.
func NewDirectory[T Tx](store Store[T]) *Directory[T] {
	return &Directory[T]{
		store:  store,
		byKey:  make(map[Key]*handle),
		names:  btree.NewG[Key](16, keyLess),
		nextID: 1,
	}
}

// Restore installs already-persisted rows. It is used once at startup,
// before any transaction runs.
func (d *Directory[T]) Restore(rows []Row) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range rows {
		st, err := stateFromRow(r)
		if err != nil {
			return errors.Wrapf(err, "restore sequence %d", r.ID)
		}
		k := Key{ScopeID: r.ScopeID, Name: r.Name}
		if _, ok := d.byKey[k]; ok {
			return duplicateName(r.Name)
		}
		d.insertLocked(k, &handle{state: st})
		if r.ID >= d.nextID {
			d.nextID = r.ID + 1
		}
	}
	return nil
}

// Create registers a new sequence and stages its catalog row in tx. The new
// sequence stays locked until tx finishes; if tx aborts it disappears.
func (d *Directory[T]) Create(tx T, scopeID uint32, name string, opts Options) (uint32, error) {
	if err := opts.Validate(); err != nil {
		return 0, err
	}
	k := Key{ScopeID: scopeID, Name: name}

	d.mu.Lock()
	if _, ok := d.byKey[k]; ok {
		d.mu.Unlock()
		return 0, duplicateName(name)
	}
	id := d.nextID
	d.nextID++
	st, err := NewState(id, scopeID, name, opts)
	if err != nil {
		d.mu.Unlock()
		return 0, err
	}
	h := &handle{state: st}
	h.mu.Lock()
	d.insertLocked(k, h)
	d.mu.Unlock()

	undo := func() {
		d.mu.Lock()
		d.removeLocked(k, h)
		d.mu.Unlock()
		h.dropped = true
		h.mu.Unlock()
	}

	if err := d.store.Insert(tx, st.Row()); err != nil {
		undo()
		return 0, err
	}
	tx.OnCommit(h.mu.Unlock)
	tx.OnAbort(undo)
	return id, nil
}

// Drop removes a sequence and stages the catalog delete in tx. Concurrent
// Update calls fail with ErrNotFound as soon as Drop returns.
func (d *Directory[T]) Drop(tx T, scopeID uint32, name string) (Row, error) {
	k := Key{ScopeID: scopeID, Name: name}
	h, err := d.lockHandle(k)
	if err != nil {
		return Row{}, err
	}
	row := h.state.Row()
	if err := d.store.Delete(tx, row); err != nil {
		h.mu.Unlock()
		return Row{}, err
	}
	h.dropped = true

	tx.OnCommit(func() {
		d.mu.Lock()
		d.removeLocked(k, h)
		d.mu.Unlock()
		h.mu.Unlock()
	})
	tx.OnAbort(func() {
		h.dropped = false
		h.mu.Unlock()
	})
	return row, nil
}

// Rename moves a sequence to a new name within its scope. Both names stay
// reserved until tx finishes.
func (d *Directory[T]) Rename(tx T, scopeID uint32, name, newName string) (Row, error) {
	from := Key{ScopeID: scopeID, Name: name}
	to := Key{ScopeID: scopeID, Name: newName}

	h, err := d.lockHandle(from)
	if err != nil {
		return Row{}, err
	}
	old := h.state.Row()

	d.mu.Lock()
	if _, ok := d.byKey[to]; ok {
		d.mu.Unlock()
		h.mu.Unlock()
		return Row{}, duplicateName(newName)
	}
	d.byKey[to] = h
	d.names.ReplaceOrInsert(to)
	h.state.name = newName
	d.mu.Unlock()

	release := func(drop Key) {
		d.mu.Lock()
		if d.byKey[drop] == h {
			delete(d.byKey, drop)
			d.names.Delete(drop)
		}
		d.mu.Unlock()
	}
	undo := func() {
		release(to)
		h.state.restore(old)
		h.mu.Unlock()
	}

	if err := d.store.Update(tx, h.state.Row()); err != nil {
		undo()
		return Row{}, err
	}

	tx.OnCommit(func() {
		release(from)
		h.mu.Unlock()
	})
	tx.OnAbort(undo)
	return old, nil
}

// Update runs fn on the sequence's state while holding its lock. If fn
// fails, every change it made to the state is undone.
func (d *Directory[T]) Update(k Key, fn func(st *State) error) error {
	h, err := d.lockHandle(k)
	if err != nil {
		return err
	}
	defer h.mu.Unlock()

	saved := h.state.Row()
	if err := fn(h.state); err != nil {
		h.state.restore(saved)
		return err
	}
	return nil
}

// Lookup returns a snapshot of the named sequence.
func (d *Directory[T]) Lookup(scopeID uint32, name string) (Row, error) {
	h, err := d.lockHandle(Key{ScopeID: scopeID, Name: name})
	if err != nil {
		return Row{}, err
	}
	defer h.mu.Unlock()
	return h.state.Row(), nil
}

// LookupIdentifier resolves a name to its identifier.
func (d *Directory[T]) LookupIdentifier(name string, scopeID uint32) (uint32, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.byKey[Key{ScopeID: scopeID, Name: name}]
	if !ok {
		return 0, NotFoundError(name)
	}
	return h.state.id, nil
}

// Names lists the sequence names of a scope in order.
func (d *Directory[T]) Names(scopeID uint32) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	d.names.AscendGreaterOrEqual(Key{ScopeID: scopeID}, func(k Key) bool {
		if k.ScopeID != scopeID {
			return false
		}
		out = append(out, k.Name)
		return true
	})
	return out
}

// lockHandle resolves k and returns its handle locked. A handle dropped while
// we waited for its lock counts as absent.
func (d *Directory[T]) lockHandle(k Key) (*handle, error) {
	d.mu.RLock()
	h, ok := d.byKey[k]
	d.mu.RUnlock()
	if !ok {
		return nil, NotFoundError(k.Name)
	}

	h.mu.Lock()
	if h.dropped || h.state.name != k.Name {
		h.mu.Unlock()
		return nil, NotFoundError(k.Name)
	}
	return h, nil
}

func (d *Directory[T]) insertLocked(k Key, h *handle) {
	d.byKey[k] = h
	d.names.ReplaceOrInsert(k)
}

func (d *Directory[T]) removeLocked(k Key, h *handle) {
	if cur, ok := d.byKey[k]; !ok || cur != h {
		return
	}
	delete(d.byKey, k)
	d.names.Delete(k)
}
