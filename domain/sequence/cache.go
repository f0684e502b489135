package sequence

import "sync"

// cacheKey is the composite (session namespace, sequence name) key. A
// namespace belongs to one scope, so the pair is unambiguous.
type cacheKey struct {
	namespace string
	name      string
}

type cacheEntry struct {
	value   int64
	scopeID uint32
}

// CurrValCache remembers, per session namespace, the last value nextval
// returned for each sequence. It is shared by all sessions so that a drop or
// rename can evict a sequence everywhere at once.
//
// Every primary entry is reachable from both reverse indexes, and eviction
// removes it from all three maps together. The by-name index is keyed by
// (scope, name) since names repeat across scopes.
type CurrValCache struct {
	mu          sync.Mutex
	values      map[cacheKey]cacheEntry
	byNamespace map[string]map[string]struct{}
	byName      map[Key]map[string]struct{}
}

func NewCurrValCache() *CurrValCache {
	return &CurrValCache{
		values:      make(map[cacheKey]cacheEntry),
		byNamespace: make(map[string]map[string]struct{}),
		byName:      make(map[Key]map[string]struct{}),
	}
}

// Put records v as the current value of name for the namespace, whose
// session resolves names in scopeID.
func (c *CurrValCache) Put(namespace string, scopeID uint32, name string, v int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := cacheKey{namespace: namespace, name: name}
	if prev, ok := c.values[k]; ok && prev.scopeID != scopeID {
		removeIndex(c.byName, Key{ScopeID: prev.scopeID, Name: name}, namespace)
	}
	c.values[k] = cacheEntry{value: v, scopeID: scopeID}
	addIndex(c.byNamespace, namespace, name)
	addIndex(c.byName, Key{ScopeID: scopeID, Name: name}, namespace)
}

// Contains reports whether the namespace has fetched name before.
func (c *CurrValCache) Contains(namespace, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[cacheKey{namespace: namespace, name: name}]
	return ok
}

// Get returns the cached value, or an ErrCurrValUndefined error when the
// namespace never called nextval on name.
func (c *CurrValCache) Get(namespace, name string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.values[cacheKey{namespace: namespace, name: name}]
	if !ok {
		return 0, currValUndefined(name)
	}
	return e.value, nil
}

// Evict drops a single entry.
func (c *CurrValCache) Evict(namespace, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(cacheKey{namespace: namespace, name: name})
}

// EvictByNamespace drops every entry of a session.
func (c *CurrValCache) EvictByNamespace(namespace string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := c.byNamespace[namespace]
	n := len(names)
	for name := range names {
		c.evictLocked(cacheKey{namespace: namespace, name: name})
	}
	return n
}

// EvictBySequenceName drops the entries of the sequence scopeID/name across
// all sessions. Sequences of the same name in other scopes are untouched.
func (c *CurrValCache) EvictBySequenceName(scopeID uint32, name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	namespaces := c.byName[Key{ScopeID: scopeID, Name: name}]
	n := len(namespaces)
	for ns := range namespaces {
		c.evictLocked(cacheKey{namespace: ns, name: name})
	}
	return n
}

func (c *CurrValCache) evictLocked(k cacheKey) {
	e, ok := c.values[k]
	if !ok {
		return
	}
	delete(c.values, k)
	removeIndex(c.byNamespace, k.namespace, k.name)
	removeIndex(c.byName, Key{ScopeID: e.scopeID, Name: k.name}, k.namespace)
}

func addIndex[K comparable](idx map[K]map[string]struct{}, outer K, inner string) {
	set, ok := idx[outer]
	if !ok {
		set = make(map[string]struct{})
		idx[outer] = set
	}
	set[inner] = struct{}{}
}

func removeIndex[K comparable](idx map[K]map[string]struct{}, outer K, inner string) {
	set, ok := idx[outer]
	if !ok {
		return
	}
	delete(set, inner)
	if len(set) == 0 {
		delete(idx, outer)
	}
}
