// Package discovery keeps the results of a discovery session: BLE
// advertisements during provisioning and OSC services found over mDNS.
package discovery

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Registry is an insertion-ordered set of discovered items keyed by their
// identity. The first sighting of a key wins; later sightings are dropped
// so an entry never changes once reported.
type Registry[K comparable, V any] struct {
	mu      sync.RWMutex
	entries *orderedmap.OrderedMap[K, V]
	nameOf  func(V) string
}

// NewRegistry creates an empty registry. nameOf returns the name an item
// was discovered under and is used by RemoveByName; it may be nil.
func NewRegistry[K comparable, V any](nameOf func(V) string) *Registry[K, V] {
	return &Registry[K, V]{
		entries: orderedmap.New[K, V](),
		nameOf:  nameOf,
	}
}

// Add records v under key. It reports false, leaving the registry
// unchanged, when key is already present.
func (r *Registry[K, V]) Add(key K, v V) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries.Get(key); ok {
		return false
	}
	r.entries.Set(key, v)
	return true
}

// Get returns the item stored under key.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries.Get(key)
}

// Remove deletes key and reports whether it was present.
func (r *Registry[K, V]) Remove(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries.Delete(key)
	return ok
}

// RemoveByName deletes every item discovered under name and returns how
// many were removed.
func (r *Registry[K, V]) RemoveByName(name string) int {
	if r.nameOf == nil {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var doomed []K
	for pair := r.entries.Oldest(); pair != nil; pair = pair.Next() {
		if r.nameOf(pair.Value) == name {
			doomed = append(doomed, pair.Key)
		}
	}
	for _, k := range doomed {
		r.entries.Delete(k)
	}
	return len(doomed)
}

// List returns the items in discovery order.
func (r *Registry[K, V]) List() []V {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]V, 0, r.entries.Len())
	for pair := r.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Len returns the number of items.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries.Len()
}

// Reset forgets everything.
func (r *Registry[K, V]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = orderedmap.New[K, V]()
}
