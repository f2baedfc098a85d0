package flight

import "sync"

// Registry maps keys to long-lived handles (running downloads) with an atomic
// get-or-create.
type Registry[V any] struct {
	mu    sync.Mutex
	items map[string]V
}

func NewRegistry[V any]() *Registry[V] {
	return &Registry[V]{items: make(map[string]V)}
}

// GetOrCreate returns the handle registered for key, or registers the one built
// by create. created is true when create was called. create runs under the
// registry lock and must not block.
func (r *Registry[V]) GetOrCreate(key string, create func() V) (v V, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.items[key]; ok {
		return existing, false
	}
	v = create()
	r.items[key] = v
	return v, true
}

func (r *Registry[V]) Get(key string) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[key]
	return v, ok
}

func (r *Registry[V]) Delete(key string) {
	r.mu.Lock()
	delete(r.items, key)
	r.mu.Unlock()
}

func (r *Registry[V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
