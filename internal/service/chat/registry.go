package chat

import (
	"sync"
	"time"

	"github.com/zhouzirui/flowchat/internal/model/persona"
)

// Registry keeps one Store per UI session so transcripts and active ids are
// never shared between browsers.
type Registry struct {
	personas persona.Store
	notifier Notifier

	mu     sync.Mutex
	stores map[string]*Store
}

// NewRegistry creates an empty registry. notifier may be nil.
func NewRegistry(personas persona.Store, notifier Notifier) *Registry {
	return &Registry{
		personas: personas,
		notifier: notifier,
		stores:   make(map[string]*Store),
	}
}

// Acquire returns the store for key, creating it on first use.
func (r *Registry) Acquire(key string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	store, ok := r.stores[key]
	if !ok {
		store = NewStore(key, r.personas, r.notifier)
		r.stores[key] = store
		return store
	}
	store.touch()
	return store
}

// Lookup returns the store for key without creating one.
func (r *Registry) Lookup(key string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	store, ok := r.stores[key]
	return store, ok
}

// Len reports how many UI sessions are held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Prune drops stores unused for longer than idle and returns how many were removed.
// Stores with a turn in flight are kept.
func (r *Registry) Prune(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, store := range r.stores {
		if store.Pending() || store.idleSince().After(cutoff) {
			continue
		}
		delete(r.stores, key)
		removed++
	}
	return removed
}
