package cart

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Registry hands out one live Cart per owner, loading it from storage on
// first use. Watchers registered through Subscribe follow the owner rather
// than a particular Cart, so they keep receiving changes after the cart is
// evicted and loaded again.
type Registry struct {
	storage Storage
	log     zerolog.Logger

	mu        sync.Mutex
	carts     map[string]*Cart
	watchers  map[string]map[int]*watcher
	nextWatch int
}

type watcher struct {
	fn     func([]Item)
	detach func()
}

func NewRegistry(storage Storage, log zerolog.Logger) *Registry {
	return &Registry{
		storage:  storage,
		log:      log,
		carts:    map[string]*Cart{},
		watchers: map[string]map[int]*watcher{},
	}
}

func (r *Registry) For(ctx context.Context, owner string) (*Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx, owner)
}

// load must be called with r.mu held.
func (r *Registry) load(ctx context.Context, owner string) (*Cart, error) {
	if c, ok := r.carts[owner]; ok {
		return c, nil
	}
	c, err := Load(ctx, owner, r.storage, r.log)
	if err != nil {
		return nil, err
	}
	r.carts[owner] = c
	for _, w := range r.watchers[owner] {
		w.detach = c.Subscribe(w.fn)
	}
	return c, nil
}

// Subscribe calls fn with owner's current items and again after every
// committed change, across evictions, until the returned function is called.
func (r *Registry) Subscribe(ctx context.Context, owner string, fn func([]Item)) (unsubscribe func(), err error) {
	r.mu.Lock()
	c, err := r.load(ctx, owner)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	id := r.nextWatch
	r.nextWatch++
	w := &watcher{fn: fn, detach: c.Subscribe(fn)}
	if r.watchers[owner] == nil {
		r.watchers[owner] = map[int]*watcher{}
	}
	r.watchers[owner][id] = w
	r.mu.Unlock()

	fn(c.Items())

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			w.detach()
			delete(r.watchers[owner], id)
			if len(r.watchers[owner]) == 0 {
				delete(r.watchers, owner)
			}
		})
	}, nil
}

// Evict drops the in-memory cart; the stored copy stays. Watchers are
// moved to the next Cart loaded for owner.
func (r *Registry) Evict(owner string) {
	r.mu.Lock()
	delete(r.carts, owner)
	for _, w := range r.watchers[owner] {
		w.detach()
		w.detach = func() {}
	}
	r.mu.Unlock()
	r.log.Debug().Str("owner", owner).Msg("cart evicted")
}

// Loaded reports whether owner's cart is in memory.
func (r *Registry) Loaded(owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.carts[owner]
	return ok
}

// Watchers is the number of live Subscribe registrations for owner.
func (r *Registry) Watchers(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watchers[owner])
}
