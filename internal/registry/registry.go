// Package registry caches per-user resources (checkpoint store handle,
// digger, writer) behind once-per-key lazy initialization: two simultaneous
// first requests for a new user run the expensive setup exactly once, with
// the second caller awaiting the first's result.
package registry

import (
	"context"
	"sync"

	"github.com/anvh/mentora/internal/checkpoint"
)

// Resources holds everything scoped to one user.
type Resources struct {
	Checkpoints checkpoint.Store
	Digger      *checkpoint.Digger
	Writer      *checkpoint.Writer
}

// InitFunc performs the expensive per-user setup.
type InitFunc func(ctx context.Context, userID string) (*Resources, error)

type entry struct {
	ready chan struct{} // closed when init finished
	res   *Resources
	err   error
}

type Registry struct {
	init    InitFunc
	mu      sync.Mutex
	entries map[string]*entry
}

func New(init InitFunc) *Registry {
	return &Registry{
		init:    init,
		entries: make(map[string]*entry),
	}
}

// Get returns the user's resources, initializing them on first access. A
// failed initialization is not cached: the next call retries.
func (r *Registry) Get(ctx context.Context, userID string) (*Resources, error) {
	r.mu.Lock()
	e, ok := r.entries[userID]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		r.entries[userID] = e
	}
	r.mu.Unlock()

	if ok {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-e.ready:
			return e.res, e.err
		}
	}

	e.res, e.err = r.init(ctx, userID)
	if e.err != nil {
		r.mu.Lock()
		if r.entries[userID] == e {
			delete(r.entries, userID)
		}
		r.mu.Unlock()
	}
	close(e.ready)
	return e.res, e.err
}

// Close releases every initialized resource.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		select {
		case <-e.ready:
		case <-ctx.Done():
			return
		}
		if e.err == nil && e.res != nil && e.res.Checkpoints != nil {
			_ = e.res.Checkpoints.Close(ctx)
		}
	}
}
