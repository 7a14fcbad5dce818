package worker

import (
	"context"
	"sync"
)

// Registry is an in-memory Provider.
type Registry struct {
	mu      sync.RWMutex
	workers []Worker
}

// NewRegistry creates a registry holding workers.
func NewRegistry(workers ...Worker) *Registry {
	return &Registry{workers: append([]Worker(nil), workers...)}
}

// Register adds w, replacing any worker with the same ID.
func (r *Registry) Register(w Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.workers {
		if existing.ID() == w.ID() {
			r.workers[i] = w
			return
		}
	}
	r.workers = append(r.workers, w)
}

// SelectWorkers returns the registered workers matching sel, in registration
// order.
func (r *Registry) SelectWorkers(ctx context.Context, sel Selector) ([]Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Worker
	for _, w := range r.workers {
		if sel.Matches(w) {
			out = append(out, w)
		}
	}
	return out, nil
}

// Len returns the number of registered workers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}
