package tree

import (
	"context"
	"sync"
)

// Provider is a hierarchical data source for one sidebar view.
type Provider interface {
	// GetChildren returns the roots for a nil parent, else the parent's
	// children.
	GetChildren(parent Node) []Node
	// Refresh notifies subscribers that the hierarchy changed.
	Refresh()
	// UpdateData re-fetches, replaces the state and calls Refresh. On
	// failure the state is reset to empty before Refresh runs.
	UpdateData(ctx context.Context) error
	// Subscribe registers fn for change notifications.
	Subscribe(fn func()) (cancel func())
}

type emitter struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func()
}

func (e *emitter) Subscribe(fn func()) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = map[int]func(){}
	}
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

// Refresh calls listeners outside the lock so they may read the provider.
func (e *emitter) Refresh() {
	e.mu.Lock()
	fns := make([]func(), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
