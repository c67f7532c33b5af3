// Package lock implements the hierarchical reader/writer lock manager that
// serializes all namespace operations.
//
// Locks are taken on paths, not on Go objects. Holding a lock on a path
// logically holds every ancestor in the mode needed to traverse it, so two
// requests conflict exactly when at least one is exclusive and their paths
// lie on the same root chain (one is an ancestor-or-equal of the other).
// Any number of shared holders may coexist on any set of paths.
//
// Requests are serviced in FIFO arrival order from a single global queue:
// a request is granted only once no earlier enqueued request conflicts with
// it. This prevents writer starvation and gives operations on a single path
// a well-defined serial order.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/corfid/namingd/pkg/dfs"
)

// ErrCancelled is returned when a waiter's context is cancelled, or when the
// manager is closed while the waiter is still queued.
var ErrCancelled = errors.New("lock wait cancelled")

// ErrClosed is returned by Lock after Close.
var ErrClosed = errors.New("lock manager closed")

// request is one entry in the global queue. An entry is enqueued by Lock,
// marked granted once it reaches a conflict-free position, and removed by
// Unlock (or by cancellation while still waiting).
type request struct {
	path      dfs.Path
	exclusive bool
	granted   bool
	err       error
	done      chan struct{}
}

// Manager is the hierarchical lock manager. The zero value is not usable;
// construct with NewManager.
type Manager struct {
	mu     sync.Mutex
	queue  []*request
	closed bool
}

func NewManager() *Manager {
	return &Manager{}
}

// Lock blocks until the requested lock is granted, the context is cancelled,
// or the manager is closed. On a nil return the caller holds the lock and
// must release it with an Unlock carrying the same path and mode. On any
// error return the caller holds nothing.
func (m *Manager) Lock(ctx context.Context, path dfs.Path, exclusive bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	r := &request{
		path:      path,
		exclusive: exclusive,
		done:      make(chan struct{}),
	}
	m.queue = append(m.queue, r)
	m.sweep()

	if r.granted {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	select {
	case <-r.done:
		m.mu.Lock()
		defer m.mu.Unlock()
		return r.err
	case <-ctx.Done():
		m.mu.Lock()
		defer m.mu.Unlock()
		// The grant may have raced the cancellation. The contract is that an
		// error return leaves the caller holding nothing, so give it back.
		m.remove(r)
		m.sweep()
		return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
}

// Unlock releases a previously granted lock. The path and mode must match
// the corresponding Lock call. Unlock never blocks.
func (m *Manager) Unlock(path dfs.Path, exclusive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.queue {
		if r.granted && r.exclusive == exclusive && r.path.Equal(path) {
			m.remove(r)
			m.sweep()
			return
		}
	}
}

// Close fails every queued waiter with ErrCancelled and rejects all future
// Lock calls. Granted holders are left to unlock normally.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true

	remaining := m.queue[:0]
	for _, r := range m.queue {
		if r.granted {
			remaining = append(remaining, r)
			continue
		}
		r.err = ErrCancelled
		close(r.done)
	}
	m.queue = remaining
}

// sweep grants every waiting request that no earlier queue entry conflicts
// with. Called with mu held after every queue change.
func (m *Manager) sweep() {
	for i, r := range m.queue {
		if r.granted {
			continue
		}
		blocked := false
		for _, earlier := range m.queue[:i] {
			if conflicts(earlier, r) {
				blocked = true
				break
			}
		}
		if !blocked {
			r.granted = true
			close(r.done)
		}
	}
}

// remove deletes r from the queue. Called with mu held.
func (m *Manager) remove(target *request) {
	for i, r := range m.queue {
		if r == target {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

// conflicts reports whether two requests exclude each other. Shared requests
// never conflict. When either side is exclusive, the requests conflict iff
// their paths lie on the same root chain: locking a path needs every
// ancestor for traversal, and an exclusive hold on a path covers its whole
// subtree.
func conflicts(a, b *request) bool {
	if !a.exclusive && !b.exclusive {
		return false
	}
	return a.path.IsSubpath(b.path) || b.path.IsSubpath(a.path)
}
