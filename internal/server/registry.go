package server

import (
	"io"
	"sync"
)

// Registry tracks the session channels of connected clients so that data
// from one session can be broadcast to the others.
type Registry struct {
	mu       sync.Mutex
	nextID   uint64
	sessions map[uint64]io.Writer
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uint64]io.Writer),
	}
}

// Add registers a session writer and returns its id.
func (r *Registry) Add(w io.Writer) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.sessions[id] = w
	return id
}

// Remove drops a session from the registry. Removing an unknown id is a
// no-op, so teardown paths can race without double-frees.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Broadcast writes data to every registered session except exceptID and
// returns the number of sessions written to. Write errors are ignored; a
// dying session is cleaned up by its own handler.
func (r *Registry) Broadcast(exceptID uint64, data []byte) int {
	// Snapshot under the lock, write outside it. A slow client must not
	// stall registration of new sessions.
	r.mu.Lock()
	targets := make([]io.Writer, 0, len(r.sessions))
	for id, w := range r.sessions {
		if id != exceptID {
			targets = append(targets, w)
		}
	}
	r.mu.Unlock()

	for _, w := range targets {
		_, _ = w.Write(data)
	}
	return len(targets)
}
