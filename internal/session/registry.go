package session

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewSessionID mints a lexically sortable session identifier.
func NewSessionID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Registry holds the live machines of this process, keyed by session ID.
// Sessions evicted from memory survive in the snapshot store and come back
// through Resume.
type Registry struct {
	mu       sync.RWMutex
	machines map[string]*Machine
}

func NewRegistry() *Registry {
	return &Registry{machines: make(map[string]*Machine)}
}

// Put registers a machine under its ID.
func (r *Registry) Put(m *Machine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.machines[m.ID()] = m
}

// Get returns the live machine for id, or ErrSessionNotFound.
func (r *Registry) Get(id string) (*Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return m, nil
}

// Remove evicts a machine. Safe to call for unknown IDs.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.machines, id)
}

// IDs returns the registered session IDs in no particular order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.machines))
	for id := range r.machines {
		out = append(out, id)
	}
	return out
}
