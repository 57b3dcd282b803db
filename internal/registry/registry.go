// Package registry tracks every live participant connection. It is pure
// bookkeeping: opaque id, display name, diagnostic metadata, join time and an
// online flag. All pairing logic lives downstream in internal/match.
package registry

import (
	"strings"
	"sync"
	"time"
)

// Participant is one live connection. The id is stable for the connection's
// lifetime and never reused after unregistration; a reconnecting human gets a
// fresh id with no carried-over state.
type Participant struct {
	ID          string
	DisplayName string
	JoinedAt    time.Time
	Meta        map[string]string // diagnostics only, never read by matching
}

// Registry is a thread-safe participant store with O(1) lookup by id.
type Registry struct {
	mu           sync.RWMutex
	participants map[string]*Participant
	online       map[string]struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		participants: make(map[string]*Participant),
		online:       make(map[string]struct{}),
	}
}

// Register adds a participant under the given id and marks it online. The
// display name is trimmed; no further validation happens here (the transport
// boundary rejects empty names before calling). Registering an id twice
// overwrites the previous record.
func (r *Registry) Register(id, displayName string, meta map[string]string) *Participant {
	p := &Participant{
		ID:          id,
		DisplayName: strings.TrimSpace(displayName),
		JoinedAt:    time.Now(),
		Meta:        meta,
	}

	r.mu.Lock()
	r.participants[id] = p
	r.online[id] = struct{}{}
	r.mu.Unlock()
	return p
}

// Unregister removes the participant and its online flag. It returns true if
// the id was present, false if it was already gone (idempotent).
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	_, ok := r.participants[id]
	delete(r.participants, id)
	delete(r.online, id)
	r.mu.Unlock()
	return ok
}

// Lookup returns the participant for the given id, or nil if not registered.
func (r *Registry) Lookup(id string) *Participant {
	r.mu.RLock()
	p := r.participants[id]
	r.mu.RUnlock()
	return p
}

// DisplayName returns the participant's display name, or "" if unknown.
func (r *Registry) DisplayName(id string) string {
	r.mu.RLock()
	p := r.participants[id]
	r.mu.RUnlock()
	if p == nil {
		return ""
	}
	return p.DisplayName
}

// IsOnline reports whether the id belongs to a registered, still-connected
// participant. The pairing scan skips offline entries without removing them.
func (r *Registry) IsOnline(id string) bool {
	r.mu.RLock()
	_, ok := r.online[id]
	r.mu.RUnlock()
	return ok
}

// MarkOffline clears the online flag without unregistering. Used when the
// transport has seen the connection drop but cleanup is still in flight, so
// concurrently scheduled pairing scans skip the participant safely.
func (r *Registry) MarkOffline(id string) {
	r.mu.Lock()
	delete(r.online, id)
	r.mu.Unlock()
}

// Count returns the number of registered participants.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.participants)
	r.mu.RUnlock()
	return n
}
