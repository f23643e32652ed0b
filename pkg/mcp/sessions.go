package mcp

import (
	"slices"
	"sync"
)

// SessionRegistry maps MCP sessions to the diagrams they looked at.
// Populated automatically when a client calls a tool naming a diagram.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]map[uint64]struct{} // sessionID → diagrams
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]map[uint64]struct{})}
}

// Watch records that sessionID is interested in diagram.
func (r *SessionRegistry) Watch(sessionID string, diagram uint64) {
	if sessionID == "" || diagram == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[sessionID]
	if !ok {
		set = make(map[uint64]struct{})
		r.sessions[sessionID] = set
	}
	set[diagram] = struct{}{}
}

// Watchers returns the sessions watching diagram, sorted.
func (r *SessionRegistry) Watchers(diagram uint64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for sid, set := range r.sessions {
		if _, ok := set[diagram]; ok {
			out = append(out, sid)
		}
	}
	slices.Sort(out)
	return out
}

// Diagrams returns the diagrams sessionID watches, sorted.
func (r *SessionRegistry) Diagrams(sessionID string) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uint64, 0, len(r.sessions[sessionID]))
	for d := range r.sessions[sessionID] {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// Remove forgets sessionID. Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}
