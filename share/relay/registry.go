package relay

import "sync"

// Registry tracks the live sessions of one service. It is the sole
// owner of a Session between Put and Remove; everything else holds only
// the session id.
type Registry struct {
	mu       sync.Mutex
	sessions map[int32]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int32]*Session)}
}

// Put inserts a session under its id.
func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
}

// Get looks a session up by id.
func (r *Registry) Get(id int32) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes a session by id. Removing an id that is not present is
// a no-op, so natural completion and explicit stops can race safely.
func (r *Registry) Remove(id int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// StopAll requests closure of every live session and clears the map.
// Completion is asynchronous; each session's relay observes the closed
// endpoints and finishes on its own.
func (r *Registry) StopAll() {
	r.mu.Lock()
	stopping := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		stopping = append(stopping, s)
	}
	r.sessions = make(map[int32]*Session)
	r.mu.Unlock()
	for _, s := range stopping {
		s.Stop()
	}
}
