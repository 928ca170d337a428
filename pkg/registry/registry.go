// Package registry tracks live sessions per user. It is process-local state
// mutated on connect/disconnect and read concurrently by the fanout
// dispatcher.
package registry

import "sync"

// Session is one live connection owned by a user. Send pushes a serialized
// message to the peer and may fail independently of any other session.
type Session interface {
	ID() int64
	UserID() string
	Send(payload []byte) error
}

type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[Session]bool
}

func New() *Registry {
	return &Registry{byUser: make(map[string]map[Session]bool)}
}

func (r *Registry) Add(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.byUser[s.UserID()]
	if set == nil {
		set = make(map[Session]bool)
		r.byUser[s.UserID()] = set
	}
	set[s] = true
}

// Remove drops the session and prunes the user's entry once its last session
// is gone.
func (r *Registry) Remove(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byUser[s.UserID()]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(r.byUser, s.UserID())
	}
}

// SessionsFor returns a snapshot of the user's live sessions; safe to iterate
// while connects and disconnects proceed.
func (r *Registry) SessionsFor(userID string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]Session, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// ConnectedUsers lists every user with at least one live session.
func (r *Registry) ConnectedUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		out = append(out, userID)
	}
	return out
}
