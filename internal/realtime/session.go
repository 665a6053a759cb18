package realtime

import (
	"sync"
	"time"
)

// Session is the identity of a connection, fixed at handshake.  UserID
// is nil for anonymous watchers.
type Session struct {
	ID          string
	UserID      *uint64
	Email       string
	RemoteAddr  string
	ConnectedAt time.Time
}

// Authenticated reports whether the session carries a bidder identity.
func (s Session) Authenticated() bool { return s.UserID != nil }

// Sessions is the registry of live connections.
type Sessions struct {
	mu sync.RWMutex
	m  map[string]Session
}

func NewSessions() *Sessions { return &Sessions{m: map[string]Session{}} }

func (s *Sessions) Add(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sess.ID] = sess
}

func (s *Sessions) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.m[id]
	return sess, ok
}

func (s *Sessions) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
}

func (s *Sessions) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
