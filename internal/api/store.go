package api

import (
	"sync"

	"github.com/AreslotLLC/kuchikomi/internal/services"
)

// sessionStore keeps in-flight survey sessions in memory. Each session
// is owned by one visitor; the store only guards the map itself.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*services.Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: map[string]*services.Session{}}
}

func (s *sessionStore) AddSession(sess *services.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *sessionStore) GetSession(id string) *services.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}
