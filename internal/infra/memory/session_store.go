package memory

import (
	"context"
	"sync"
	"time"

	"timed-exercise-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Entries expire ttl after their last save.
type SessionStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu       sync.RWMutex
	sessions map[string]storedSession
}

type storedSession struct {
	session   domain.ExerciseSession
	expiresAt time.Time
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		clock:    time.Now,
		sessions: make(map[string]storedSession),
	}
}

func (s *SessionStore) Get(_ context.Context, id string) (domain.ExerciseSession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[id]
	if !ok || (s.ttl > 0 && !entry.expiresAt.After(s.clock())) {
		return domain.ExerciseSession{}, false, nil
	}
	return entry.session, true, nil
}

func (s *SessionStore) Save(_ context.Context, sess domain.ExerciseSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	s.sessions[sess.ID] = storedSession{session: sess, expiresAt: now.Add(s.ttl)}
	s.evictLocked(now)
	return nil
}

func (s *SessionStore) evictLocked(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for id, entry := range s.sessions {
		if !entry.expiresAt.After(now) {
			delete(s.sessions, id)
		}
	}
}
