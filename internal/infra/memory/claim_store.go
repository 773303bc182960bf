package memory

import (
	"context"
	"sync"
	"time"
)

// ClaimStore grants each token's completion claim once within a single process.
type ClaimStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu     sync.Mutex
	claims map[string]time.Time
}

func NewClaimStore(ttl time.Duration) *ClaimStore {
	return &ClaimStore{
		ttl:    ttl,
		clock:  time.Now,
		claims: make(map[string]time.Time),
	}
}

func (s *ClaimStore) Claim(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	for t, expiresAt := range s.claims {
		if !expiresAt.After(now) {
			delete(s.claims, t)
		}
	}
	if _, taken := s.claims[token]; taken {
		return false, nil
	}
	s.claims[token] = now.Add(s.ttl)
	return true, nil
}

func (s *ClaimStore) Release(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, token)
	return nil
}
