package memory

import (
	"sync"

	"timed-exercise-service/internal/app"
)

// AttemptRegistry is an in-memory implementation of app.AttemptRegistry.
type AttemptRegistry struct {
	mu       sync.RWMutex
	attempts map[string]*app.Attempt
}

func NewAttemptRegistry() *AttemptRegistry {
	return &AttemptRegistry{
		attempts: make(map[string]*app.Attempt),
	}
}

func (r *AttemptRegistry) Add(a *app.Attempt) *app.Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.attempts[a.Token]; ok {
		return existing
	}
	r.attempts[a.Token] = a
	return a
}

func (r *AttemptRegistry) Get(token string) (*app.Attempt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.attempts[token]
	return a, ok
}

func (r *AttemptRegistry) Delete(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, token)
}

// Len reports the number of tracked attempts.
func (r *AttemptRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.attempts)
}
