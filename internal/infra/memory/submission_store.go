package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"timed-exercise-service/internal/domain"
)

// SubmissionStore keeps submissions in memory, keyed by their natural key.
type SubmissionStore struct {
	mu          sync.RWMutex
	submissions map[domain.SubmissionKey]domain.Submission
	writes      int
}

func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{
		submissions: make(map[domain.SubmissionKey]domain.Submission),
	}
}

func (s *SubmissionStore) Upsert(_ context.Context, sub domain.Submission) (domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sub.Key()
	if existing, ok := s.submissions[key]; ok {
		if existing.Completed {
			return domain.Submission{}, domain.ErrSubmissionCompleted
		}
		sub.ID = existing.ID
	} else {
		sub.ID = uuid.NewString()
	}
	sub.UserAnswers = append([]string(nil), sub.UserAnswers...)
	s.submissions[key] = sub
	s.writes++
	return sub, nil
}

func (s *SubmissionStore) Find(_ context.Context, key domain.SubmissionKey) (domain.Submission, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[key]
	return sub, ok, nil
}

// Writes reports how many upserts were applied.
func (s *SubmissionStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Len reports the number of stored submissions.
func (s *SubmissionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.submissions)
}
