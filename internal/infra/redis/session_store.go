package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"timed-exercise-service/internal/domain"
)

// SessionStore is a Redis implementation of app.SessionRepository, so that
// every worker behind the load balancer sees the same browser sessions.
// Sessions are stored as JSON under websession:{id} and expire ttl after their last save.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Get(ctx context.Context, id string) (domain.ExerciseSession, bool, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if isMiss(err) {
		return domain.ExerciseSession{}, false, nil
	}
	if err != nil {
		return domain.ExerciseSession{}, false, err
	}
	var sess domain.ExerciseSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return domain.ExerciseSession{}, false, fmt.Errorf("decode session %s: %w", id, err)
	}
	return sess, true, nil
}

func (s *SessionStore) Save(ctx context.Context, sess domain.ExerciseSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(sess.ID), raw, s.ttl).Err()
}

func (s *SessionStore) key(id string) string {
	return "websession:" + id
}
