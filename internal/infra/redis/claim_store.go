package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClaimStore arbitrates attempt completion across workers with SETNX.
// Claims expire after ttl so a crashed worker cannot hold a token forever.
type ClaimStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClaimStore(client *redis.Client, ttl time.Duration) *ClaimStore {
	return &ClaimStore{client: client, ttl: ttl}
}

func (s *ClaimStore) Claim(ctx context.Context, token string) (bool, error) {
	return s.client.SetNX(ctx, s.key(token), "1", s.ttl).Result()
}

func (s *ClaimStore) Release(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key(token)).Err()
}

func (s *ClaimStore) key(token string) string {
	return "attempt:" + token + ":claim"
}
