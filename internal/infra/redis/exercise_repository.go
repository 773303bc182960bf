package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"timed-exercise-service/internal/domain"
)

// ExerciseLoader fetches catalog content from a backing store (e.g., Postgres).
type ExerciseLoader interface {
	LoadExercise(ctx context.Context, slug string) (domain.Exercise, error)
	LoadExercises(ctx context.Context) ([]domain.Exercise, error)
}

// ExerciseRepository caches exercises in Redis as JSON documents and falls back to a loader on cache miss.
// Exercises are stored as:  SET exercise:{slug} {json}
// The catalog is stored as: SET exercises:all  {json array}
type ExerciseRepository struct {
	client *redis.Client
	loader ExerciseLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewExerciseRepository(client *redis.Client, loader ExerciseLoader, ttl time.Duration) *ExerciseRepository {
	return &ExerciseRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ExerciseRepository) GetExercise(ctx context.Context, slug string) (domain.Exercise, error) {
	if ex, ok := r.cached(ctx, slug); ok {
		return ex, nil
	}

	result, err, _ := r.sf.Do(slug, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if ex, ok := r.cached(ctx, slug); ok {
			return ex, nil
		}

		ex, err := r.loader.LoadExercise(ctx, slug)
		if err != nil {
			return domain.Exercise{}, err
		}
		if raw, err := json.Marshal(ex); err == nil {
			_ = r.client.Set(ctx, exerciseKey(slug), raw, r.ttlWithJitter()).Err()
		}
		return ex, nil
	})
	if err != nil {
		return domain.Exercise{}, err
	}
	return result.(domain.Exercise), nil
}

func (r *ExerciseRepository) ListExercises(ctx context.Context) ([]domain.Exercise, error) {
	if raw, err := r.client.Get(ctx, catalogKey).Bytes(); err == nil {
		var list []domain.Exercise
		if json.Unmarshal(raw, &list) == nil {
			return list, nil
		}
	}

	result, err, _ := r.sf.Do(catalogKey, func() (interface{}, error) {
		list, err := r.loader.LoadExercises(ctx)
		if err != nil {
			return nil, err
		}
		// An empty catalog is not cached so a later seed shows up immediately.
		if len(list) == 0 {
			return list, nil
		}
		ttl := r.ttlWithJitter()
		pipe := r.client.Pipeline()
		if raw, err := json.Marshal(list); err == nil {
			pipe.Set(ctx, catalogKey, raw, ttl)
		}
		for _, ex := range list {
			if raw, err := json.Marshal(ex); err == nil {
				pipe.Set(ctx, exerciseKey(ex.Slug), raw, ttl)
			}
		}
		_, _ = pipe.Exec(ctx)
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Exercise), nil
}

// Invalidate drops the cached catalog and the given exercises.
func (r *ExerciseRepository) Invalidate(ctx context.Context, slugs ...string) error {
	keys := []string{catalogKey}
	for _, slug := range slugs {
		keys = append(keys, exerciseKey(slug))
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *ExerciseRepository) cached(ctx context.Context, slug string) (domain.Exercise, bool) {
	raw, err := r.client.Get(ctx, exerciseKey(slug)).Bytes()
	if err != nil {
		return domain.Exercise{}, false
	}
	var ex domain.Exercise
	if err := json.Unmarshal(raw, &ex); err != nil {
		return domain.Exercise{}, false
	}
	return ex, true
}

const catalogKey = "exercises:all"

func exerciseKey(slug string) string {
	return "exercise:" + slug
}

func (r *ExerciseRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func isMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}
