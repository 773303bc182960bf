package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"timed-exercise-service/internal/domain"
)

// ExerciseLoader fetches catalog content from a backing store (e.g., document DB).
type ExerciseLoader interface {
	LoadExercise(ctx context.Context, slug string) (domain.Exercise, error)
	LoadExercises(ctx context.Context) ([]domain.Exercise, error)
}

// ExerciseRepository caches exercises with TTL to avoid repeated DB hits.
type ExerciseRepository struct {
	loader ExerciseLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedExercise
}

type cachedExercise struct {
	exercise  domain.Exercise
	expiresAt time.Time
}

func NewExerciseRepository(loader ExerciseLoader, ttl time.Duration) *ExerciseRepository {
	return &ExerciseRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedExercise),
	}
}

func (r *ExerciseRepository) GetExercise(ctx context.Context, slug string) (domain.Exercise, error) {
	if ex, ok := r.cached(slug); ok {
		return ex, nil
	}

	result, err, _ := r.sf.Do(slug, func() (interface{}, error) {
		if ex, ok := r.cached(slug); ok {
			return ex, nil
		}

		ex, err := r.loader.LoadExercise(ctx, slug)
		if err != nil {
			return domain.Exercise{}, err
		}
		r.store(ex)
		return ex, nil
	})
	if err != nil {
		return domain.Exercise{}, err
	}
	return result.(domain.Exercise), nil
}

// ListExercises always reads through to the loader and refreshes the per-slug cache.
func (r *ExerciseRepository) ListExercises(ctx context.Context) ([]domain.Exercise, error) {
	result, err, _ := r.sf.Do("\x00list", func() (interface{}, error) {
		exercises, err := r.loader.LoadExercises(ctx)
		if err != nil {
			return nil, err
		}
		for _, ex := range exercises {
			r.store(ex)
		}
		return exercises, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Exercise), nil
}

func (r *ExerciseRepository) cached(slug string) (domain.Exercise, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.cache[slug]; ok && entry.expiresAt.After(now) {
		return entry.exercise, true
	}
	return domain.Exercise{}, false
}

func (r *ExerciseRepository) store(ex domain.Exercise) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[ex.Slug] = cachedExercise{
		exercise:  ex,
		expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
	}
}

func (r *ExerciseRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticExerciseLoader is a simple loader backed by an in-memory map (useful for tests/demos).
// It also accepts seeding so the memory backend can be populated like Postgres.
type StaticExerciseLoader struct {
	mu        sync.RWMutex
	exercises map[string]domain.Exercise
}

func NewStaticExerciseLoader(exercises []domain.Exercise) *StaticExerciseLoader {
	l := &StaticExerciseLoader{exercises: make(map[string]domain.Exercise, len(exercises))}
	_ = l.InsertExercises(context.Background(), exercises)
	return l
}

func (l *StaticExerciseLoader) LoadExercise(_ context.Context, slug string) (domain.Exercise, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if ex, ok := l.exercises[slug]; ok {
		return ex, nil
	}
	return domain.Exercise{}, domain.ErrExerciseNotFound
}

func (l *StaticExerciseLoader) LoadExercises(_ context.Context) ([]domain.Exercise, error) {
	l.mu.RLock()
	out := make([]domain.Exercise, 0, len(l.exercises))
	for _, ex := range l.exercises {
		out = append(out, ex)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Slug < out[j].Slug
	})
	return out, nil
}

func (l *StaticExerciseLoader) CountExercises(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.exercises), nil
}

// InsertExercises adds exercises, keeping existing entries with the same slug.
func (l *StaticExerciseLoader) InsertExercises(_ context.Context, exercises []domain.Exercise) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ex := range exercises {
		if _, exists := l.exercises[ex.Slug]; exists {
			continue
		}
		if ex.ID == "" {
			ex.ID = ex.Slug
		}
		l.exercises[ex.Slug] = ex
	}
	return nil
}
