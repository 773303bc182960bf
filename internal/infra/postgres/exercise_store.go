package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"timed-exercise-service/internal/domain"
)

// ExerciseStore loads and seeds exercise JSONB documents in Postgres.
type ExerciseStore struct {
	pool *pgxpool.Pool
}

func NewExerciseStore(pool *pgxpool.Pool) *ExerciseStore {
	return &ExerciseStore{pool: pool}
}

func (s *ExerciseStore) LoadExercise(ctx context.Context, slug string) (domain.Exercise, error) {
	var (
		id  string
		raw []byte
	)
	err := s.pool.QueryRow(ctx, `SELECT id, data FROM exercises WHERE slug=$1`, slug).Scan(&id, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Exercise{}, fmt.Errorf("load exercise %s: %w", slug, domain.ErrExerciseNotFound)
	}
	if err != nil {
		return domain.Exercise{}, fmt.Errorf("load exercise: %w", err)
	}
	return decodeExercise(id, raw)
}

func (s *ExerciseStore) LoadExercises(ctx context.Context) ([]domain.Exercise, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, data FROM exercises ORDER BY created_at, slug`)
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	defer rows.Close()

	var exercises []domain.Exercise
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		ex, err := decodeExercise(id, raw)
		if err != nil {
			return nil, err
		}
		exercises = append(exercises, ex)
	}
	return exercises, rows.Err()
}

// CountExercises reports the catalog size.
func (s *ExerciseStore) CountExercises(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM exercises`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count exercises: %w", err)
	}
	return n, nil
}

// InsertExercises adds exercises in one transaction, skipping slugs that already exist.
func (s *ExerciseStore) InsertExercises(ctx context.Context, exercises []domain.Exercise) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, ex := range exercises {
		raw, err := json.Marshal(ex)
		if err != nil {
			return fmt.Errorf("marshal exercise %s: %w", ex.Slug, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO exercises (id, slug, subject, data, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (slug) DO NOTHING`,
			ex.ID, ex.Slug, ex.Subject, raw, ex.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert exercise %s: %w", ex.Slug, err)
		}
	}
	return tx.Commit(ctx)
}

func decodeExercise(id string, raw []byte) (domain.Exercise, error) {
	var ex domain.Exercise
	if err := json.Unmarshal(raw, &ex); err != nil {
		return domain.Exercise{}, fmt.Errorf("unmarshal exercise: %w", err)
	}
	ex.ID = id
	return ex, nil
}
