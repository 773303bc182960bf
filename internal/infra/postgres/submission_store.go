package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"timed-exercise-service/internal/domain"
)

// SubmissionStore persists submissions keyed by (exercise_id, session_token, user_name).
// A completed row is never overwritten; the conditional upsert reports it as
// domain.ErrSubmissionCompleted so concurrent workers cannot record two results.
type SubmissionStore struct {
	pool *pgxpool.Pool
}

func NewSubmissionStore(pool *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{pool: pool}
}

const upsertSubmissionSQL = `
INSERT INTO submissions (
    id, exercise_id, session_token, user_name, user_answers,
    score, total_questions, completed, timed_out, left_page, submitted_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (exercise_id, session_token, user_name) DO UPDATE SET
    user_answers    = EXCLUDED.user_answers,
    score           = EXCLUDED.score,
    total_questions = EXCLUDED.total_questions,
    completed       = EXCLUDED.completed,
    timed_out       = EXCLUDED.timed_out,
    left_page       = EXCLUDED.left_page,
    submitted_at    = EXCLUDED.submitted_at
WHERE submissions.completed = false
RETURNING id`

func (s *SubmissionStore) Upsert(ctx context.Context, sub domain.Submission) (domain.Submission, error) {
	answers, err := json.Marshal(sub.UserAnswers)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("marshal answers: %w", err)
	}

	var id string
	err = s.pool.QueryRow(ctx, upsertSubmissionSQL,
		uuid.NewString(), sub.ExerciseID, sub.SessionToken, sub.UserName, answers,
		sub.Score, sub.TotalQuestions, sub.Completed, sub.TimedOut, sub.LeftPage, sub.SubmittedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Submission{}, domain.ErrSubmissionCompleted
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("upsert submission: %w", err)
	}
	sub.ID = id
	return sub, nil
}

func (s *SubmissionStore) Find(ctx context.Context, key domain.SubmissionKey) (domain.Submission, bool, error) {
	var (
		id      string
		answers []byte
		sub     = domain.Submission{
			ExerciseID:   key.ExerciseID,
			SessionToken: key.SessionToken,
			UserName:     key.UserName,
		}
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_answers, score, total_questions, completed, timed_out, left_page, submitted_at
		FROM submissions
		WHERE exercise_id=$1 AND session_token=$2 AND user_name=$3`,
		key.ExerciseID, key.SessionToken, key.UserName,
	).Scan(&id, &answers, &sub.Score, &sub.TotalQuestions, &sub.Completed, &sub.TimedOut, &sub.LeftPage, &sub.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Submission{}, false, nil
	}
	if err != nil {
		return domain.Submission{}, false, fmt.Errorf("find submission: %w", err)
	}
	if err := json.Unmarshal(answers, &sub.UserAnswers); err != nil {
		return domain.Submission{}, false, fmt.Errorf("unmarshal answers: %w", err)
	}
	sub.ID = id
	return sub, true, nil
}
