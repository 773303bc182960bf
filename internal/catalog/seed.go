// Package catalog holds the built-in exercise catalog and seeds it into an empty store.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"timed-exercise-service/internal/domain"
)

// Store is the write side of an exercise backing store.
type Store interface {
	CountExercises(ctx context.Context) (int, error)
	InsertExercises(ctx context.Context, exercises []domain.Exercise) error
}

var seededAt = time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)

// ExerciseID derives a stable identifier from the slug so reseeding keeps ids.
func ExerciseID(slug string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("exercise:"+slug)).String()
}

// Defaults returns the built-in exercises in catalog order.
func Defaults() []domain.Exercise {
	exercises := []domain.Exercise{
		{
			Title:       "Монгол хэлний нэр үгийн дасгал",
			Slug:        "mongolian-noun-exercise",
			Description: "Нэр үгийн зөв хэрэглээг олоорой.",
			Questions:   []string{"Над __________ ном бий.", "Тэр __________ ирсэн."},
			Answers:     []string{"ном", "сургуулиас"},
			Subject:     "Монгол хэл",
		},
		{
			Title:       "Англи хэлний үйл үгийн дасгал",
			Slug:        "english-verb-exercise",
			Description: "Өгүүлбэрт тохирох үйл үгийг нөхөж бичээрэй.",
			Questions:   []string{"She __________ to the store every day.", "They __________ playing football now."},
			Answers:     []string{"goes", "are"},
			Subject:     "Англи хэл",
		},
		{
			Title:       "Монгол хэлний цагийн дасгал",
			Slug:        "mongolian-tense-exercise",
			Description: "Өгөгдсөн үгсийг зөв цагт хувиргаарай.",
			Questions:   []string{"Би ____ (ирэх) өнөөдөр.", "Тэд ____ (явах) маргааш."},
			Answers:     []string{"ирсэн", "явна"},
			Subject:     "Монгол хэл",
		},
		{
			Title:       "Физикийн дасгал: Хүч",
			Slug:        "physics-force-exercise",
			Description: "Хүчний тухай мэдлэгээ шалгаарай.",
			Questions:   []string{"Энергийн нэгж нь __________ юм.", "Хүчний нэгж нь __________ юм."},
			Answers:     []string{"жоуль", "ньютон"},
			Subject:     "Физик",
		},
		{
			Title:       "Математикийн дасгал: Үржүүлэх",
			Slug:        "math-multiplication-exercise",
			Description: "Үржүүлэх үйлдлийг гүйцэтгээрэй.",
			Questions:   []string{"5 * 7 = ?", "12 * 3 = ?"},
			Answers:     []string{"35", "36"},
			Subject:     "Математик",
		},
	}
	for i := range exercises {
		exercises[i].ID = ExerciseID(exercises[i].Slug)
		exercises[i].Type = domain.ExerciseTypeFillInTheBlank
		exercises[i].CreatedAt = seededAt.Add(time.Duration(i) * time.Second)
	}
	return exercises
}

// Seed inserts exercises into store when it is empty. It reports whether anything was written.
func Seed(ctx context.Context, store Store, exercises []domain.Exercise, log zerolog.Logger) (bool, error) {
	n, err := store.CountExercises(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		log.Debug().Int("count", n).Msg("catalog already populated, skipping seed")
		return false, nil
	}

	for _, ex := range exercises {
		if err := ex.Validate(); err != nil {
			return false, fmt.Errorf("seed catalog: %w", err)
		}
	}
	if err := store.InsertExercises(ctx, exercises); err != nil {
		return false, err
	}
	log.Info().Int("count", len(exercises)).Msg("seeded example exercises")
	return true, nil
}
