package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"timed-exercise-service/internal/app"
	"timed-exercise-service/internal/domain"
)

func TestAttemptRegistryLifecycle(t *testing.T) {
	registry := NewAttemptRegistry()

	first := app.NewAttempt(domain.ExerciseSession{ID: "s1", SessionToken: "tok-1"})
	if got := registry.Add(first); got != first {
		t.Fatalf("expected first attempt stored")
	}
	second := app.NewAttempt(domain.ExerciseSession{ID: "s1", SessionToken: "tok-1"})
	if got := registry.Add(second); got != first {
		t.Fatalf("expected existing attempt returned")
	}
	if _, ok := registry.Get("tok-1"); !ok {
		t.Fatalf("expected attempt present")
	}

	registry.Delete("tok-1")
	if _, ok := registry.Get("tok-1"); ok {
		t.Fatalf("expected attempt removed")
	}
}

func TestSessionStoreExpires(t *testing.T) {
	store := NewSessionStore(time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }

	ctx := context.Background()
	if err := store.Save(ctx, domain.ExerciseSession{ID: "s1", UserName: "Bat"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if sess, ok, _ := store.Get(ctx, "s1"); !ok || sess.UserName != "Bat" {
		t.Fatalf("expected session, got %+v ok=%v", sess, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := store.Get(ctx, "s1"); ok {
		t.Fatalf("expected session expired")
	}
}

func TestClaimStoreGrantsOnce(t *testing.T) {
	claims := NewClaimStore(time.Hour)
	ctx := context.Background()

	won, _ := claims.Claim(ctx, "tok")
	if !won {
		t.Fatalf("expected first claim to win")
	}
	won, _ = claims.Claim(ctx, "tok")
	if won {
		t.Fatalf("expected second claim to lose")
	}

	_ = claims.Release(ctx, "tok")
	won, _ = claims.Claim(ctx, "tok")
	if !won {
		t.Fatalf("expected claim after release to win")
	}
}

func TestSubmissionStoreRefusesTerminalOverwrite(t *testing.T) {
	store := NewSubmissionStore()
	ctx := context.Background()
	sub := domain.Submission{
		ExerciseID:   "ex",
		SessionToken: "tok",
		UserName:     "Bat",
		UserAnswers:  []string{"35", "36"},
		Score:        2,
		Completed:    true,
	}

	saved, err := store.Upsert(ctx, sub)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if saved.ID == "" {
		t.Fatalf("expected generated id")
	}

	sub.Score = 0
	if _, err := store.Upsert(ctx, sub); !errors.Is(err, domain.ErrSubmissionCompleted) {
		t.Fatalf("expected terminal refusal, got %v", err)
	}

	got, ok, _ := store.Find(ctx, sub.Key())
	if !ok || got.Score != 2 {
		t.Fatalf("expected original record kept, got %+v", got)
	}
	if store.Writes() != 1 || store.Len() != 1 {
		t.Fatalf("expected one write and one record, got writes=%d len=%d", store.Writes(), store.Len())
	}
}
