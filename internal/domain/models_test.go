package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestSessionOwnership(t *testing.T) {
	sess := ExerciseSession{ID: "s1", UserName: "Болд", ExerciseSlug: "math", SessionToken: "math_s1_1"}
	if !sess.Active() || !sess.Owns("math", "math_s1_1") {
		t.Fatalf("expected active session to own its attempt")
	}
	if sess.Owns("physics", "math_s1_1") || sess.Owns("math", "other") {
		t.Fatalf("expected mismatched slug or token rejected")
	}

	cleared := sess.Cleared()
	if cleared.Active() {
		t.Fatalf("expected cleared session inactive")
	}
	if !cleared.Owns("math", "math_s1_1") {
		t.Fatalf("expected finished attempt still owned for viewing results")
	}
	if cleared.ID != "s1" || cleared.UserName != "Болд" {
		t.Fatalf("expected identity kept, got %+v", cleared)
	}

	anonymous := ExerciseSession{ID: "s2", SessionToken: "t"}
	if anonymous.Owns("", "t") {
		t.Fatalf("expected session without a user name to own nothing")
	}
}

func TestExerciseValidate(t *testing.T) {
	ok := Exercise{Slug: "x", Questions: []string{"q"}, Answers: []string{"a"}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := (Exercise{Questions: []string{"q"}, Answers: []string{"a"}}).Validate(); err == nil {
		t.Fatalf("expected empty slug rejected")
	}
	if err := (Exercise{Slug: "x", Questions: []string{"q", "r"}, Answers: []string{"a"}}).Validate(); err == nil {
		t.Fatalf("expected misaligned answers rejected")
	}
}

func TestCompletionCauseForced(t *testing.T) {
	if CauseSubmitted.Forced() || !CauseTimedOut.Forced() || !CauseLeftPage.Forced() {
		t.Fatalf("unexpected forced classification")
	}
}

func TestStorageWrapping(t *testing.T) {
	if Storage("op", nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
	if err := Storage("load", ErrExerciseNotFound); !errors.Is(err, ErrExerciseNotFound) || errors.Is(err, ErrStorage) {
		t.Fatalf("expected not found kept as is, got %v", err)
	}

	cause := errors.New("dial tcp: refused")
	err := Storage("upsert submission", cause)
	if !errors.Is(err, ErrStorage) || !errors.Is(err, cause) {
		t.Fatalf("expected storage error wrapping cause, got %v", err)
	}
	if again := Storage("outer", fmt.Errorf("ctx: %w", err)); !errors.Is(again, ErrStorage) {
		t.Fatalf("expected storage error preserved")
	}
}

func TestValidationErrorListsFields(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"userName": "required", "exerciseSlug": "required"}}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation sentinel")
	}
	if err.Error() != "validation failed: exerciseSlug, userName" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
