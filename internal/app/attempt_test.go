package app

import (
	"sync"
	"sync/atomic"
	"testing"

	"timed-exercise-service/internal/domain"
)

func TestClaimIsExclusive(t *testing.T) {
	a := NewAttempt(domain.ExerciseSession{ID: "s", SessionToken: "tok"})

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if a.claim() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one claim, got %d", wins.Load())
	}
	if a.State() != StateCompleting {
		t.Fatalf("expected completing, got %s", a.State())
	}

	a.release()
	if a.State() != StateActive {
		t.Fatalf("expected release to reopen, got %s", a.State())
	}
}

func TestSubscribeAfterFinishIsClosed(t *testing.T) {
	a := NewAttempt(domain.ExerciseSession{ID: "s", SessionToken: "tok"})
	ch, cancel := a.subscribe()
	defer cancel()

	a.finish(&domain.AttemptView{Score: 2})
	if view, ok := <-ch; !ok || view.Score != 2 {
		t.Fatalf("expected final view, got %+v ok=%v", view, ok)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after final view")
	}

	late, lateCancel := a.subscribe()
	defer lateCancel()
	if _, ok := <-late; ok {
		t.Fatalf("expected closed channel for finished attempt")
	}
	if a.State() != StateCompleted {
		t.Fatalf("expected completed, got %s", a.State())
	}
}
