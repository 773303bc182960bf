package app

import (
	"sync"
	"sync/atomic"
	"time"

	"timed-exercise-service/internal/domain"
)

// AttemptState is the lifecycle position of an attempt.
type AttemptState int32

const (
	StateNotStarted AttemptState = iota
	StateActive
	StateCompleting
	StateCompleted
)

func (s AttemptState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateActive:
		return "active"
	case StateCompleting:
		return "completing"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Timer is the cancelable handle of a scheduled deadline.
type Timer interface {
	Stop() bool
}

// Scheduler arms deadline callbacks.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallClockScheduler struct{}

func (wallClockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Attempt is the in-process arbitration point for one session token.
// Only the caller that moves the state from Active to Completing may complete it.
type Attempt struct {
	Token        string
	SessionID    string
	UserName     string
	ExerciseSlug string
	StartedAt    time.Time

	state atomic.Int32

	mu          sync.Mutex
	timer       Timer
	subscribers map[chan domain.AttemptView]struct{}
}

// NewAttempt builds an active attempt from its browser session.
func NewAttempt(sess domain.ExerciseSession) *Attempt {
	a := &Attempt{
		Token:        sess.SessionToken,
		SessionID:    sess.ID,
		UserName:     sess.UserName,
		ExerciseSlug: sess.ExerciseSlug,
		StartedAt:    sess.StartTime,
		subscribers:  make(map[chan domain.AttemptView]struct{}),
	}
	a.state.Store(int32(StateActive))
	return a
}

// State returns the current lifecycle state.
func (a *Attempt) State() AttemptState {
	return AttemptState(a.state.Load())
}

func (a *Attempt) claim() bool {
	return a.state.CompareAndSwap(int32(StateActive), int32(StateCompleting))
}

func (a *Attempt) release() {
	a.state.CompareAndSwap(int32(StateCompleting), int32(StateActive))
}

func (a *Attempt) arm(s Scheduler, d time.Duration, fire func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = s.AfterFunc(d, fire)
}

func (a *Attempt) stopTimer() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// finish marks the attempt terminal and hands the final view to every subscriber.
func (a *Attempt) finish(view *domain.AttemptView) {
	a.state.Store(int32(StateCompleted))

	a.mu.Lock()
	defer a.mu.Unlock()
	for ch := range a.subscribers {
		if view != nil {
			ch <- *view
		}
		close(ch)
		delete(a.subscribers, ch)
	}
}

func (a *Attempt) subscribe() (<-chan domain.AttemptView, func()) {
	ch := make(chan domain.AttemptView, 1)

	a.mu.Lock()
	if a.State() == StateCompleted {
		a.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	a.subscribers[ch] = struct{}{}
	a.mu.Unlock()

	cancel := func() {
		a.mu.Lock()
		if _, ok := a.subscribers[ch]; ok {
			delete(a.subscribers, ch)
			close(ch)
		}
		a.mu.Unlock()
	}
	return ch, cancel
}
