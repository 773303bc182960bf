package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"timed-exercise-service/internal/domain"
)

// DefaultExerciseDuration is how long an attempt stays open before it is forced to complete.
const DefaultExerciseDuration = 20 * time.Minute

// ExerciseRepository loads catalog content (from cache/backing store).
type ExerciseRepository interface {
	GetExercise(ctx context.Context, slug string) (domain.Exercise, error)
	ListExercises(ctx context.Context) ([]domain.Exercise, error)
}

// SubmissionRepository persists attempt results.
// Upsert must return domain.ErrSubmissionCompleted instead of overwriting a completed record.
type SubmissionRepository interface {
	Upsert(ctx context.Context, sub domain.Submission) (domain.Submission, error)
	Find(ctx context.Context, key domain.SubmissionKey) (domain.Submission, bool, error)
}

// SessionRepository abstracts server-side browser session storage (in-memory, Redis, etc).
type SessionRepository interface {
	Get(ctx context.Context, id string) (domain.ExerciseSession, bool, error)
	Save(ctx context.Context, sess domain.ExerciseSession) error
}

// AttemptRegistry holds the in-process attempts keyed by session token.
type AttemptRegistry interface {
	// Add stores a unless an attempt with the same token exists, and returns the stored one.
	Add(a *Attempt) *Attempt
	Get(token string) (*Attempt, bool)
	Delete(token string)
}

// ClaimStore arbitrates completion across workers sharing the persistence store.
// Claim reports true for exactly one caller per token.
type ClaimStore interface {
	Claim(ctx context.Context, token string) (bool, error)
	Release(ctx context.Context, token string) error
}

// Notifier delivers completion events without blocking the caller.
type Notifier interface {
	Notify(event domain.CompletionEvent)
}

// Deps wires the engine collaborators. Notifier, Scheduler, Now and the durations are optional.
type Deps struct {
	Exercises   ExerciseRepository
	Submissions SubmissionRepository
	Sessions    SessionRepository
	Registry    AttemptRegistry
	Claims      ClaimStore
	Notifier    Notifier
	Scheduler   Scheduler
	Logger      zerolog.Logger
	Duration    time.Duration
	RetryDelay  time.Duration
	Now         func() time.Time
}

// Engine owns the lifecycle of exercise attempts.
type Engine struct {
	exercises   ExerciseRepository
	submissions SubmissionRepository
	sessions    SessionRepository
	registry    AttemptRegistry
	claims      ClaimStore
	notifier    Notifier
	scheduler   Scheduler
	log         zerolog.Logger
	duration    time.Duration
	retryDelay  time.Duration
	now         func() time.Time
}

func NewEngine(deps Deps) *Engine {
	e := &Engine{
		exercises:   deps.Exercises,
		submissions: deps.Submissions,
		sessions:    deps.Sessions,
		registry:    deps.Registry,
		claims:      deps.Claims,
		notifier:    deps.Notifier,
		scheduler:   deps.Scheduler,
		log:         deps.Logger.With().Str("component", "attempt_engine").Logger(),
		duration:    deps.Duration,
		retryDelay:  deps.RetryDelay,
		now:         deps.Now,
	}
	if e.notifier == nil {
		e.notifier = discardNotifier{}
	}
	if e.scheduler == nil {
		e.scheduler = wallClockScheduler{}
	}
	if e.duration <= 0 {
		e.duration = DefaultExerciseDuration
	}
	if e.retryDelay <= 0 {
		e.retryDelay = 5 * time.Second
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Duration is the attempt deadline window.
func (e *Engine) Duration() time.Duration {
	return e.duration
}

// NewSessionToken derives the attempt token from slug, browser session id and start time.
func NewSessionToken(slug, sessionID string, startedAt time.Time) string {
	return fmt.Sprintf("%s_%s_%d", slug, sessionID, startedAt.UnixMilli())
}

// ListExercises returns the whole catalog.
func (e *Engine) ListExercises(ctx context.Context) ([]domain.Exercise, error) {
	exercises, err := e.exercises.ListExercises(ctx)
	if err != nil {
		return nil, domain.Storage("list exercises", err)
	}
	return exercises, nil
}

// Start opens a new attempt for the browser session and arms its deadline.
// A still-active attempt of the same browser session is abandoned.
func (e *Engine) Start(ctx context.Context, sessionID, userName, slug string) (domain.ExerciseSession, error) {
	userName = strings.TrimSpace(userName)
	slug = strings.TrimSpace(slug)
	fields := map[string]string{}
	if userName == "" {
		fields["userName"] = "required"
	}
	if slug == "" {
		fields["exerciseSlug"] = "required"
	}
	if sessionID == "" {
		fields["session"] = "required"
	}
	if len(fields) > 0 {
		return domain.ExerciseSession{}, &domain.ValidationError{Fields: fields}
	}

	if _, err := e.exercises.GetExercise(ctx, slug); err != nil {
		return domain.ExerciseSession{}, domain.Storage("load exercise", err)
	}

	prev, ok, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.ExerciseSession{}, domain.Storage("load session", err)
	}
	if ok && prev.Active() {
		// Claiming the abandoned token keeps other workers from completing it later.
		if _, err := e.claims.Claim(ctx, prev.SessionToken); err != nil {
			return domain.ExerciseSession{}, domain.Storage("claim abandoned attempt", err)
		}
		if old, found := e.registry.Get(prev.SessionToken); found {
			old.stopTimer()
			e.registry.Delete(old.Token)
			old.finish(nil)
		}
		e.log.Info().Str("token", prev.SessionToken).Msg("abandoned previous attempt")
	}

	now := e.now()
	sess := domain.ExerciseSession{
		ID:           sessionID,
		UserName:     userName,
		ExerciseSlug: slug,
		SessionToken: NewSessionToken(slug, sessionID, now),
		StartTime:    now,
	}
	if ok {
		sess.LastToken = prev.LastToken
		sess.LastSlug = prev.LastSlug
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		return domain.ExerciseSession{}, domain.Storage("save session", err)
	}

	attempt := e.registry.Add(NewAttempt(sess))
	e.armDeadline(attempt, e.duration)

	e.log.Info().
		Str("token", sess.SessionToken).
		Str("exercise", slug).
		Str("user", userName).
		Dur("duration", e.duration).
		Msg("attempt started")
	return sess, nil
}

// Submit completes the attempt with the user's answers.
func (e *Engine) Submit(ctx context.Context, sessionID, slug, token string, answers []string) (domain.AttemptView, error) {
	sess, err := e.ownedSession(ctx, sessionID, slug, token)
	if err != nil {
		return domain.AttemptView{}, err
	}
	if !sess.Active() || sess.SessionToken != token {
		return domain.AttemptView{}, fmt.Errorf("%w: %w", domain.ErrInvalidSession, domain.ErrAttemptClosed)
	}
	return e.complete(ctx, e.attemptFor(sess), domain.CauseSubmitted, answers)
}

// ReportActivity handles a client visibility signal. Blur forces a zero-score completion
// of an active attempt; focus and signals for inactive attempts are observational only.
func (e *Engine) ReportActivity(ctx context.Context, sessionID, token string, kind domain.ActivityKind) error {
	if kind != domain.ActivityBlur && kind != domain.ActivityFocus {
		return &domain.ValidationError{Fields: map[string]string{"type": "oneof blur focus"}}
	}

	sess, ok, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Storage("load session", err)
	}
	if !ok || !sess.Active() || sess.SessionToken != token {
		e.log.Debug().Str("token", token).Str("type", string(kind)).Msg("activity for inactive attempt ignored")
		return nil
	}

	if kind == domain.ActivityFocus {
		e.log.Info().Str("token", token).Str("user", sess.UserName).Msg("user returned to the tab")
		return nil
	}

	e.log.Info().Str("token", token).Str("user", sess.UserName).Msg("user left the tab")
	_, err = e.complete(ctx, e.attemptFor(sess), domain.CauseLeftPage, nil)
	if errors.Is(err, domain.ErrAttemptClosed) {
		return nil
	}
	return err
}

// Expire is the deadline trigger. It is a no-op for attempts that are no longer active here
// or that the browser session no longer holds.
func (e *Engine) Expire(ctx context.Context, token string) error {
	attempt, ok := e.registry.Get(token)
	if !ok {
		return nil
	}
	sess, found, err := e.sessions.Get(ctx, attempt.SessionID)
	if err != nil {
		return domain.Storage("load session", err)
	}
	if found && (!sess.Active() || sess.SessionToken != token) {
		attempt.stopTimer()
		e.registry.Delete(token)
		attempt.finish(nil)
		e.log.Debug().Str("token", token).Msg("deadline for released attempt ignored")
		return nil
	}
	e.log.Info().Str("token", token).Msg("attempt timed out")
	_, err = e.complete(ctx, attempt, domain.CauseTimedOut, nil)
	if errors.Is(err, domain.ErrAttemptClosed) {
		return nil
	}
	return err
}

// View builds the read model for the attempt page.
func (e *Engine) View(ctx context.Context, sessionID, slug, token string) (domain.AttemptView, error) {
	sess, err := e.ownedSession(ctx, sessionID, slug, token)
	if err != nil {
		return domain.AttemptView{}, err
	}

	ex, err := e.exercises.GetExercise(ctx, slug)
	if err != nil {
		return domain.AttemptView{}, domain.Storage("load exercise", err)
	}

	sub, found, err := e.submissions.Find(ctx, domain.SubmissionKey{
		ExerciseID:   ex.ID,
		SessionToken: token,
		UserName:     sess.UserName,
	})
	if err != nil {
		return domain.AttemptView{}, domain.Storage("find submission", err)
	}
	if found && sub.Completed {
		return terminalView(ex, sess.UserName, token, sub), nil
	}
	if !sess.Active() || sess.SessionToken != token {
		return domain.AttemptView{}, domain.ErrInvalidSession
	}

	deadline := sess.StartTime.Add(e.duration)
	remaining := deadline.Sub(e.now())
	if remaining < 0 {
		remaining = 0
	}
	total := ex.TotalQuestions()
	ex.Answers = nil
	return domain.AttemptView{
		Exercise:         ex,
		UserName:         sess.UserName,
		SessionToken:     token,
		UserAnswers:      []string{},
		TotalQuestions:   total,
		Deadline:         deadline,
		RemainingSeconds: int(remaining.Seconds()),
	}, nil
}

// Subscribe returns a channel receiving the terminal view of the session's active attempt.
// The channel is closed without a value when the attempt ends without a result here.
// The caller must invoke the returned cancel function to avoid leaks.
func (e *Engine) Subscribe(ctx context.Context, sessionID, token string) (<-chan domain.AttemptView, func(), error) {
	sess, ok, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, domain.Storage("load session", err)
	}
	if !ok || !sess.Active() || sess.SessionToken != token {
		return nil, nil, domain.ErrInvalidSession
	}
	ch, cancel := e.attemptFor(sess).subscribe()
	return ch, cancel, nil
}

func (e *Engine) ownedSession(ctx context.Context, sessionID, slug, token string) (domain.ExerciseSession, error) {
	sess, ok, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.ExerciseSession{}, domain.Storage("load session", err)
	}
	if !ok || !sess.Owns(slug, token) {
		return domain.ExerciseSession{}, domain.ErrInvalidSession
	}
	return sess, nil
}

// attemptFor returns the registered attempt for the session, adopting one when the
// attempt was started by another worker.
func (e *Engine) attemptFor(sess domain.ExerciseSession) *Attempt {
	if attempt, ok := e.registry.Get(sess.SessionToken); ok {
		return attempt
	}
	adopted := NewAttempt(sess)
	attempt := e.registry.Add(adopted)
	if attempt == adopted {
		e.armDeadline(attempt, e.remaining(attempt))
	}
	return attempt
}

func (e *Engine) armDeadline(a *Attempt, d time.Duration) {
	token := a.Token
	a.arm(e.scheduler, d, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.Expire(ctx, token); err != nil {
			e.log.Error().Err(err).Str("token", token).Msg("deadline completion failed")
		}
	})
}

func (e *Engine) remaining(a *Attempt) time.Duration {
	d := a.StartedAt.Add(e.duration).Sub(e.now())
	if d < 0 {
		return 0
	}
	return d
}

// complete is the single completion path shared by submit, blur and deadline.
// A submit arriving after the deadline completes as timed out.
func (e *Engine) complete(ctx context.Context, a *Attempt, cause domain.CompletionCause, submitted []string) (domain.AttemptView, error) {
	if cause == domain.CauseSubmitted && e.remaining(a) == 0 {
		e.log.Info().Str("token", a.Token).Msg("submit arrived after the deadline")
		cause = domain.CauseTimedOut
	}
	if !a.claim() {
		return domain.AttemptView{}, domain.ErrAttemptClosed
	}

	won, err := e.claims.Claim(ctx, a.Token)
	if err != nil {
		a.release()
		return domain.AttemptView{}, domain.Storage("claim attempt", err)
	}
	if !won {
		a.stopTimer()
		e.registry.Delete(a.Token)
		a.finish(nil)
		e.log.Debug().Str("token", a.Token).Str("cause", cause.String()).Msg("completion lost arbitration")
		return domain.AttemptView{}, domain.ErrAttemptClosed
	}
	a.stopTimer()

	ex, err := e.exercises.GetExercise(ctx, a.ExerciseSlug)
	if err != nil {
		e.rollback(a)
		return domain.AttemptView{}, domain.Storage("load exercise", err)
	}

	answers, score := grade(ex, cause, submitted)
	saved, err := e.submissions.Upsert(ctx, domain.Submission{
		ExerciseID:     ex.ID,
		SessionToken:   a.Token,
		UserName:       a.UserName,
		UserAnswers:    answers,
		Score:          score,
		TotalQuestions: ex.TotalQuestions(),
		Completed:      true,
		TimedOut:       cause.Forced(),
		LeftPage:       cause == domain.CauseLeftPage,
		SubmittedAt:    e.now(),
	})
	if errors.Is(err, domain.ErrSubmissionCompleted) {
		e.registry.Delete(a.Token)
		a.finish(nil)
		return domain.AttemptView{}, domain.ErrAttemptClosed
	}
	if err != nil {
		e.rollback(a)
		return domain.AttemptView{}, domain.Storage("upsert submission", err)
	}

	view := terminalView(ex, a.UserName, a.Token, saved)
	e.registry.Delete(a.Token)
	a.finish(&view)

	e.notifier.Notify(domain.CompletionEvent{
		ExerciseTitle: ex.Title,
		ExerciseSlug:  ex.Slug,
		UserName:      a.UserName,
		SessionToken:  a.Token,
		Score:         saved.Score,
		Total:         saved.TotalQuestions,
		TimedOut:      saved.TimedOut,
		LeftPage:      saved.LeftPage,
		CompletedAt:   saved.SubmittedAt,
	})
	e.clearSession(ctx, a)

	e.log.Info().
		Str("token", a.Token).
		Str("exercise", ex.Slug).
		Str("cause", cause.String()).
		Int("score", saved.Score).
		Int("total", saved.TotalQuestions).
		Msg("attempt completed")
	return view, nil
}

// rollback reopens an attempt whose completion could not be persisted.
func (e *Engine) rollback(a *Attempt) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.claims.Release(ctx, a.Token); err != nil {
		e.log.Error().Err(err).Str("token", a.Token).Msg("release claim failed")
	}
	a.release()

	d := e.remaining(a)
	if d < e.retryDelay {
		d = e.retryDelay
	}
	e.armDeadline(a, d)
}

func (e *Engine) clearSession(ctx context.Context, a *Attempt) {
	sess, ok, err := e.sessions.Get(ctx, a.SessionID)
	if err != nil {
		e.log.Error().Err(err).Str("token", a.Token).Msg("load session for clearing failed")
		return
	}
	if !ok || sess.SessionToken != a.Token {
		return
	}
	if err := e.sessions.Save(ctx, sess.Cleared()); err != nil {
		e.log.Error().Err(err).Str("token", a.Token).Msg("clear session failed")
	}
}

func terminalView(ex domain.Exercise, userName, token string, sub domain.Submission) domain.AttemptView {
	return domain.AttemptView{
		Exercise:       ex,
		UserName:       userName,
		SessionToken:   token,
		ShowResults:    true,
		UserAnswers:    sub.UserAnswers,
		Score:          sub.Score,
		TotalQuestions: sub.TotalQuestions,
		TimedOut:       sub.TimedOut,
		LeftPage:       sub.LeftPage,
		CorrectAnswers: ex.Answers,
	}
}

type discardNotifier struct{}

func (discardNotifier) Notify(domain.CompletionEvent) {}
