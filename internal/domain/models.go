package domain

import (
	"fmt"
	"time"
)

// ExerciseTypeFillInTheBlank is the default exercise type.
const ExerciseTypeFillInTheBlank = "fill-in-the-blank"

// Exercise is an immutable catalog entry. Answers are index-aligned with Questions.
type Exercise struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Questions   []string  `json:"questions"`
	Answers     []string  `json:"answers"`
	Type        string    `json:"type"`
	Subject     string    `json:"subject,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Validate checks the catalog invariants of an exercise.
func (e Exercise) Validate() error {
	if e.Slug == "" {
		return fmt.Errorf("exercise %q: empty slug", e.Title)
	}
	if len(e.Questions) != len(e.Answers) {
		return fmt.Errorf("exercise %q: %d questions but %d answers", e.Slug, len(e.Questions), len(e.Answers))
	}
	return nil
}

// TotalQuestions is the number of gradable prompts.
func (e Exercise) TotalQuestions() int {
	return len(e.Answers)
}

// ExerciseSession is the ephemeral per-browser state of one attempt.
// LastToken and LastSlug survive completion so the owner can reopen the result page.
type ExerciseSession struct {
	ID           string    `json:"id"`
	UserName     string    `json:"userName"`
	ExerciseSlug string    `json:"exerciseSlug,omitempty"`
	SessionToken string    `json:"sessionToken,omitempty"`
	StartTime    time.Time `json:"startTime,omitempty"`
	IsCompleted  bool      `json:"isCompleted"`
	LeftPage     bool      `json:"leftPage"`
	LastToken    string    `json:"lastToken,omitempty"`
	LastSlug     string    `json:"lastSlug,omitempty"`
}

// Active reports whether the session currently holds a non-completed attempt.
func (s ExerciseSession) Active() bool {
	return s.SessionToken != "" && !s.IsCompleted
}

// Owns reports whether the session owns the attempt addressed by slug and token,
// either as the active attempt or as the most recently completed one.
func (s ExerciseSession) Owns(slug, token string) bool {
	if token == "" || s.UserName == "" {
		return false
	}
	if s.SessionToken == token && s.ExerciseSlug == slug {
		return true
	}
	return s.LastToken == token && s.LastSlug == slug
}

// Cleared drops the attempt fields after completion, remembering the finished attempt.
func (s ExerciseSession) Cleared() ExerciseSession {
	return ExerciseSession{
		ID:        s.ID,
		UserName:  s.UserName,
		LastToken: s.SessionToken,
		LastSlug:  s.ExerciseSlug,
	}
}

// SubmissionKey is the natural key of a submission.
type SubmissionKey struct {
	ExerciseID   string
	SessionToken string
	UserName     string
}

// Submission is the durable record of an attempt.
type Submission struct {
	ID             string    `json:"id"`
	ExerciseID     string    `json:"exerciseId"`
	SessionToken   string    `json:"sessionToken"`
	UserName       string    `json:"userName"`
	UserAnswers    []string  `json:"userAnswers"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	Completed      bool      `json:"completed"`
	TimedOut       bool      `json:"timedOut"`
	LeftPage       bool      `json:"leftPage"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// Key returns the natural key of the submission.
func (s Submission) Key() SubmissionKey {
	return SubmissionKey{ExerciseID: s.ExerciseID, SessionToken: s.SessionToken, UserName: s.UserName}
}

// CompletionCause identifies which trigger completed an attempt.
type CompletionCause int

const (
	CauseSubmitted CompletionCause = iota
	CauseTimedOut
	CauseLeftPage
)

func (c CompletionCause) String() string {
	switch c {
	case CauseSubmitted:
		return "submitted"
	case CauseTimedOut:
		return "timed_out"
	case CauseLeftPage:
		return "left_page"
	default:
		return "unknown"
	}
}

// Forced reports whether the completion was not initiated by the user's submit.
func (c CompletionCause) Forced() bool {
	return c != CauseSubmitted
}

// ActivityKind is a client visibility signal.
type ActivityKind string

const (
	ActivityBlur  ActivityKind = "blur"
	ActivityFocus ActivityKind = "focus"
)

// AttemptView is the read model handed to the presentation layer.
// CorrectAnswers is only populated when ShowResults is true.
type AttemptView struct {
	Exercise         Exercise  `json:"exercise"`
	UserName         string    `json:"userName"`
	SessionToken     string    `json:"sessionToken"`
	ShowResults      bool      `json:"showResults"`
	UserAnswers      []string  `json:"userAnswers"`
	Score            int       `json:"score"`
	TotalQuestions   int       `json:"totalQuestions"`
	TimedOut         bool      `json:"timedOut"`
	LeftPage         bool      `json:"leftPage"`
	CorrectAnswers   []string  `json:"correctAnswers,omitempty"`
	Deadline         time.Time `json:"deadline,omitempty"`
	RemainingSeconds int       `json:"remainingSeconds"`
}

// CompletionEvent is emitted once per completed attempt.
type CompletionEvent struct {
	ExerciseTitle string
	ExerciseSlug  string
	UserName      string
	SessionToken  string
	Score         int
	Total         int
	TimedOut      bool
	LeftPage      bool
	CompletedAt   time.Time
}
