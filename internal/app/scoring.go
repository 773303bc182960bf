package app

import (
	"strings"

	"timed-exercise-service/internal/domain"
)

// grade returns the answers to persist and the score for a completion.
// Forced completions score zero and blank every answer.
func grade(ex domain.Exercise, cause domain.CompletionCause, submitted []string) ([]string, int) {
	total := ex.TotalQuestions()
	answers := make([]string, total)
	if cause.Forced() {
		return answers, 0
	}

	copy(answers, submitted)
	return answers, scoreAnswers(ex.Answers, answers)
}

// scoreAnswers counts case-insensitive, whitespace-trimmed matches by index.
// Missing answers never match.
func scoreAnswers(canonical, submitted []string) int {
	score := 0
	for i, want := range canonical {
		if i >= len(submitted) {
			break
		}
		if answerMatches(submitted[i], want) {
			score++
		}
	}
	return score
}

func answerMatches(got, want string) bool {
	got = strings.TrimSpace(got)
	if got == "" {
		return false
	}
	return strings.ToLower(got) == strings.ToLower(strings.TrimSpace(want))
}
