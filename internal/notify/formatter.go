// Package notify formats completion events as Discord webhook messages and delivers them
// off the request path.
package notify

import (
	"fmt"
	"time"

	"timed-exercise-service/internal/domain"
)

const (
	botName   = "Exercise Bot"
	botAvatar = "https://imgur.com/a/zxS6VAD"
	footer    = "English Exercise Website"

	ColorLeftPage = 16711680
	ColorPerfect  = 65280
	ColorPartial  = 16776960

	statusLeftPage = "Хуудаснаас гарсан (0 оноо)"
	statusTimedOut = "Хугацаа дууссан (0 оноо)"
	statusDone     = "Дууссан"
)

// Message is a Discord webhook payload.
type Message struct {
	Username  string  `json:"username"`
	AvatarURL string  `json:"avatar_url"`
	Embeds    []Embed `json:"embeds"`
}

type Embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Fields      []Field `json:"fields"`
	Timestamp   string  `json:"timestamp"`
	Footer      Footer  `json:"footer"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type Footer struct {
	Text string `json:"text"`
}

// Format renders the completion event. loc controls the human-readable completion time;
// nil means UTC.
func Format(ev domain.CompletionEvent, loc *time.Location) Message {
	if loc == nil {
		loc = time.UTC
	}

	color := ColorPartial
	switch {
	case ev.LeftPage:
		color = ColorLeftPage
	case ev.Score == ev.Total:
		color = ColorPerfect
	}

	status := statusDone
	switch {
	case ev.LeftPage:
		status = statusLeftPage
	case ev.TimedOut:
		status = statusTimedOut
	}

	return Message{
		Username:  botName,
		AvatarURL: botAvatar,
		Embeds: []Embed{{
			Title: "Дасгал дууссан: " + ev.ExerciseTitle,
			Description: fmt.Sprintf("**Нэр:** %s\n**Дасгалын нэр:** %s\n**Оноо:** %d / %d",
				ev.UserName, ev.ExerciseTitle, ev.Score, ev.Total),
			Color: color,
			Fields: []Field{
				{Name: "Төлөв", Value: status, Inline: true},
				{Name: "Дуусгасан хугацаа", Value: ev.CompletedAt.In(loc).Format("2006.01.02 15:04:05"), Inline: true},
			},
			Timestamp: ev.CompletedAt.UTC().Format(time.RFC3339Nano),
			Footer:    Footer{Text: footer},
		}},
	}
}
