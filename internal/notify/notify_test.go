package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"timed-exercise-service/internal/domain"
)

func sampleEvent() domain.CompletionEvent {
	return domain.CompletionEvent{
		ExerciseTitle: "Математикийн дасгал: Үржүүлэх",
		ExerciseSlug:  "math-multiplication-exercise",
		UserName:      "Болд",
		SessionToken:  "math_s1_1",
		Score:         1,
		Total:         2,
		CompletedAt:   time.Date(2025, 1, 10, 4, 30, 0, 0, time.UTC),
	}
}

func TestFormatPartialScore(t *testing.T) {
	msg := Format(sampleEvent(), nil)
	if msg.Username != "Exercise Bot" || len(msg.Embeds) != 1 {
		t.Fatalf("unexpected message %+v", msg)
	}
	embed := msg.Embeds[0]
	if embed.Color != ColorPartial {
		t.Fatalf("expected partial color, got %d", embed.Color)
	}
	if embed.Title != "Дасгал дууссан: Математикийн дасгал: Үржүүлэх" {
		t.Fatalf("unexpected title %q", embed.Title)
	}
	if !strings.Contains(embed.Description, "**Оноо:** 1 / 2") {
		t.Fatalf("unexpected description %q", embed.Description)
	}
	if embed.Fields[0].Value != "Дууссан" || !embed.Fields[0].Inline {
		t.Fatalf("unexpected status field %+v", embed.Fields[0])
	}
	if embed.Timestamp != "2025-01-10T04:30:00Z" {
		t.Fatalf("unexpected timestamp %q", embed.Timestamp)
	}
}

func TestFormatColorsAndStatus(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.CompletionEvent)
		color  int
		status string
	}{
		{"perfect", func(e *domain.CompletionEvent) { e.Score = 2 }, ColorPerfect, "Дууссан"},
		{"timed out", func(e *domain.CompletionEvent) { e.Score = 0; e.TimedOut = true }, ColorPartial, "Хугацаа дууссан (0 оноо)"},
		{"left page", func(e *domain.CompletionEvent) { e.Score = 0; e.TimedOut = true; e.LeftPage = true }, ColorLeftPage, "Хуудаснаас гарсан (0 оноо)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := sampleEvent()
			tc.mutate(&ev)
			embed := Format(ev, nil).Embeds[0]
			if embed.Color != tc.color || embed.Fields[0].Value != tc.status {
				t.Fatalf("got color=%d status=%q", embed.Color, embed.Fields[0].Value)
			}
		})
	}
}

func TestWebhookClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewWebhookClient(WebhookConfig{URL: srv.URL, InitialDelay: time.Millisecond, Logger: zerolog.Nop()})
	status, err := client.Send(context.Background(), Format(sampleEvent(), nil))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if status != http.StatusNoContent || calls.Load() != 2 {
		t.Fatalf("expected retry then success, got status=%d calls=%d", status, calls.Load())
	}
}

func TestWebhookClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewWebhookClient(WebhookConfig{URL: srv.URL, InitialDelay: time.Millisecond, Logger: zerolog.Nop()})
	_, err := client.Send(context.Background(), Format(sampleEvent(), nil))
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("expected status error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single attempt, got %d", calls.Load())
	}
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	if s.err != nil {
		return 0, s.err
	}
	return http.StatusNoContent, nil
}

func TestDispatcherDeliversAndSwallowsErrors(t *testing.T) {
	sender := &recordingSender{err: errors.New("boom")}
	d := NewDispatcher(sender, time.Second, nil, zerolog.Nop())

	d.Notify(sampleEvent())
	d.Notify(sampleEvent())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(sender.msgs) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(sender.msgs))
	}

	d.Notify(sampleEvent())
	if len(sender.msgs) != 2 {
		t.Fatalf("expected events after close to be dropped")
	}
}

func TestDispatcherWithoutSenderIsNoop(t *testing.T) {
	d := NewDispatcher(nil, time.Second, nil, zerolog.Nop())
	d.Notify(sampleEvent())
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}
