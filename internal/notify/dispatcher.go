package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"timed-exercise-service/internal/domain"
)

// Sender delivers a formatted message.
type Sender interface {
	Send(ctx context.Context, msg Message) (int, error)
}

// Dispatcher implements app.Notifier. Each event is delivered on its own goroutine;
// failures are logged and never reach the caller.
type Dispatcher struct {
	sender   Sender
	timeout  time.Duration
	location *time.Location
	log      zerolog.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewDispatcher returns a dispatcher. A nil sender turns Notify into a logged no-op.
func NewDispatcher(sender Sender, timeout time.Duration, loc *time.Location, log zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	log = log.With().Str("component", "notifier").Logger()
	if sender == nil {
		log.Warn().Msg("webhook url not configured, completion notifications disabled")
	}
	return &Dispatcher{sender: sender, timeout: timeout, location: loc, log: log}
}

func (d *Dispatcher) Notify(ev domain.CompletionEvent) {
	if d.sender == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn().Str("token", ev.SessionToken).Msg("notification dropped after shutdown")
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	msg := Format(ev, d.location)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		status, err := d.sender.Send(ctx, msg)
		if err != nil {
			d.log.Error().Err(err).Str("token", ev.SessionToken).Int("status", status).Msg("send completion webhook failed")
			return
		}
		d.log.Debug().Str("token", ev.SessionToken).Int("status", status).Msg("completion webhook sent")
	}()
}

// Close stops accepting events and waits for in-flight deliveries or ctx expiry.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
