package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/rs/zerolog"
)

// StatusError is returned for non-2xx webhook responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook responded with status %d: %s", e.Code, e.Body)
}

// WebhookClient posts messages to a Discord-compatible webhook, retrying transient
// failures and opening a circuit when the endpoint keeps failing.
type WebhookClient struct {
	url     string
	client  *http.Client
	breaker circuitbreaker.CircuitBreaker[int]
	retrier retry.Retry[int]
}

// WebhookConfig tunes delivery. Zero values fall back to defaults.
type WebhookConfig struct {
	URL          string
	Timeout      time.Duration
	MaxAttempts  int
	InitialDelay time.Duration
	Logger       zerolog.Logger
}

func NewWebhookClient(cfg WebhookConfig) *WebhookClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 500 * time.Millisecond
	}
	log := cfg.Logger

	return &WebhookClient{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.New[int](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("webhook circuit breaker state change")
			},
		}),
		retrier: retry.New[int](retry.Config{
			MaxAttempts:   cfg.MaxAttempts,
			InitialDelay:  cfg.InitialDelay,
			MaxDelay:      10 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   isRetryable,
		}),
	}
}

// Send posts msg and returns the response status code.
func (c *WebhookClient) Send(ctx context.Context, msg Message) (int, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("marshal webhook message: %w", err)
	}
	return c.breaker.Execute(ctx, func(ctx context.Context) (int, error) {
		return c.retrier.Do(ctx, func(ctx context.Context) (int, error) {
			return c.post(ctx, body)
		})
	})
}

func (c *WebhookClient) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: string(snippet)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// isRetryable retries transport failures, rate limiting and server errors.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= http.StatusInternalServerError
	}
	return true
}
