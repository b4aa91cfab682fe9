package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/sprintagent/sprintagent/pkg/protocol"
)

// StatusError is a non-200 reply from a model API.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: api error (status %d): %s", e.Provider, e.Code, e.Body)
}

// Temporary reports whether the request is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

var errEmptyContent = errors.New("empty content from model")

// Retrying wraps a Provider with retries, exponential backoff and an
// optional fallback model.
type Retrying struct {
	inner       Provider
	fallback    string
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(context.Context, time.Duration) error
	logger      *slog.Logger
}

// RetryOption configures Retrying.
type RetryOption func(*Retrying)

// WithFallbackModel retries with a second model once the primary is exhausted.
func WithFallbackModel(model string) RetryOption {
	return func(r *Retrying) { r.fallback = model }
}

// WithAttempts sets the attempts per model and the initial backoff.
func WithAttempts(n int, base time.Duration) RetryOption {
	return func(r *Retrying) {
		if n > 0 {
			r.maxAttempts = n
		}
		if base > 0 {
			r.baseDelay = base
		}
	}
}

// WithRetryLogger sets the logger used for retry warnings.
func WithRetryLogger(l *slog.Logger) RetryOption {
	return func(r *Retrying) { r.logger = l }
}

// NewRetrying wraps inner. Defaults are 3 attempts and a 400ms base delay.
func NewRetrying(inner Provider, opts ...RetryOption) *Retrying {
	r := &Retrying{
		inner:       inner,
		maxAttempts: 3,
		baseDelay:   400 * time.Millisecond,
		sleep:       sleepCtx,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retrying) Name() string { return r.inner.Name() }

func (r *Retrying) Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	resp, err := r.chatWithRetry(ctx, req)
	if err == nil {
		return resp, nil
	}
	if r.fallback == "" || r.fallback == req.Model || ctx.Err() != nil {
		return nil, err
	}
	r.logger.Warn("primary model failed, trying fallback", "provider", r.inner.Name(), "fallback", r.fallback, "error", err)
	req.Model = r.fallback
	return r.chatWithRetry(ctx, req)
}

func (r *Retrying) chatWithRetry(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		resp, err := r.inner.Chat(ctx, req)
		if err == nil && strings.TrimSpace(resp.Content) != "" {
			return resp, nil
		}
		if err == nil {
			err = errEmptyContent
		}
		lastErr = err
		if !retryable(err) || attempt == r.maxAttempts {
			break
		}
		r.logger.Debug("model call failed, retrying", "provider", r.inner.Name(), "attempt", attempt, "error", err)
		if err := r.sleep(ctx, backoffWithJitter(r.baseDelay, attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

// backoffWithJitter is base * 2^(attempt-1), capped at 6s, scaled by a
// random factor in [0.7, 1.3].
func backoffWithJitter(base time.Duration, attempt int) time.Duration {
	mult := math.Pow(2, float64(attempt-1))
	d := time.Duration(float64(base) * mult)
	const capDelay = 6 * time.Second
	if d > capDelay {
		d = capDelay
	}
	j := 0.7 + rand.Float64()*0.6
	return time.Duration(float64(d) * j)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
