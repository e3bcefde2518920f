package governance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aigw/backend/internal/domain/quota"
	"github.com/aigw/backend/internal/domain/shared"
)

const (
	rateKeyPrefix = "rate:"

	defaultRateWindow = time.Minute
)

// RateDecision is the outcome of a sliding-window rate check
type RateDecision struct {
	Allowed    bool              `json:"allowed"`
	Limit      int64             `json:"limit"`
	Remaining  int64             `json:"remaining"`
	RetryAfter time.Duration     `json:"retry_after,omitempty"`
	ResetAt    time.Time         `json:"reset_at"`
	Err        *RateLimitedError `json:"error,omitempty"`
}

// RateLimiterOption configures a RateLimiter
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterLogger sets the logger
func WithRateLimiterLogger(logger *zap.Logger) RateLimiterOption {
	return func(l *RateLimiter) {
		l.logger = logger
	}
}

// WithRateWindow sets the window applied when the caller passes none
func WithRateWindow(window time.Duration) RateLimiterOption {
	return func(l *RateLimiter) {
		if window > 0 {
			l.window = window
		}
	}
}

// RateLimiter enforces sliding-window request-frequency limits. It counts
// individual event timestamps rather than fixed buckets, so no boundary
// instant ever admits a burst of twice the limit.
type RateLimiter struct {
	store  quota.Store
	window time.Duration
	logger *zap.Logger
}

// NewRateLimiter creates a RateLimiter on top of the given store
func NewRateLimiter(store quota.Store, opts ...RateLimiterOption) *RateLimiter {
	l := &RateLimiter{
		store:  store,
		window: defaultRateWindow,
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Allow records one request against key if the trailing window holds fewer
// than limit events. A negative limit disables rate limiting for the key;
// a zero limit rejects everything. A non-positive window falls back to the
// limiter's default.
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateDecision, error) {
	if key == "" {
		return nil, shared.ErrInvalidPrincipal
	}
	if window <= 0 {
		window = l.window
	}
	if limit < 0 {
		return &RateDecision{Allowed: true, Limit: -1, Remaining: -1}, nil
	}

	result, err := l.store.WindowIncrement(ctx, rateKeyPrefix+key, limit, window)
	if err != nil {
		return nil, fmt.Errorf("rate window increment: %w", err)
	}

	decision := &RateDecision{
		Allowed:    result.Allowed,
		Limit:      limit,
		Remaining:  result.Remaining,
		RetryAfter: result.RetryAfter,
		ResetAt:    result.ResetAt,
	}
	if !result.Allowed {
		decision.Err = &RateLimitedError{
			Key:        key,
			Limit:      limit,
			Window:     window,
			RetryAfter: result.RetryAfter,
		}
		l.logger.Debug("request rate limited",
			zap.String("key", key),
			zap.Int64("limit", limit),
			zap.Duration("window", window),
			zap.Duration("retry_after", result.RetryAfter))
	}
	return decision, nil
}

// Remaining reports how many requests the key has left in the current
// window without recording one.
func (l *RateLimiter) Remaining(ctx context.Context, key string, limit int64, window time.Duration) (int64, error) {
	if key == "" {
		return 0, shared.ErrInvalidPrincipal
	}
	if window <= 0 {
		window = l.window
	}
	if limit < 0 {
		return -1, nil
	}

	count, err := l.store.WindowCount(ctx, rateKeyPrefix+key, window)
	if err != nil {
		return 0, fmt.Errorf("rate window count: %w", err)
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Window returns the limiter's default window
func (l *RateLimiter) Window() time.Duration {
	return l.window
}
