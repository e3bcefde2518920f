package quota

import (
	"context"
	"time"
)

// IncrementResult is the outcome of an atomic increment-with-ceiling.
// When Allowed is true, Usage is the post-increment value; when false the
// increment was rejected and Usage is the unchanged current value.
type IncrementResult struct {
	Allowed bool
	Usage   int64
}

// WindowResult is the outcome of a sliding-window admission check
type WindowResult struct {
	Allowed   bool
	Remaining int64
	// RetryAfter is how long until a slot frees up; zero when allowed
	RetryAfter time.Duration
	// ResetAt is the instant the oldest in-window event leaves the window
	ResetAt time.Time
}

// Store is the authoritative home of governance counters. All mutations are
// server-side atomic operations; callers never read-compare-write, because
// the store is shared by every process instance.
//
// Period rollover is part of the contract: callers pass the periodStart they
// computed for "now", and the store resets a counter whose stored period
// differs before applying the operation. Two racing callers therefore cannot
// each zero the other's freshly-written usage.
type Store interface {
	// IncrementWithCeiling atomically adds amount to the counter unless the
	// result would exceed ceiling. A negative ceiling means unconditional
	// increment (unlimited, or overage already approved by the caller).
	// The counter expires ttl after its last write.
	IncrementWithCeiling(ctx context.Context, key string, amount, ceiling int64, periodStart time.Time, ttl time.Duration) (IncrementResult, error)

	// Peek returns the counter's current usage without mutating it.
	// A counter stored under an elapsed period reads as zero.
	Peek(ctx context.Context, key string, periodStart time.Time) (int64, error)

	// WindowIncrement records one event in the key's sliding window if and
	// only if fewer than limit events fall within the trailing window.
	// Window state expires on its own once the key goes idle.
	WindowIncrement(ctx context.Context, key string, limit int64, window time.Duration) (WindowResult, error)

	// WindowCount returns the number of events currently inside the window
	// without recording a new one.
	WindowCount(ctx context.Context, key string, window time.Duration) (int64, error)

	// Close releases the store's resources
	Close() error
}
