package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCounter(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

	counter, err := NewCounter("principal-1", QuotaTypeRequests, 100, ResetPeriodMonthly, now)
	require.NoError(t, err)
	assert.Equal(t, "principal-1", counter.PrincipalID)
	assert.Equal(t, int64(100), counter.Limit)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), counter.PeriodStart)
	assert.Equal(t, int64(0), counter.Usage)
}

func TestNewCounter_Validation(t *testing.T) {
	now := time.Now()

	_, err := NewCounter("", QuotaTypeRequests, 100, ResetPeriodMonthly, now)
	assert.Error(t, err)

	_, err = NewCounter("p", QuotaType("BOGUS"), 100, ResetPeriodMonthly, now)
	assert.Error(t, err)

	_, err = NewCounter("p", QuotaTypeRequests, -2, ResetPeriodMonthly, now)
	assert.Error(t, err)

	_, err = NewCounter("p", QuotaTypeRequests, 100, ResetPeriod("HOURLY"), now)
	assert.Error(t, err)

	// -1 means unlimited and is valid
	counter, err := NewCounter("p", QuotaTypeRequests, -1, ResetPeriodMonthly, now)
	require.NoError(t, err)
	assert.True(t, counter.IsUnlimited())
}

func TestCounter_CanConsume(t *testing.T) {
	now := time.Now()
	counter, err := NewCounter("p", QuotaTypeRequests, 100, ResetPeriodMonthly, now)
	require.NoError(t, err)

	counter.Usage = 95
	assert.True(t, counter.CanConsume(5))
	assert.False(t, counter.CanConsume(6))
	assert.False(t, counter.CanConsume(10))

	counter.Limit = -1
	assert.True(t, counter.CanConsume(1_000_000))
}

func TestCounter_Remaining(t *testing.T) {
	now := time.Now()
	counter, err := NewCounter("p", QuotaTypeTokens, 1000, ResetPeriodMonthly, now)
	require.NoError(t, err)

	assert.Equal(t, int64(1000), counter.Remaining())

	counter.Usage = 400
	assert.Equal(t, int64(600), counter.Remaining())

	counter.Usage = 1200
	assert.Equal(t, int64(0), counter.Remaining())

	counter.Limit = -1
	assert.Equal(t, int64(-1), counter.Remaining())
}

func TestCounter_NeedsReset(t *testing.T) {
	created := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	counter, err := NewCounter("p", QuotaTypeRequests, 100, ResetPeriodMonthly, created)
	require.NoError(t, err)

	assert.False(t, counter.NeedsReset(created))
	assert.False(t, counter.NeedsReset(time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)))
	assert.True(t, counter.NeedsReset(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCounter_ResetAt(t *testing.T) {
	created := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	counter, err := NewCounter("p", QuotaTypeRequests, 100, ResetPeriodMonthly, created)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), counter.ResetAt())

	daily, err := NewCounter("p", QuotaTypeRequests, 100, ResetPeriodDaily, created)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), daily.ResetAt())
}

func TestPeriodStart(t *testing.T) {
	// Wednesday
	now := time.Date(2026, 3, 18, 15, 45, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC), PeriodStart(ResetPeriodDaily, now))
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), PeriodStart(ResetPeriodWeekly, now))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), PeriodStart(ResetPeriodMonthly, now))

	// Sunday belongs to the week starting the previous Monday
	sunday := time.Date(2026, 3, 22, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), PeriodStart(ResetPeriodWeekly, sunday))
}

func TestCounter_UsagePercent(t *testing.T) {
	now := time.Now()
	counter, err := NewCounter("p", QuotaTypeRequests, 200, ResetPeriodMonthly, now)
	require.NoError(t, err)

	counter.Usage = 50
	assert.InDelta(t, 25.0, counter.UsagePercent(), 0.001)

	counter.Limit = -1
	assert.Equal(t, 0.0, counter.UsagePercent())
}

func TestQuotaType_IsValid(t *testing.T) {
	for _, quotaType := range AllQuotaTypes() {
		assert.True(t, quotaType.IsValid(), quotaType.String())
	}
	assert.False(t, QuotaType("GPU_SECONDS").IsValid())
}

func TestParseQuotaType(t *testing.T) {
	quotaType, err := ParseQuotaType("TOKENS")
	require.NoError(t, err)
	assert.Equal(t, QuotaTypeTokens, quotaType)

	_, err = ParseQuotaType("tokens")
	assert.Error(t, err)
}

func TestUnit_FormatValue(t *testing.T) {
	assert.Equal(t, "42 requests", UnitRequests.FormatValue(42))
	assert.Equal(t, "42 tokens", UnitTokens.FormatValue(42))
	assert.Equal(t, "512 B", UnitBytes.FormatValue(512))
	assert.Equal(t, "2.00 KB", UnitBytes.FormatValue(2048))
	assert.Equal(t, "1.00 GB", UnitBytes.FormatValue(1024*1024*1024))
}
