package quota

import "fmt"

// QuotaType represents the kind of resource a counter meters
type QuotaType string

const (
	// QuotaTypeRequests tracks the number of API requests made
	QuotaTypeRequests QuotaType = "REQUESTS"

	// QuotaTypeTokens tracks model tokens consumed (prompt + completion)
	QuotaTypeTokens QuotaType = "TOKENS"

	// QuotaTypeStorageBytes tracks storage consumption in bytes
	QuotaTypeStorageBytes QuotaType = "STORAGE_BYTES"

	// QuotaTypeBandwidthBytes tracks network transfer in bytes
	QuotaTypeBandwidthBytes QuotaType = "BANDWIDTH_BYTES"
)

// String returns the string representation of QuotaType
func (q QuotaType) String() string {
	return string(q)
}

// IsValid returns true if the quota type is valid
func (q QuotaType) IsValid() bool {
	switch q {
	case QuotaTypeRequests, QuotaTypeTokens, QuotaTypeStorageBytes, QuotaTypeBandwidthBytes:
		return true
	}
	return false
}

// Unit returns the measurement unit for this quota type
func (q QuotaType) Unit() Unit {
	switch q {
	case QuotaTypeStorageBytes, QuotaTypeBandwidthBytes:
		return UnitBytes
	case QuotaTypeTokens:
		return UnitTokens
	default:
		return UnitRequests
	}
}

// DisplayName returns a human-readable name for the quota type
func (q QuotaType) DisplayName() string {
	switch q {
	case QuotaTypeRequests:
		return "API Requests"
	case QuotaTypeTokens:
		return "Model Tokens"
	case QuotaTypeStorageBytes:
		return "Storage"
	case QuotaTypeBandwidthBytes:
		return "Bandwidth"
	default:
		return string(q)
	}
}

// AllQuotaTypes returns all valid quota types
func AllQuotaTypes() []QuotaType {
	return []QuotaType{
		QuotaTypeRequests,
		QuotaTypeTokens,
		QuotaTypeStorageBytes,
		QuotaTypeBandwidthBytes,
	}
}

// ParseQuotaType parses a string into a QuotaType
func ParseQuotaType(s string) (QuotaType, error) {
	q := QuotaType(s)
	if !q.IsValid() {
		return "", fmt.Errorf("invalid quota type: %s", s)
	}
	return q, nil
}

// Unit represents the unit of measurement for usage
type Unit string

const (
	// UnitRequests represents request/call count
	UnitRequests Unit = "requests"

	// UnitTokens represents model token count
	UnitTokens Unit = "tokens"

	// UnitBytes represents bytes transferred or stored
	UnitBytes Unit = "bytes"
)

// String returns the string representation of Unit
func (u Unit) String() string {
	return string(u)
}

// FormatValue formats a value with the appropriate unit suffix
func (u Unit) FormatValue(value int64) string {
	switch u {
	case UnitBytes:
		return formatBytes(value)
	case UnitTokens:
		return fmt.Sprintf("%d tokens", value)
	case UnitRequests:
		return fmt.Sprintf("%d requests", value)
	default:
		return fmt.Sprintf("%d", value)
	}
}

// formatBytes formats bytes into human-readable format
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// ResetPeriod represents when usage counters reset
type ResetPeriod string

const (
	// ResetPeriodDaily resets usage daily
	ResetPeriodDaily ResetPeriod = "DAILY"

	// ResetPeriodWeekly resets usage weekly
	ResetPeriodWeekly ResetPeriod = "WEEKLY"

	// ResetPeriodMonthly resets usage monthly (most common for billing)
	ResetPeriodMonthly ResetPeriod = "MONTHLY"
)

// String returns the string representation of ResetPeriod
func (r ResetPeriod) String() string {
	return string(r)
}

// IsValid returns true if the reset period is valid
func (r ResetPeriod) IsValid() bool {
	switch r {
	case ResetPeriodDaily, ResetPeriodWeekly, ResetPeriodMonthly:
		return true
	}
	return false
}
