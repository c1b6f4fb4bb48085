package repository

// Granularity represents candle resolution buckets.
type Granularity string

const (
	Granularity1h Granularity = "1h"
	Granularity4h Granularity = "4h"
	Granularity1d Granularity = "1d"
)

// IsValidGranularity returns true if g is supported.
func IsValidGranularity(g Granularity) bool {
	switch g {
	case Granularity1h, Granularity4h, Granularity1d:
		return true
	default:
		return false
	}
}

// DefaultGranularity is daily; the analyzers' lookbacks are expressed in days.
func DefaultGranularity() Granularity { return Granularity1d }

// NormalizeGranularity converts a raw string to a valid granularity (or default).
func NormalizeGranularity(s string) Granularity {
	if s == "" {
		return DefaultGranularity()
	}
	g := Granularity(s)
	if IsValidGranularity(g) {
		return g
	}
	return DefaultGranularity()
}

// BarsPerDay returns how many bars of g make up one day.
func (g Granularity) BarsPerDay() int {
	switch g {
	case Granularity1h:
		return 24
	case Granularity4h:
		return 6
	default:
		return 1
	}
}
