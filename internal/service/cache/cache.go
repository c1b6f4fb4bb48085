package cache

import (
	"errors"
	"time"
)

// ErrInvalidTTL is returned when a cache is built with a non-positive TTL.
var ErrInvalidTTL = errors.New("cache: ttl must be > 0")

// CachedUniverse is one universe entry as stored locally and in the mirror.
type CachedUniverse struct {
	Pairs     []string  `json:"pairs"`
	WrittenAt time.Time `json:"written_at"`
}

// Age returns how old the entry is at now.
func (e CachedUniverse) Age(now time.Time) time.Duration {
	return now.Sub(e.WrittenAt)
}
