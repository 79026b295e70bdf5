package hitcount

import (
	"fmt"
	"time"
)

// Config carries every setting the admission core reads. It is built once by the
// caller and handed to the constructors; nothing in this package reads global state.
type Config struct {
	// UseIP enables address extraction, address blocking and the per-address limit.
	UseIP bool
	// KeepHitActive is the window during which earlier hits count against the limits.
	KeepHitActive Span
	// KeepHitInDatabase is the retention window used by the sweeper.
	KeepHitInDatabase Span
	// HitsPerIPLimit caps active hits per address across all counters. 0 means unlimited.
	HitsPerIPLimit int
	// HitsPerSessionLimit caps active hits per session on one counter. 0 means unlimited.
	HitsPerSessionLimit int
	// ExcludeUserGroups lists group names whose members are never counted.
	ExcludeUserGroups []string
}

// DefaultConfig returns a seven day active window, thirty day retention and no limits.
func DefaultConfig() Config {
	return Config{
		KeepHitActive:     Span{Days: 7},
		KeepHitInDatabase: Span{Days: 30},
	}
}

// Validate checks that both windows are set and positive.
func (c Config) Validate() error {
	if err := positiveSpan("KeepHitActive", c.KeepHitActive); err != nil {
		return err
	}
	return positiveSpan("KeepHitInDatabase", c.KeepHitInDatabase)
}

func positiveSpan(name string, s Span) error {
	d, err := s.Duration()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s: span %s is not positive: %w", name, s, ErrConfiguration)
	}
	return nil
}

// Clock returns the current time. Stores default to UTC wall time.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}
