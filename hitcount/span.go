package hitcount

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Span is a calendar-free duration expressed in units, e.g. {"days": 7, "minutes": 30}.
// At least one unit must be set; a zero Span never silently means "no window".
type Span struct {
	Weeks        int `json:"weeks,omitempty"`
	Days         int `json:"days,omitempty"`
	Hours        int `json:"hours,omitempty"`
	Minutes      int `json:"minutes,omitempty"`
	Seconds      int `json:"seconds,omitempty"`
	Milliseconds int `json:"milliseconds,omitempty"`
	Microseconds int `json:"microseconds,omitempty"`
}

// IsZero reports whether no unit is set.
func (s Span) IsZero() bool {
	return s == Span{}
}

// Duration converts the span, failing with ErrConfiguration when no unit was given.
func (s Span) Duration() (time.Duration, error) {
	if s.IsZero() {
		return 0, fmt.Errorf("span needs at least one time unit (e.g. days=1): %w", ErrConfiguration)
	}
	d := time.Duration(s.Weeks)*7*24*time.Hour +
		time.Duration(s.Days)*24*time.Hour +
		time.Duration(s.Hours)*time.Hour +
		time.Duration(s.Minutes)*time.Minute +
		time.Duration(s.Seconds)*time.Second +
		time.Duration(s.Milliseconds)*time.Millisecond +
		time.Duration(s.Microseconds)*time.Microsecond
	return d, nil
}

func (s Span) String() string {
	var parts []string
	add := func(name string, v int) {
		if v != 0 {
			parts = append(parts, name+"="+strconv.Itoa(v))
		}
	}
	add("weeks", s.Weeks)
	add("days", s.Days)
	add("hours", s.Hours)
	add("minutes", s.Minutes)
	add("seconds", s.Seconds)
	add("milliseconds", s.Milliseconds)
	add("microseconds", s.Microseconds)
	return strings.Join(parts, ",")
}

// Set assigns a single unit by name. Unknown units are a configuration error.
func (s *Span) Set(unit string, v int) error {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "weeks", "week":
		s.Weeks = v
	case "days", "day":
		s.Days = v
	case "hours", "hour":
		s.Hours = v
	case "minutes", "minute":
		s.Minutes = v
	case "seconds", "second":
		s.Seconds = v
	case "milliseconds", "millisecond":
		s.Milliseconds = v
	case "microseconds", "microsecond":
		s.Microseconds = v
	default:
		return fmt.Errorf("unknown time unit %q: %w", unit, ErrConfiguration)
	}
	return nil
}

// ParseSpan accepts "days=7,minutes=30" or a Go duration such as "36h".
func ParseSpan(raw string) (Span, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Span{}, fmt.Errorf("empty span: %w", ErrConfiguration)
	}
	if !strings.Contains(raw, "=") {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Span{}, fmt.Errorf("parse span %q: %w", raw, ErrConfiguration)
		}
		return Span{Microseconds: int(d / time.Microsecond)}, nil
	}
	var s Span
	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return Span{}, fmt.Errorf("parse span %q: %w", raw, ErrConfiguration)
		}
		n, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return Span{}, fmt.Errorf("parse span %q: %w", raw, ErrConfiguration)
		}
		if err := s.Set(kv[0], n); err != nil {
			return Span{}, err
		}
	}
	return s, nil
}
