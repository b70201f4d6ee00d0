// Package session groups bars into fixed-length or calendar buckets.
//
// A bucket is identified by its start timestamp (unix milliseconds, UTC).
// Grouper merges one instrument's bars into buckets; Resampler does the
// same for many instruments and timeframes at once.
package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"ta-core/internal/core"
)

// Kind is the bucketing rule of a Period.
type Kind int

const (
	Fixed Kind = iota // fixed duration, aligned to the unix epoch
	Daily             // UTC calendar day
	Weekly            // ISO week, starting Monday 00:00 UTC
	Monthly           // UTC calendar month
)

func (k Kind) String() string {
	switch k {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	default:
		return "fixed"
	}
}

// Period describes how bars are bucketed. Seconds is used only by Fixed.
type Period struct {
	Kind    Kind
	Seconds int64
}

var (
	Day   = Period{Kind: Daily}
	Week  = Period{Kind: Weekly}
	Month = Period{Kind: Monthly}
)

// Every returns a fixed period of the given length.
func Every(d time.Duration) Period {
	return Period{Kind: Fixed, Seconds: int64(d / time.Second)}
}

// ParsePeriod accepts "daily", "weekly", "monthly" (or d/w/M), a Go
// duration such as "15m" or "4h", or a plain number of seconds.
func ParsePeriod(s string) (Period, error) {
	switch strings.TrimSpace(s) {
	case "daily", "day", "d", "D":
		return Day, nil
	case "weekly", "week", "w", "W":
		return Week, nil
	case "monthly", "month", "M":
		return Month, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		p := Period{Kind: Fixed, Seconds: n}
		return p, p.Validate()
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return Period{}, core.Invalidf("unknown session period %q", s)
	}
	p := Every(d)
	return p, p.Validate()
}

// Validate reports whether a Fixed period has a positive length.
func (p Period) Validate() error {
	if p.Kind == Fixed && p.Seconds <= 0 {
		return core.Invalidf("fixed period must be >= 1s, got %ds", p.Seconds)
	}
	return nil
}

func (p Period) String() string {
	if p.Kind == Fixed {
		return fmt.Sprintf("%ds", p.Seconds)
	}
	return p.Kind.String()
}

// Start returns the start of the bucket containing tsMillis.
func (p Period) Start(tsMillis int64) int64 {
	switch p.Kind {
	case Daily:
		t := time.UnixMilli(tsMillis).UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).UnixMilli()
	case Weekly:
		t := time.UnixMilli(tsMillis).UTC()
		offset := (int(t.Weekday()) + 6) % 7 // days since Monday
		day := time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
		return day.UnixMilli()
	case Monthly:
		t := time.UnixMilli(tsMillis).UTC()
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	default:
		ms := p.Seconds * 1000
		b := tsMillis - tsMillis%ms
		if tsMillis < 0 && tsMillis%ms != 0 {
			b -= ms
		}
		return b
	}
}
