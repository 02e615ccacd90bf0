// Package holiday supplies holiday calendars per scope and year.
//
// A Scope identifies the jurisdiction a calendar applies to: the
// national calendar plus, optionally, one office-specific calendar.
// Providers return the union of both for the requested scope.
package holiday

import (
	"context"
	"errors"
	"time"
)

// ScopeNational is the scope carrying only nationwide holidays.
const ScopeNational = "national"

// ErrUnavailable signals that holiday data could not be obtained.
// Callers must surface it; an empty calendar is never a substitute.
var ErrUnavailable = errors.New("holiday data unavailable")

// DateKey is the canonical key format for calendar dates.
const DateKey = "2006-01-02"

// Holiday is a single calendar entry, unique per (scope, date).
type Holiday struct {
	Scope      string    `json:"scope" yaml:"scope"`
	Date       time.Time `json:"date" yaml:"date"`
	IsNational bool      `json:"is_national" yaml:"is_national"`
}

// Set holds the holidays applying to one (scope, year) lookup,
// keyed by yyyy-mm-dd.
type Set map[string]Holiday

// Contains reports whether the given day is a holiday in the set.
// Only the calendar date is considered, never the time of day.
func (s Set) Contains(t time.Time) bool {
	_, ok := s[t.Format(DateKey)]
	return ok
}

// Add inserts an entry, keeping the (scope, date) uniqueness invariant:
// a national entry never overwrites an office-specific one for the
// same date.
func (s Set) Add(h Holiday) {
	key := h.Date.Format(DateKey)
	if existing, ok := s[key]; ok && !existing.IsNational {
		return
	}
	s[key] = h
}

// Provider supplies the holiday set for one scope and year.
//
// Implementations must return ErrUnavailable (possibly wrapped) when
// the data cannot be obtained, and must include national holidays in
// every scope's result.
type Provider interface {
	Holidays(ctx context.Context, scope string, year int) (Set, error)
}

// Date normalizes a time to midnight UTC, the representation used for
// all calendar dates in this module.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a yyyy-mm-dd string into a normalized date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateKey, s)
}
