// Package deadline computes legally binding filing deadlines from
// classified notification facts.
//
// A business day is a day that is not a weekend day, not in August
// (the whole month is exempt by convention), and not a holiday in the
// applicable scope. Deadlines, grace periods, remaining-day counts and
// the alert schedule are always recomputed fresh; nothing here is
// cached beyond the single holiday-set fetch per (scope, year) within
// one calculation.
package deadline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vento-labs/lexops/pkg/holiday"
)

// DayKind selects the counting convention for a deadline.
type DayKind string

const (
	// DayKindBusiness counts qualifying business days only.
	DayKindBusiness DayKind = "BUSINESS"
	// DayKindNatural counts plain calendar days.
	DayKindNatural DayKind = "NATURAL"
)

// Channel is an alert delivery channel.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelInApp Channel = "IN_APP"
)

var (
	// ErrValidation marks a malformed request, rejected before any
	// computation and never retried.
	ErrValidation = errors.New("invalid deadline request")
	// ErrDependency marks a failure of the holiday calendar
	// collaborator. It is never masked as "no holidays".
	ErrDependency = errors.New("deadline dependency failure")
	// ErrComputationBound is raised when the business-day walk exceeds
	// its iteration cap, which signals a malformed holiday calendar.
	// It is a DependencyError-class failure.
	ErrComputationBound = fmt.Errorf("%w: day-walk iteration bound exceeded", ErrDependency)
)

// Grace-period filings count as timely up to this wall-clock instant
// on the first business day after the deadline.
const (
	graceHour   = 15
	graceMinute = 0
	graceSecond = 59
)

// graceWalkBound caps the search for the next qualifying business day
// after a deadline, independent of the request's day count.
const graceWalkBound = 120

// Request describes one deadline computation. It is an immutable input
// and is never persisted as an entity.
type Request struct {
	StartDate time.Time `json:"start_date"`
	DayCount  int       `json:"day_count"`
	DayKind   DayKind   `json:"day_kind"`
	Scope     string    `json:"scope"`
}

// AlertSpec is one derived alert. Alerts are generated
// deterministically and never hand-edited; filtering of past-due
// alerts happens at delivery, not here.
type AlertSpec struct {
	Channel   Channel   `json:"channel"`
	TriggerAt time.Time `json:"trigger_at"`
	LeadHours int       `json:"lead_hours"`
	Message   string    `json:"message"`
}

// Result is the full outcome of one deadline computation. It is always
// recomputed fresh; BusinessDaysRemaining is relative to "now" at read
// time and must never be stored.
type Result struct {
	DeadlineDate          time.Time   `json:"deadline_date"`
	GracePeriodEnd        time.Time   `json:"grace_period_end"`
	BusinessDaysRemaining int         `json:"business_days_remaining"`
	Urgent                bool        `json:"urgent"`
	Alerts                []AlertSpec `json:"alerts"`
}

// Calculator performs pure temporal computation against an injected
// holiday provider and clock.
type Calculator struct {
	provider holiday.Provider
	clock    Clock
}

// NewCalculator creates a calculator. A nil clock defaults to the wall
// clock.
func NewCalculator(provider holiday.Provider, clock Clock) *Calculator {
	if clock == nil {
		clock = wallClock{}
	}
	return &Calculator{provider: provider, clock: clock}
}

// yearSets lazily fetches holiday sets, at most once per (scope, year)
// within a single calculation. It is scoped to one Compute call — an
// explicitly injected cache, never a process-wide one.
type yearSets struct {
	provider holiday.Provider
	scope    string
	byYear   map[int]holiday.Set
}

func (y *yearSets) holiday(ctx context.Context, d time.Time) (bool, error) {
	set, ok := y.byYear[d.Year()]
	if !ok {
		fetched, err := y.provider.Holidays(ctx, y.scope, d.Year())
		if err != nil {
			return false, fmt.Errorf("%w: holidays %s/%d: %v", ErrDependency, y.scope, d.Year(), err)
		}
		y.byYear[d.Year()] = fetched
		set = fetched
	}
	return set.Contains(d), nil
}

// qualifies reports whether d counts as a business day in scope.
func (y *yearSets) qualifies(ctx context.Context, d time.Time) (bool, error) {
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false, nil
	}
	if d.Month() == time.August {
		return false, nil
	}
	isHoliday, err := y.holiday(ctx, d)
	if err != nil {
		return false, err
	}
	return !isHoliday, nil
}

// Compute resolves a deadline request into a full Result.
func (c *Calculator) Compute(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	sets := &yearSets{provider: c.provider, scope: req.Scope, byYear: make(map[int]holiday.Set)}
	start := dateOnly(req.StartDate)

	var deadlineDate time.Time
	switch req.DayKind {
	case DayKindBusiness:
		d, err := walkForward(ctx, sets, start, req.DayCount, 3*req.DayCount+60)
		if err != nil {
			return nil, err
		}
		deadlineDate = d
	case DayKindNatural:
		// Start date excluded, then plain calendar days. No weekend,
		// holiday or August adjustment.
		deadlineDate = start.AddDate(0, 0, 1+req.DayCount)
	default:
		return nil, fmt.Errorf("%w: unknown day kind %q", ErrValidation, req.DayKind)
	}

	graceDay, err := walkForward(ctx, sets, deadlineDate, 1, graceWalkBound)
	if err != nil {
		return nil, err
	}
	graceEnd := time.Date(graceDay.Year(), graceDay.Month(), graceDay.Day(),
		graceHour, graceMinute, graceSecond, 0, time.UTC)

	remaining, err := c.remaining(ctx, sets, deadlineDate)
	if err != nil {
		return nil, err
	}

	alerts, err := buildAlerts(ctx, sets, deadlineDate, graceEnd, remaining)
	if err != nil {
		return nil, err
	}

	return &Result{
		DeadlineDate:          deadlineDate,
		GracePeriodEnd:        graceEnd,
		BusinessDaysRemaining: remaining,
		Urgent:                remaining <= 3,
		Alerts:                alerts,
	}, nil
}

func validate(req Request) error {
	if req.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrValidation)
	}
	if req.DayCount <= 0 {
		return fmt.Errorf("%w: day count must be positive, got %d", ErrValidation, req.DayCount)
	}
	if req.DayKind != DayKindBusiness && req.DayKind != DayKindNatural {
		return fmt.Errorf("%w: unknown day kind %q", ErrValidation, req.DayKind)
	}
	return nil
}

// walkForward returns the n-th qualifying business day strictly after
// start. The loop is explicit and bounded: a pathological holiday
// calendar fails with ErrComputationBound instead of hanging.
func walkForward(ctx context.Context, sets *yearSets, start time.Time, n, bound int) (time.Time, error) {
	d := start
	counted := 0
	for i := 0; i < bound; i++ {
		d = d.AddDate(0, 0, 1)
		ok, err := sets.qualifies(ctx, d)
		if err != nil {
			return time.Time{}, err
		}
		if ok {
			counted++
			if counted == n {
				return d, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("%w: %d qualifying days not found within %d iterations", ErrComputationBound, n, bound)
}

// walkBack returns the n-th qualifying business day strictly before
// from, with the same bound discipline as walkForward.
func walkBack(ctx context.Context, sets *yearSets, from time.Time, n int) (time.Time, error) {
	d := from
	counted := 0
	for i := 0; i < graceWalkBound; i++ {
		d = d.AddDate(0, 0, -1)
		ok, err := sets.qualifies(ctx, d)
		if err != nil {
			return time.Time{}, err
		}
		if ok {
			counted++
			if counted == n {
				return d, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("%w: %d qualifying days not found walking back", ErrComputationBound, n)
}

// remaining counts qualifying business days d with now < d <=
// deadline. The deadline day itself counts when it qualifies. A
// deadline on or before today yields zero.
func (c *Calculator) remaining(ctx context.Context, sets *yearSets, deadlineDate time.Time) (int, error) {
	d := dateOnly(c.clock.Now())
	count := 0
	for {
		d = d.AddDate(0, 0, 1)
		if d.After(deadlineDate) {
			return count, nil
		}
		ok, err := sets.qualifies(ctx, d)
		if err != nil {
			return 0, err
		}
		if ok {
			count++
		}
	}
}

// buildAlerts derives the alert schedule for a deadline. The grace
// alert is always present; the 48h and 24h alerts are gated on how
// many business days remain.
func buildAlerts(ctx context.Context, sets *yearSets, deadlineDate, graceEnd time.Time, remaining int) ([]AlertSpec, error) {
	alerts := make([]AlertSpec, 0, 4)
	deadlineKey := deadlineDate.Format(holiday.DateKey)

	if remaining >= 2 {
		day, err := walkBack(ctx, sets, deadlineDate, 2)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, AlertSpec{
			Channel:   ChannelEmail,
			TriggerAt: at(day, 9, 0, 0),
			LeadHours: 48,
			Message:   fmt.Sprintf("Deadline %s is 2 business days away", deadlineKey),
		})
	}
	if remaining >= 1 {
		day, err := walkBack(ctx, sets, deadlineDate, 1)
		if err != nil {
			return nil, err
		}
		msg := fmt.Sprintf("Deadline %s is 1 business day away", deadlineKey)
		trigger := at(day, 9, 0, 0)
		alerts = append(alerts,
			AlertSpec{Channel: ChannelEmail, TriggerAt: trigger, LeadHours: 24, Message: msg},
			AlertSpec{Channel: ChannelSMS, TriggerAt: trigger, LeadHours: 24, Message: msg},
		)
	}
	alerts = append(alerts, AlertSpec{
		Channel:   ChannelEmail,
		TriggerAt: graceEnd.Add(-6 * time.Hour),
		LeadHours: 6,
		Message:   fmt.Sprintf("Grace period for deadline %s ends %s at 15:00:59", deadlineKey, graceEnd.Format(holiday.DateKey)),
	})
	return alerts, nil
}

func at(day time.Time, h, m, s int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, s, 0, time.UTC)
}

func dateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
