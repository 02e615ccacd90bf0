//go:build property
// +build property

package deadline

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/vento-labs/lexops/pkg/holiday"
)

// TestDeadlineMonotonicInDayCount verifies the core ordering property:
// for any fixed calendar and start date, increasing the day count never
// moves the deadline earlier.
func TestDeadlineMonotonicInDayCount(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	provider := staticProvider{dates: []time.Time{
		holiday.Date(2024, time.January, 1),
		holiday.Date(2024, time.May, 1),
		holiday.Date(2024, time.October, 12),
		holiday.Date(2024, time.December, 25),
	}}
	c := NewCalculator(provider, fixedClock{now: holiday.Date(2024, time.January, 2)})

	properties.Property("deadline never decreases with dayCount", prop.ForAll(
		func(startOffset, n1, n2 int) bool {
			if n1 > n2 {
				n1, n2 = n2, n1
			}
			start := holiday.Date(2024, time.January, 2).AddDate(0, 0, startOffset)

			r1, err1 := c.Compute(context.Background(), Request{
				StartDate: start, DayCount: n1, DayKind: DayKindBusiness,
			})
			r2, err2 := c.Compute(context.Background(), Request{
				StartDate: start, DayCount: n2, DayKind: DayKindBusiness,
			})
			if err1 != nil || err2 != nil {
				return false
			}
			return !r2.DeadlineDate.Before(r1.DeadlineDate)
		},
		gen.IntRange(0, 300),
		gen.IntRange(1, 40),
		gen.IntRange(1, 40),
	))

	properties.Property("grace end strictly after deadline at 15:00:59", prop.ForAll(
		func(startOffset, n int) bool {
			start := holiday.Date(2024, time.January, 2).AddDate(0, 0, startOffset)
			res, err := c.Compute(context.Background(), Request{
				StartDate: start, DayCount: n, DayKind: DayKindBusiness,
			})
			if err != nil {
				return false
			}
			g := res.GracePeriodEnd
			return g.After(res.DeadlineDate) &&
				g.Hour() == 15 && g.Minute() == 0 && g.Second() == 59
		},
		gen.IntRange(0, 300),
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}
