package app

import (
	"time"

	"github.com/projectshell/subscription-service/internal/domain"
)

// endOfYear returns Dec 31 23:59:59.999 UTC of the date's year, the last
// instant of the membership year.
func endOfYear(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), time.December, 31, 23, 59, 59, 999000000, time.UTC)
}

// startOfNextYear returns Jan 1 00:00:00 UTC of the following year, the
// moment the membership year rolls over.
func startOfNextYear(t time.Time) time.Time {
	return time.Date(t.UTC().Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// classifyMovement decides why a new membership year is starting, based on
// the profile's full subscription history:
//   - no history at all          -> NewJoin
//   - any record started in the
//     requested year             -> Rejoin (an in-year return)
//   - history only in other years -> Reinstate (a lapsed member returning)
func classifyMovement(existing []domain.Subscription, subscriptionYear int) domain.MembershipMovement {
	if len(existing) == 0 {
		return domain.MovementNewJoin
	}
	for _, sub := range existing {
		if sub.StartDate.UTC().Year() == subscriptionYear {
			return domain.MovementRejoin
		}
	}
	return domain.MovementReinstate
}

// parseEventDate accepts the date formats upstream services emit.
func parseEventDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
