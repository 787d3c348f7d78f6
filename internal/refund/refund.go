// Package refund turns a show's refund policy and the time left before the
// show into a refund percentage and amount.
package refund

import (
	"cmp"
	"slices"
	"time"

	"github.com/iliyamo/showbook-chat/internal/model"
)

// ResolvePercent returns the refund percentage for a cancellation made
// hoursBeforeShow hours before the start.  Slabs are considered from the
// largest threshold down and the first one whose threshold is at most
// hoursBeforeShow wins, so a cancellation exactly on a threshold gets that
// slab.  No matching slab, an empty policy or a show that disallows
// cancellation all yield 0.
func ResolvePercent(slabs []model.RefundSlab, hoursBeforeShow float64, cancellationAllowed bool) int {
	if !cancellationAllowed || len(slabs) == 0 {
		return 0
	}
	sorted := slices.Clone(slabs)
	slices.SortStableFunc(sorted, func(a, b model.RefundSlab) int {
		return cmp.Compare(b.HoursBeforeShow, a.HoursBeforeShow)
	})
	for _, s := range sorted {
		if s.HoursBeforeShow <= hoursBeforeShow {
			return clampPercent(s.RefundPercent)
		}
	}
	return 0
}

// HoursBefore is the fractional number of hours from now until startsAt.
// Both instants are compared in UTC; the result is negative once the show
// has started.
func HoursBefore(startsAt, now time.Time) float64 {
	return startsAt.UTC().Sub(now.UTC()).Hours()
}

// Amount is percent of cents, rounded half up to the nearest minor unit.
func Amount(cents int64, percent int) int64 {
	percent = clampPercent(percent)
	if cents <= 0 || percent == 0 {
		return 0
	}
	return (cents*int64(percent) + 50) / 100
}

func clampPercent(p int) int {
	return min(max(p, 0), 100)
}
