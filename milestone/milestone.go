// Package milestone implements the Milestone Aggregator (spec.md §4.8):
// per-milestone accumulation of item counts and completion, and a risk
// level derived from due date and pace.
package milestone

import "time"

// Aggregate is one milestone's accumulated state.
type Aggregate struct {
	Number         int
	Title          string
	Open           bool
	DueOn          *time.Time
	ItemCount      int
	CompletedCount int
	TotalDays      int
	RemainingDays  int
	EarliestStart  *time.Time
	LatestTarget   *time.Time
	RiskLevel      string
}

// CompletionPct returns the milestone's completion percentage, 0 when it
// has no items.
func (a Aggregate) CompletionPct() float64 {
	if a.ItemCount == 0 {
		return 0
	}
	return float64(a.CompletedCount) / float64(a.ItemCount) * 100
}

// ItemInput is the minimal per-item data the aggregator folds in.
type ItemInput struct {
	Completed    bool
	DurationDays int
	StartDate    *time.Time
	TargetDate   *time.Time
}

// Accumulate folds one item into a milestone's running aggregate.
func Accumulate(a *Aggregate, it ItemInput) {
	a.ItemCount++
	a.TotalDays += it.DurationDays
	if it.Completed {
		a.CompletedCount++
	} else {
		a.RemainingDays += it.DurationDays
	}
	if it.StartDate != nil && (a.EarliestStart == nil || it.StartDate.Before(*a.EarliestStart)) {
		a.EarliestStart = it.StartDate
	}
	if it.TargetDate != nil && (a.LatestTarget == nil || it.TargetDate.After(*a.LatestTarget)) {
		a.LatestTarget = it.TargetDate
	}
}

// RiskLevel applies the spec.md §4.8 rules, in priority order: critical,
// then high, then medium, else none.
func RiskLevel(a Aggregate, today time.Time) string {
	completionPct := a.CompletionPct()

	if a.Open && a.DueOn != nil && a.DueOn.Before(today) && completionPct < 100 {
		return "critical"
	}
	if a.DueOn != nil && a.LatestTarget != nil && a.LatestTarget.After(*a.DueOn) {
		return "high"
	}
	if a.DueOn != nil && a.EarliestStart != nil && completionPct < 50 {
		total := a.DueOn.Sub(*a.EarliestStart)
		if total > 0 {
			elapsed := today.Sub(*a.EarliestStart)
			elapsedFraction := float64(elapsed) / float64(total) * 100
			if elapsedFraction > 50 {
				return "medium"
			}
		}
	}
	return "none"
}
