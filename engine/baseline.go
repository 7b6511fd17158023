package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrelsched/engine/calendar"
)

// SaveBaseline writes the baseline start/target fields for every item whose
// startDate or targetDate is set but whose corresponding baseline field is
// unset. An existing baseline is never overwritten (spec.md §4.4).
func (e *Engine) SaveBaseline(ctx context.Context) (BaselineResult, error) {
	items, _, err := e.upstream.FetchAllItems(ctx, e.ref)
	if err != nil {
		return BaselineResult{}, fmt.Errorf("loading items: %w", err)
	}
	fieldIDs, err := e.upstream.ResolveFieldIDs(ctx, e.ref)
	if err != nil {
		return BaselineResult{}, fmt.Errorf("resolving field ids: %w", err)
	}

	var saved int
	for _, it := range items {
		wrote := false
		if it.StartDate != nil && it.BaselineStart == nil && fieldIDs.BaselineStart != "" {
			if err := e.upstream.WriteDateField(ctx, e.ref, it.ExternalID, fieldIDs.BaselineStart, *it.StartDate); err != nil {
				e.logger.Error().Err(err).Int("issue", it.IssueNumber).Msg("writing baseline start failed")
			} else {
				wrote = true
			}
		}
		if it.TargetDate != nil && it.BaselineTarget == nil && fieldIDs.BaselineTarget != "" {
			if err := e.upstream.WriteDateField(ctx, e.ref, it.ExternalID, fieldIDs.BaselineTarget, *it.TargetDate); err != nil {
				e.logger.Error().Err(err).Int("issue", it.IssueNumber).Msg("writing baseline target failed")
			} else {
				wrote = true
			}
		}
		if wrote {
			saved++
		}
	}

	e.logger.Info().Int("saved", saved).Msg("baseline saved")
	return BaselineResult{Saved: saved}, nil
}

// GenerateVarianceReport computes, per item, the signed working-day
// difference between current target and baseline target, and tallies the
// project-level summary (spec.md §4.9). Completed items are reported as
// onTrack, unifying the source's "done" bucket into onTrack per the
// variance sign convention decided in SPEC_FULL.md's open questions.
func (e *Engine) GenerateVarianceReport(ctx context.Context) (VarianceReport, error) {
	items, _, err := e.upstream.FetchAllItems(ctx, e.ref)
	if err != nil {
		return VarianceReport{}, fmt.Errorf("loading items: %w", err)
	}

	var report VarianceReport
	for _, it := range items {
		if it.BaselineTarget == nil {
			report.Summary.NoBaseline++
			report.Items = append(report.Items, ItemVariance{IssueNumber: it.IssueNumber, Status: "noBaseline"})
			continue
		}
		if it.IsCompleted() {
			report.Summary.OnTrack++
			report.Items = append(report.Items, ItemVariance{IssueNumber: it.IssueNumber, Status: "onTrack"})
			continue
		}
		if it.TargetDate == nil {
			report.Summary.NoBaseline++
			report.Items = append(report.Items, ItemVariance{IssueNumber: it.IssueNumber, Status: "noBaseline"})
			continue
		}

		variance := e.cal.WorkingDaysBetween(*it.BaselineTarget, *it.TargetDate)
		if it.TargetDate.Before(*it.BaselineTarget) {
			variance = -variance
		}

		status := "onTrack"
		switch {
		case variance < 0:
			status = "ahead"
			report.Summary.Ahead++
		case variance > 0:
			status = "behind"
			report.Summary.Behind++
		default:
			report.Summary.OnTrack++
		}
		report.Items = append(report.Items, ItemVariance{IssueNumber: it.IssueNumber, VarianceDays: variance, Status: status})
	}
	return report, nil
}

// OnIssueClosed sets Actual End Date to today if unset, then recalculates
// the project to cascade the change to dependents (spec.md §4.4).
func (e *Engine) OnIssueClosed(ctx context.Context, issueNumber int, now time.Time) (RecalculateResult, error) {
	items, _, err := e.upstream.FetchAllItems(ctx, e.ref)
	if err != nil {
		return RecalculateResult{}, fmt.Errorf("loading items: %w", err)
	}
	fieldIDs, err := e.upstream.ResolveFieldIDs(ctx, e.ref)
	if err != nil {
		return RecalculateResult{}, fmt.Errorf("resolving field ids: %w", err)
	}

	for _, it := range items {
		if it.IssueNumber != issueNumber {
			continue
		}
		if it.ActualEndDate == nil && fieldIDs.ActualEnd != "" {
			today := calendar.Day(now)
			if err := e.upstream.WriteDateField(ctx, e.ref, it.ExternalID, fieldIDs.ActualEnd, today); err != nil {
				e.logger.Error().Err(err).Int("issue", issueNumber).Msg("writing actual end date failed")
			}
		}
		break
	}

	return e.RecalculateAll(ctx, now)
}

// AdjustPastDueDates sets targetDate to today for every open item whose
// targetDate is before today, then recalculates to cascade (spec.md §4.4).
func (e *Engine) AdjustPastDueDates(ctx context.Context, now time.Time) (RecalculateResult, error) {
	items, _, err := e.upstream.FetchAllItems(ctx, e.ref)
	if err != nil {
		return RecalculateResult{}, fmt.Errorf("loading items: %w", err)
	}
	fieldIDs, err := e.upstream.ResolveFieldIDs(ctx, e.ref)
	if err != nil {
		return RecalculateResult{}, fmt.Errorf("resolving field ids: %w", err)
	}
	today := calendar.Day(now)

	for _, it := range items {
		if it.IsCompleted() || it.TargetDate == nil || !it.TargetDate.Before(today) {
			continue
		}
		if fieldIDs.TargetDate == "" {
			continue
		}
		if err := e.upstream.WriteDateField(ctx, e.ref, it.ExternalID, fieldIDs.TargetDate, today); err != nil {
			e.logger.Error().Err(err).Int("issue", it.IssueNumber).Msg("adjusting past-due target date failed")
		}
	}

	return e.RecalculateAll(ctx, now)
}
