// Package engine implements the Date Engine (spec.md §4.4): the
// topological recomputation of item dates for one (installation, project),
// baseline capture, variance reporting, and the two targeted recompute
// triggers (issue closed, past-due sweep).
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelsched/engine/apperr"
	"github.com/kestrelsched/engine/calendar"
	"github.com/kestrelsched/engine/client"
	"github.com/kestrelsched/engine/config"
	"github.com/kestrelsched/engine/model"
	"github.com/kestrelsched/engine/store"
)

// MaxFreeTrackedIssues is the Free-plan cap on processed items — the
// paginated result is truncated to this prefix (spec.md §6.3).
const MaxFreeTrackedIssues = 25

// RecalculateResult is the outcome of recalculateAll (spec.md §4.4/§6.3).
type RecalculateResult struct {
	Updated        int
	Skipped        int
	LimitReached   bool
	TotalItems     int
	ProcessedItems int
}

// BaselineResult is the outcome of saveBaseline.
type BaselineResult struct {
	Saved int
}

// ItemVariance is one item's current-vs-baseline comparison.
type ItemVariance struct {
	IssueNumber  int
	VarianceDays int // signed; negative means ahead of baseline
	Status       string
}

// VarianceReport is the outcome of generateVarianceReport (spec.md §4.9).
type VarianceReport struct {
	Items   []ItemVariance
	Summary VarianceSummary
}

// VarianceSummary tallies items by variance status.
type VarianceSummary struct {
	Ahead     int
	OnTrack   int
	Behind    int
	NoBaseline int
}

// computedDates is the Date Engine's working-set entry for one item,
// produced by the traversal pass before the diff-and-write step.
type computedDates struct {
	startDate            *time.Time
	targetDate            *time.Time
	endDateForDependents  *time.Time
	isSummary             bool
	isCompleted           bool
}

// Engine runs the Date Engine's operations for one (installation, project).
type Engine struct {
	cal      *calendar.Calendar
	upstream client.Client
	settings config.Settings
	logger   zerolog.Logger
	ref      client.ProjectRef

	installationID int64
	isPro          bool
}

// New builds an Engine for one recomputation. isPro gates the Free-tier
// item cap (spec.md §6.3).
func New(cal *calendar.Calendar, upstream client.Client, settings config.Settings, logger zerolog.Logger, ref client.ProjectRef, installationID int64, isPro bool) *Engine {
	return &Engine{
		cal:            cal,
		upstream:       upstream,
		settings:       settings,
		logger:         logger.With().Str("component", "date_engine").Int("project_number", ref.ProjectNumber).Logger(),
		ref:            ref,
		installationID: installationID,
		isPro:          isPro,
	}
}

// LoadSnapshot fetches a project's items (applying the Free-tier item cap)
// and indexes them into a Store, for the read-only view endpoints
// (dependencies/critical path, resources, milestones) that don't need a
// full recomputation.
func (e *Engine) LoadSnapshot(ctx context.Context) (*store.Store, bool, error) {
	items, limitReached, err := e.upstream.FetchAllItems(ctx, e.ref)
	if err != nil {
		return nil, false, fmt.Errorf("loading items: %w", err)
	}
	if !e.isPro && len(items) > MaxFreeTrackedIssues {
		items = items[:MaxFreeTrackedIssues]
		limitReached = true
	}
	return store.New(items), limitReached, nil
}

// LeafDurationDays returns an item's working-day duration (estimate size
// plus confidence buffer) per the Estimate/Confidence tables, independent
// of its computed schedule. Summary and completed items have no
// self-contained duration; callers pass 0 for those.
func (e *Engine) LeafDurationDays(it *model.Item) int {
	duration := e.settings.EstimateDaysOrDefault(estimateString(it.Estimate))
	buffer := e.settings.ConfidenceBufferOrDefault(confidenceString(it.Confidence))
	return duration + buffer
}

// RecalculateAll loads items, computes dates, diffs against current field
// values, and writes changed dates back — start before target, per
// spec.md §5's write-ordering guarantee. See spec.md §4.4 for the full
// algorithm.
func (e *Engine) RecalculateAll(ctx context.Context, now time.Time) (RecalculateResult, error) {
	items, limitReached, err := e.upstream.FetchAllItems(ctx, e.ref)
	if err != nil {
		return RecalculateResult{}, fmt.Errorf("loading items: %w", err)
	}
	total := len(items)

	if !e.isPro && len(items) > MaxFreeTrackedIssues {
		items = items[:MaxFreeTrackedIssues]
		limitReached = true
	}

	s := store.New(items)
	order := s.TopologicalOrder()
	computed := e.computeDates(s, order, now)
	e.rollUpParents(s, computed)

	fieldIDs, err := e.upstream.ResolveFieldIDs(ctx, e.ref)
	if err != nil {
		return RecalculateResult{}, fmt.Errorf("resolving field ids: %w", err)
	}

	result := RecalculateResult{TotalItems: total, ProcessedItems: len(items), LimitReached: limitReached}
	for _, n := range order {
		it, _ := s.Get(n)
		cd := computed[n]
		if cd == nil || cd.isSummary || cd.isCompleted {
			continue
		}
		changed, err := e.writeIfChanged(ctx, it, cd, fieldIDs)
		if err != nil {
			e.logger.Error().Err(err).Int("issue", n).Msg("upstream write failed, skipping item")
			result.Skipped++
			continue
		}
		if changed {
			result.Updated++
		} else {
			result.Skipped++
		}
	}

	e.logger.Info().
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Bool("limit_reached", result.LimitReached).
		Msg("recalculate complete")
	return result, nil
}

// writeIfChanged diffs computed dates against the item's currently loaded
// field values and writes start before target when either differs.
func (e *Engine) writeIfChanged(ctx context.Context, it *model.Item, cd *computedDates, fieldIDs model.FieldIDs) (bool, error) {
	changed := false
	if cd.startDate != nil && !samDay(cd.startDate, it.StartDate) {
		if fieldIDs.StartDate == "" {
			return false, &apperr.UpstreamError{Op: "write start date", Err: fmt.Errorf("no field id resolved")}
		}
		if err := e.upstream.WriteDateField(ctx, e.ref, it.ExternalID, fieldIDs.StartDate, *cd.startDate); err != nil {
			return false, &apperr.UpstreamError{Op: "write start date", Err: err}
		}
		changed = true
	}
	if cd.targetDate != nil && !samDay(cd.targetDate, it.TargetDate) {
		if fieldIDs.TargetDate == "" {
			return false, &apperr.UpstreamError{Op: "write target date", Err: fmt.Errorf("no field id resolved")}
		}
		if err := e.upstream.WriteDateField(ctx, e.ref, it.ExternalID, fieldIDs.TargetDate, *cd.targetDate); err != nil {
			return false, &apperr.UpstreamError{Op: "write target date", Err: err}
		}
		changed = true
	}
	return changed, nil
}

func samDay(a, b *time.Time) bool {
	if b == nil {
		return false
	}
	return calendar.Day(*a).Equal(calendar.Day(*b))
}

// computeDates runs spec.md §4.4 step 3 over the topological order,
// taking the completed, summary or leaf branch by checking IsCompleted and
// then HasChildren on each item. No separate variant type is built.
func (e *Engine) computeDates(s *store.Store, order []int, now time.Time) map[int]*computedDates {
	out := make(map[int]*computedDates, len(order))
	today := calendar.Day(now)

	for _, n := range order {
		it, ok := s.Get(n)
		if !ok {
			continue
		}
		switch {
		case it.IsCompleted():
			out[n] = &computedDates{endDateForDependents: completedEndDate(it), isCompleted: true}
		case it.HasChildren():
			out[n] = &computedDates{isSummary: true}
		default:
			out[n] = e.computeLeaf(s, it, out, today)
		}
	}
	return out
}

// completedEndDate implements spec.md §4.4 step 3's completed branch:
// actualEndDate, falling back to closedAt's date, falling back to
// targetDate.
func completedEndDate(it *model.Item) *time.Time {
	if it.ActualEndDate != nil {
		d := calendar.Day(*it.ActualEndDate)
		return &d
	}
	if it.ClosedAt != nil {
		d := calendar.Day(*it.ClosedAt)
		return &d
	}
	return it.TargetDate
}

// computeLeaf implements spec.md §4.4 step 3's leaf branch.
func (e *Engine) computeLeaf(s *store.Store, it *model.Item, computed map[int]*computedDates, today time.Time) *computedDates {
	startCandidate := e.cal.NextWorkingDay(today)

	var maxPredecessorEnd *time.Time
	for _, blockerNum := range s.Blockers(it.IssueNumber) {
		blocker, ok := s.Get(blockerNum)
		if !ok {
			continue
		}
		bc := computed[blockerNum]
		var end *time.Time
		if bc != nil && bc.endDateForDependents != nil {
			end = bc.endDateForDependents
		} else if blocker.TargetDate != nil {
			end = blocker.TargetDate
		}
		if end == nil {
			continue
		}
		if maxPredecessorEnd == nil || end.After(*maxPredecessorEnd) {
			maxPredecessorEnd = end
		}
	}
	if maxPredecessorEnd != nil {
		next := maxPredecessorEnd.AddDate(0, 0, 1)
		startCandidate = e.cal.NextWorkingDay(next)
	}

	duration := e.settings.EstimateDaysOrDefault(estimateString(it.Estimate))
	buffer := e.settings.ConfidenceBufferOrDefault(confidenceString(it.Confidence))
	target := e.cal.AddWorkingDays(startCandidate, duration+buffer)

	return &computedDates{
		startDate:            &startCandidate,
		targetDate:           &target,
		endDateForDependents: &target,
	}
}

func estimateString(e *model.Estimate) string {
	if e == nil {
		return ""
	}
	return string(*e)
}

func confidenceString(c *model.Confidence) string {
	if c == nil {
		return "Medium"
	}
	return string(*c)
}

// rollUpParents implements spec.md §4.4 step 4: a parent's startDate is the
// min of its children's starts, targetDate the max of its children's
// targets. Parents with zero computed children retain no dates.
func (e *Engine) rollUpParents(s *store.Store, computed map[int]*computedDates) {
	for _, parent := range s.Parents() {
		var minStart, maxTarget *time.Time
		for _, child := range s.Children(parent) {
			cd := computed[child]
			if cd == nil {
				continue
			}
			if cd.startDate != nil && (minStart == nil || cd.startDate.Before(*minStart)) {
				minStart = cd.startDate
			}
			if cd.targetDate != nil && (maxTarget == nil || cd.targetDate.After(*maxTarget)) {
				maxTarget = cd.targetDate
			}
		}
		if minStart == nil && maxTarget == nil {
			continue
		}
		pc := computed[parent]
		if pc == nil {
			pc = &computedDates{isSummary: true}
			computed[parent] = pc
		}
		pc.startDate = minStart
		pc.targetDate = maxTarget
	}
}
