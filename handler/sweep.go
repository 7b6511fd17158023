package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelsched/engine/db"
)

// PastDueSweeper periodically runs engine.AdjustPastDueDates across every
// tracked project (spec.md §4.4): open items whose targetDate has slipped
// into the past get nudged forward to today and the schedule recalculates.
// Unlike the webhook-triggered recalculation, nothing upstream tells us when
// "today" silently passes a target date, so this runs on its own clock
// rather than in response to an event.
type PastDueSweeper struct {
	deps     *Deps
	interval time.Duration
	logger   zerolog.Logger
}

// NewPastDueSweeper builds a sweeper bound to deps. A non-positive interval
// disables the sweep (Run returns immediately).
func NewPastDueSweeper(deps *Deps) *PastDueSweeper {
	return &PastDueSweeper{
		deps:     deps,
		interval: deps.Config.PastDueSweepInterval,
		logger:   deps.Logger.With().Str("component", "past_due_sweeper").Logger(),
	}
}

// Run blocks, sweeping every project once per interval, until ctx is
// cancelled. Call it from a goroutine.
func (s *PastDueSweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info().Msg("past-due sweep disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *PastDueSweeper) sweepOnce(ctx context.Context) {
	projects, err := db.ListAllProjects(ctx, s.deps.DB)
	if err != nil {
		s.logger.Error().Err(err).Msg("listing projects for past-due sweep")
		return
	}

	now := time.Now()
	for _, p := range projects {
		rp, err := s.deps.resolveProject(ctx, p.InstallationID, p.OwnerHandle, p.ProjectNumber)
		if err != nil {
			s.logger.Error().Err(err).Int64("installation_id", p.InstallationID).Int("project_number", p.ProjectNumber).Msg("resolving project for past-due sweep")
			continue
		}

		eng := s.deps.newEngine(rp, p.InstallationID)
		result, err := eng.AdjustPastDueDates(ctx, now)
		if err != nil {
			s.logger.Error().Err(err).Int64("installation_id", p.InstallationID).Int("project_number", p.ProjectNumber).Msg("adjusting past-due dates")
			continue
		}
		if result.Updated == 0 {
			continue
		}

		s.deps.Metrics.RecordRecompute(p.InstallationID, 0, result.Updated, result.Skipped)
		s.deps.Audit.Record(p.InstallationID, "recalculate.past_due_sweep",
			fmt.Sprintf(`{"owner":%q,"projectNumber":%d,"updated":%d,"skipped":%d}`, p.OwnerHandle, p.ProjectNumber, result.Updated, result.Skipped))
	}
}
