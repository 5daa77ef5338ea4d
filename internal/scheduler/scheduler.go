// Package scheduler drives periodic feed imports from a cron expression.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"trainsync/internal/config"
	"trainsync/internal/ics"
	"trainsync/internal/importer"
	"trainsync/internal/log"
)

// Scheduler runs an import cycle over all configured team feeds on a cron
// schedule. Overlapping cycles for the same team converge on the same
// records, so no mutual exclusion is needed at this layer.
type Scheduler struct {
	cfg     *config.Config
	imp     *importer.Importer
	fetcher *ics.Fetcher
	cron    *cron.Cron
}

// New builds a Scheduler.
func New(cfg *config.Config, imp *importer.Importer, fetcher *ics.Fetcher) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		imp:     imp,
		fetcher: fetcher,
		cron:    cron.New(),
	}
}

// Start registers the cron entry and begins running cycles. The context
// bounds each cycle; Stop shuts the cron down.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.cfg.RefreshCron, func() {
		s.RunCycle(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	log.Info("import scheduler started", "cron", s.cfg.RefreshCron, "teams", len(s.cfg.Teams))
	return nil
}

// Stop halts scheduling; a cycle already in flight finishes.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// RunCycle imports every configured team feed once. Per-team failures are
// logged and do not stop the cycle.
func (s *Scheduler) RunCycle(ctx context.Context) {
	now := time.Now().UTC()
	for _, team := range s.cfg.Teams {
		if ctx.Err() != nil {
			return
		}
		if team.FeedURL == "" {
			continue
		}

		src := ics.Source{TeamID: team.ID, URL: team.FeedURL}
		report, err := s.imp.ImportSource(ctx, s.fetcher, src, team.Source, team.Timezone, now)
		if err != nil {
			log.Error("scheduled import failed", err, "team", team.ID, "url", ics.RedactURL(team.FeedURL))
			continue
		}
		log.Debug("scheduled import done",
			"team", team.ID,
			"imported", report.Imported,
			"updated", report.Updated,
			"removed", report.Removed,
		)
	}
}
