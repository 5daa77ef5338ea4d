// Package importer ingests a team's calendar feed, normalizes every
// occurrence into a training record and merges it idempotently into the
// store, then applies bounded-window retention cleanup.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trainsync/internal/ics"
	"trainsync/internal/log"
	"trainsync/internal/metrics"
	"trainsync/internal/model"
	"trainsync/internal/store"
	"trainsync/internal/timeutil"
)

const (
	defaultLookback  = 24 * time.Hour
	defaultLookahead = 60 * 24 * time.Hour
	defaultRetention = 48 * time.Hour
)

// Importer runs feed import passes against a store.
type Importer struct {
	store    store.Store
	expander ics.Expander

	lookback  time.Duration
	lookahead time.Duration
	retention time.Duration
}

// Option applies a configuration option to the Importer.
type Option func(*Importer)

// WithWindow overrides the import window bounds around "now".
func WithWindow(lookback, lookahead time.Duration) Option {
	return func(i *Importer) {
		if lookback > 0 {
			i.lookback = lookback
		}
		if lookahead > 0 {
			i.lookahead = lookahead
		}
	}
}

// WithRetention overrides the margin past session end before a training
// becomes eligible for deletion.
func WithRetention(margin time.Duration) Option {
	return func(i *Importer) {
		if margin > 0 {
			i.retention = margin
		}
	}
}

// New builds an Importer.
func New(st store.Store, exp ics.Expander, opts ...Option) *Importer {
	i := &Importer{
		store:     st,
		expander:  exp,
		lookback:  defaultLookback,
		lookahead: defaultLookahead,
		retention: defaultRetention,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ImportFeed runs one import pass over feedText for a team.
//
// A document-level parse failure is fatal: it returns an error and a zero
// report. Everything narrower (one occurrence, one store write) is
// isolated into Report.Errors and the pass continues. Writes already
// committed before a fatal error are not rolled back; re-import is safe
// because record identity is an idempotency key.
func (i *Importer) ImportFeed(ctx context.Context, teamID, feedText, source, defaultZone string, now time.Time) (model.ImportReport, error) {
	started := time.Now()
	report := model.ImportReport{RunID: uuid.NewString(), TeamID: teamID}

	windowStart := now.Add(-i.lookback)
	windowEnd := now.Add(i.lookahead)

	res, err := i.expander.Expand(feedText, windowStart, windowEnd, defaultZone)
	if err != nil {
		metrics.ImportPasses.WithLabelValues("fatal").Inc()
		log.Error("feed expansion failed", err, "team", teamID, "run", report.RunID)
		return model.ImportReport{RunID: report.RunID, TeamID: teamID}, fmt.Errorf("expand feed: %w", err)
	}
	report.Errors = append(report.Errors, res.Errors...)

	for _, occ := range res.Occurrences {
		if err := ctx.Err(); err != nil {
			metrics.ImportPasses.WithLabelValues("fatal").Inc()
			return report, err
		}
		if occ.AllDay {
			continue
		}
		i.upsertOccurrence(ctx, teamID, source, res.HeaderZone, defaultZone, occ, now, &report)
	}

	removed, err := i.store.DeleteTrainingsEndedBefore(ctx, teamID, now.Add(-i.retention).UnixMilli())
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("retention cleanup: %v", err))
	}
	report.Removed = removed

	metrics.ImportPasses.WithLabelValues("ok").Inc()
	metrics.TrainingsImported.Add(float64(report.Imported))
	metrics.TrainingsUpdated.Add(float64(report.Updated))
	metrics.TrainingsRemoved.Add(float64(report.Removed))
	metrics.OccurrenceErrors.Add(float64(len(report.Errors)))
	metrics.ImportDuration.Observe(time.Since(started).Seconds())

	log.Info("import pass completed",
		"team", teamID,
		"run", report.RunID,
		"imported", report.Imported,
		"updated", report.Updated,
		"removed", report.Removed,
		"errors", len(report.Errors),
	)
	return report, nil
}

// ImportSource fetches a team's feed and runs ImportFeed on the body.
func (i *Importer) ImportSource(ctx context.Context, fetcher *ics.Fetcher, src ics.Source, source, defaultZone string, now time.Time) (model.ImportReport, error) {
	fetched, err := fetcher.Fetch(ctx, src)
	if err != nil {
		metrics.ImportPasses.WithLabelValues("fatal").Inc()
		return model.ImportReport{TeamID: src.TeamID}, fmt.Errorf("fetch feed: %w", err)
	}
	return i.ImportFeed(ctx, src.TeamID, string(fetched.Body), source, defaultZone, now)
}

func (i *Importer) upsertOccurrence(ctx context.Context, teamID, source, headerZone, defaultZone string, occ ics.Occurrence, now time.Time, report *model.ImportReport) {
	key := model.TrainingKey(occ.UID, occ.StartMillis)

	candidate := model.Training{
		ID:              key,
		TeamID:          teamID,
		Title:           occ.Summary,
		Description:     occ.Description,
		Location:        occ.Location,
		StartMillis:     occ.StartMillis,
		EndMillis:       occ.EndMillis,
		DisplayTimezone: timeutil.ResolveDisplayZone(occ.EventZone, headerZone, defaultZone),
		EventTimezone:   occ.EventZone,
		Source:          source,
		SourceUID:       occ.UID,
		Players:         []string{},
		DeepLink:        model.DeepLinkToken(teamID, key),
	}

	existing, err := i.store.GetTraining(ctx, teamID, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		candidate.CreatedMillis = now.UnixMilli()
		candidate.UpdatedMillis = now.UnixMilli()
		if err := i.store.UpsertTraining(ctx, &candidate); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: create: %v", key, err))
			return
		}
		report.Imported++

	case err != nil:
		report.Errors = append(report.Errors, fmt.Sprintf("%s: read: %v", key, err))

	default:
		// Compare-and-merge: the importer owns the normalized feed
		// fields only. Creation instant and athlete assignments survive
		// every re-import untouched.
		if existing.ContentEquals(&candidate) {
			return
		}
		if existing.Title != candidate.Title {
			// Same UID and start instant but different content: the feed
			// reused a UID. Treated as an update, surfaced in the logs.
			log.Info("training content changed on re-import",
				"team", teamID, "id", key,
				"old_title", existing.Title, "new_title", candidate.Title)
		}
		candidate.CreatedMillis = existing.CreatedMillis
		candidate.Players = existing.Players
		candidate.UpdatedMillis = now.UnixMilli()
		if err := i.store.UpsertTraining(ctx, &candidate); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: update: %v", key, err))
			return
		}
		report.Updated++
	}
}
