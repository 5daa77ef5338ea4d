// Package schedule is the read side of the service: it joins training
// records with an athlete's response facts and computes the questionnaire
// availability state per record. Nothing here mutates stored trainings,
// and no state is cached between calls.
package schedule

import (
	"context"
	"errors"
	"sort"
	"time"

	"trainsync/internal/log"
	"trainsync/internal/metrics"
	"trainsync/internal/model"
	"trainsync/internal/questionnaire"
	"trainsync/internal/store"
)

// Response status values attached to query results.
const (
	ResponseStatusNone    = "none"
	ResponseStatusUnknown = "unknown"
)

// recentCompletionWindow keeps a just-submitted training visible on the
// dashboard for a short while after submission.
const recentCompletionWindow = 5 * time.Minute

// TrainingWithState is one training joined with the calling athlete's
// response fact and the derived questionnaire window.
type TrainingWithState struct {
	model.Training

	HasResponse    bool                `json:"has_response"`
	ResponseStatus string              `json:"response_status"`
	State          questionnaire.State `json:"questionnaire_state"`

	QuestionnaireOpenAt  time.Time `json:"questionnaire_open_at"`
	QuestionnaireCloseAt time.Time `json:"questionnaire_close_at"`

	submittedMillis int64
}

// Service answers schedule queries for one store.
type Service struct {
	store store.Store
}

// New builds a schedule Service.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// ListWithStatus returns the team's trainings with start in [from, to],
// ordered by start ascending, each annotated with the athlete's response
// status and questionnaire state at "now".
//
// A failed response lookup degrades that single record to
// ResponseStatusUnknown (state computed as if unanswered) instead of
// failing the whole list.
func (s *Service) ListWithStatus(ctx context.Context, teamID string, from, to time.Time, athleteID string, now time.Time) ([]TrainingWithState, error) {
	started := time.Now()
	defer func() {
		metrics.ScheduleQueryDuration.Observe(time.Since(started).Seconds())
	}()

	trainings, err := s.store.ListTrainings(ctx, teamID, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, err
	}

	out := make([]TrainingWithState, 0, len(trainings))
	for idx := range trainings {
		out = append(out, s.annotate(ctx, &trainings[idx], athleteID, now))
	}
	return out, nil
}

func (s *Service) annotate(ctx context.Context, t *model.Training, athleteID string, now time.Time) TrainingWithState {
	item := TrainingWithState{
		Training:       *t,
		ResponseStatus: ResponseStatusNone,
	}

	resp, err := s.store.GetResponse(ctx, t.TeamID, t.ID, athleteID)
	switch {
	case err == nil:
		item.HasResponse = true
		item.ResponseStatus = resp.Status
		item.submittedMillis = resp.SubmittedMillis
	case errors.Is(err, store.ErrNotFound):
		// Not submitted; the zero values already say so.
	default:
		// Transient read failure: one bad record must not blank the
		// athlete's schedule.
		metrics.DegradedLookups.Inc()
		log.Warn("response lookup degraded",
			"team", t.TeamID, "training", t.ID, "athlete", athleteID, "err", err)
		item.ResponseStatus = ResponseStatusUnknown
	}

	hasResponded := item.ResponseStatus == model.ResponseCompleted
	item.State = questionnaire.Compute(t.EndMillis, hasResponded, now)
	item.QuestionnaireOpenAt, item.QuestionnaireCloseAt = questionnaire.Window(t.EndMillis)
	return item
}

// NextPendingOrUpcoming selects the single training a dashboard should
// surface for an athlete.
//
// Priority one: any training currently in the respond state, or completed
// within the last five minutes — upcoming trainings first, then the one
// ending soonest. Priority two: the soonest training whose start is
// strictly in the future. Nil when neither exists.
func (s *Service) NextPendingOrUpcoming(ctx context.Context, teamID, athleteID string, lookaheadDays int, now time.Time) (*TrainingWithState, error) {
	if lookaheadDays <= 0 {
		lookaheadDays = 7
	}

	// Look back far enough to cover any session whose submission window
	// could still be open.
	from := now.Add(-48 * time.Hour)
	to := now.Add(time.Duration(lookaheadDays) * 24 * time.Hour)

	items, err := s.ListWithStatus(ctx, teamID, from, to, athleteID, now)
	if err != nil {
		return nil, err
	}

	nowMillis := now.UnixMilli()

	pending := make([]TrainingWithState, 0, len(items))
	for _, it := range items {
		if it.State == questionnaire.StateRespond {
			pending = append(pending, it)
			continue
		}
		if it.State == questionnaire.StateCompleted && it.submittedMillis > 0 &&
			nowMillis-it.submittedMillis <= recentCompletionWindow.Milliseconds() {
			pending = append(pending, it)
		}
	}

	if len(pending) > 0 {
		sort.SliceStable(pending, func(a, b int) bool {
			aUpcoming := pending[a].StartMillis > nowMillis
			bUpcoming := pending[b].StartMillis > nowMillis
			if aUpcoming != bUpcoming {
				return aUpcoming
			}
			return pending[a].EndMillis < pending[b].EndMillis
		})
		out := pending[0]
		return &out, nil
	}

	// Items are start-ascending, so the first strictly-future start wins.
	for _, it := range items {
		if it.StartMillis > nowMillis {
			out := it
			return &out, nil
		}
	}
	return nil, nil
}
