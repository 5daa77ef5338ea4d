// Package questionnaire computes the availability state of an athlete's
// post-session feedback form. Everything here is a pure function of its
// inputs: callers pass the current instant explicitly and no prior
// evaluation is ever consulted.
package questionnaire

import "time"

// State is one of the four availability states of a feedback form.
type State string

const (
	// StateComingSoon covers a session that has not ended yet and the
	// cooldown buffer right after it ends.
	StateComingSoon State = "comingSoon"
	// StateRespond is the open submission window.
	StateRespond State = "respond"
	// StateExpired means the window has closed without a submission.
	StateExpired State = "expired"
	// StateCompleted means a submission exists. Terminal: it overrides
	// every time-based state and never decays.
	StateCompleted State = "completed"
)

const (
	// OpenDelay is how long after session end the form stays closed.
	OpenDelay = 30 * time.Minute
	// CloseDelay is how long after session end the form stays open.
	CloseDelay = 5 * time.Hour
)

// Compute maps (session end, submission fact, now) to a State.
//
// An invalid end instant fails closed to expired: an unresolvable end time
// must never appear respondable. The boundaries are inclusive on both ends
// of the open window: exactly end+30m and exactly end+5h are respondable.
func Compute(endMillis int64, hasResponded bool, now time.Time) State {
	if hasResponded {
		return StateCompleted
	}
	if endMillis <= 0 {
		return StateExpired
	}

	delta := now.UnixMilli() - endMillis
	switch {
	case delta < OpenDelay.Milliseconds():
		return StateComingSoon
	case delta <= CloseDelay.Milliseconds():
		return StateRespond
	default:
		return StateExpired
	}
}

// Window returns the derived [openAt, closeAt] submission interval for a
// session end instant. Never persisted; recomputed on every evaluation.
func Window(endMillis int64) (openAt, closeAt time.Time) {
	end := time.UnixMilli(endMillis).UTC()
	return end.Add(OpenDelay), end.Add(CloseDelay)
}
