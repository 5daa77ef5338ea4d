// Package model holds the persisted and derived domain types shared by the
// importer, the store and the schedule query layer.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ResponseCompleted is the only response status the core interprets.
// Anything else (or an absent record) means "not submitted".
const ResponseCompleted = "completed"

// Training is one concrete occurrence of a session, keyed by the
// idempotency key derived from (source UID, normalized start millis).
// Re-importing the same feed produces the same ID for the same occurrence.
type Training struct {
	ID     string `firestore:"-" json:"id"`
	TeamID string `firestore:"teamId" json:"team_id"`

	Title       string `firestore:"title" json:"title"`
	Description string `firestore:"description,omitempty" json:"description,omitempty"`
	Location    string `firestore:"location,omitempty" json:"location,omitempty"`

	// StartMillis / EndMillis are UTC instants with millisecond precision.
	// StartMillis is part of the document identity and never mutated.
	StartMillis int64 `firestore:"startMillis" json:"start_millis"`
	EndMillis   int64 `firestore:"endMillis" json:"end_millis"`

	// DisplayTimezone is always a concrete IANA zone, never bare UTC.
	DisplayTimezone string `firestore:"displayTimezone" json:"display_timezone"`
	// EventTimezone is the zone attached to the feed occurrence itself,
	// kept for diagnostics. Empty when the feed declared none.
	EventTimezone string `firestore:"eventTimezone,omitempty" json:"event_timezone,omitempty"`

	Source    string `firestore:"source" json:"source"`
	SourceUID string `firestore:"sourceUid" json:"source_uid"`

	// Players lists assigned athlete IDs; empty means the whole team.
	// The importer never owns this field: merges preserve it.
	Players []string `firestore:"players" json:"players"`

	DeepLink string `firestore:"deepLink" json:"deep_link"`

	CreatedMillis int64 `firestore:"createdMillis" json:"created_millis"`
	UpdatedMillis int64 `firestore:"updatedMillis" json:"updated_millis"`
}

// Start returns the start instant in UTC.
func (t *Training) Start() time.Time {
	return time.UnixMilli(t.StartMillis).UTC()
}

// End returns the end instant in UTC.
func (t *Training) End() time.Time {
	return time.UnixMilli(t.EndMillis).UTC()
}

// ContentEquals reports whether the importer-owned fields of two trainings
// match. Identity, player assignments and timestamps are excluded so a
// merge-write only happens when the feed actually changed something.
func (t *Training) ContentEquals(o *Training) bool {
	return t.Title == o.Title &&
		t.Description == o.Description &&
		t.Location == o.Location &&
		t.EndMillis == o.EndMillis &&
		t.DisplayTimezone == o.DisplayTimezone &&
		t.EventTimezone == o.EventTimezone &&
		t.Source == o.Source &&
		t.SourceUID == o.SourceUID
}

// TrainingKey derives the idempotency key for one occurrence. The key is
// stable across re-imports as long as the feed UID and the resolved start
// instant are unchanged. Slashes would break the store's document paths,
// so they are mapped away.
func TrainingKey(sourceUID string, startMillis int64) string {
	uid := strings.NewReplacer("/", "_", " ", "_").Replace(sourceUID)
	return fmt.Sprintf("%s_%d", uid, startMillis)
}

// DeepLinkToken derives the opaque routing token the questionnaire UI uses
// to open a training's form directly. Deterministic so re-imports keep
// links stable.
func DeepLinkToken(teamID, trainingID string) string {
	sum := sha256.Sum256([]byte(teamID + "/" + trainingID))
	return hex.EncodeToString(sum[:12])
}

// Response records one athlete's submission fact for one training.
// Identity is (training, athlete); later submissions overwrite in place.
// The core reads Status and SubmittedMillis only; Payload stays opaque.
type Response struct {
	AthleteID  string `firestore:"athleteId" json:"athlete_id"`
	TeamID     string `firestore:"teamId" json:"team_id"`
	TrainingID string `firestore:"trainingId" json:"training_id"`

	Status          string `firestore:"status" json:"status"`
	SubmittedMillis int64  `firestore:"submittedMillis" json:"submitted_millis"`

	Payload json.RawMessage `firestore:"payload,omitempty" json:"payload,omitempty"`
}

// Completed reports whether this response counts as a submission.
func (r *Response) Completed() bool {
	return r != nil && r.Status == ResponseCompleted
}

// ImportReport is the outcome of one feed import pass. Errors holds
// per-occurrence failures; a fatal feed failure is returned as an error
// with a zero report instead.
type ImportReport struct {
	RunID    string   `json:"run_id"`
	TeamID   string   `json:"team_id"`
	Imported int      `json:"imported"`
	Updated  int      `json:"updated"`
	Removed  int      `json:"removed"`
	Errors   []string `json:"errors,omitempty"`
}
