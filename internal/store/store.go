// Package store defines the document-store contract the importer and the
// schedule query layer depend on, plus its Firestore and in-memory
// implementations. Trainings live under a team, responses under a
// training; the core only needs point read/write, an ascending range
// query on start instant, and delete-by-filter for retention.
package store

import (
	"context"

	"trainsync/internal/model"
)

// Store provides read/write access to training and response documents.
type Store interface {
	// UpsertTraining writes a training under its team, keyed by t.ID.
	UpsertTraining(ctx context.Context, t *model.Training) error

	// GetTraining returns one training or ErrNotFound.
	GetTraining(ctx context.Context, teamID, trainingID string) (*model.Training, error)

	// ListTrainings returns the team's trainings whose start instant lies
	// in [fromMillis, toMillis], ordered by start ascending.
	ListTrainings(ctx context.Context, teamID string, fromMillis, toMillis int64) ([]model.Training, error)

	// DeleteTrainingsEndedBefore removes every training of the team whose
	// end instant is before cutoffMillis and reports how many went away.
	DeleteTrainingsEndedBefore(ctx context.Context, teamID string, cutoffMillis int64) (int, error)

	// GetResponse returns one athlete's response for one training, or
	// ErrNotFound when the athlete has not submitted.
	GetResponse(ctx context.Context, teamID, trainingID, athleteID string) (*model.Response, error)

	// PutResponse creates or overwrites the athlete's response document.
	// The core never deletes responses.
	PutResponse(ctx context.Context, r *model.Response) error

	// Close releases the underlying client, if any.
	Close() error
}
