package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"trainsync/internal/log"
	"trainsync/internal/model"
	"trainsync/internal/timeutil"
)

// FirestoreStore persists trainings and responses in Firestore under
// teams/{team}/trainings/{training} and a responses subcollection per
// training.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore initializes the Firebase app and Firestore client.
// Credentials come from the FIREBASE_CREDENTIALS_JSON environment variable
// or, when empty, application default credentials.
func NewFirestoreStore(ctx context.Context) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if creds := os.Getenv("FIREBASE_CREDENTIALS_JSON"); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase init: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}

	log.Info("firestore store initialized")
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) trainingRef(teamID, trainingID string) *firestore.DocumentRef {
	return s.client.Collection("teams").Doc(teamID).Collection("trainings").Doc(trainingID)
}

func (s *FirestoreStore) responseRef(teamID, trainingID, athleteID string) *firestore.DocumentRef {
	return s.trainingRef(teamID, trainingID).Collection("responses").Doc(athleteID)
}

func (s *FirestoreStore) UpsertTraining(ctx context.Context, t *model.Training) error {
	if t.ID == "" || t.TeamID == "" {
		return errors.New("training id and team id are required")
	}
	_, err := s.trainingRef(t.TeamID, t.ID).Set(ctx, t)
	return err
}

func (s *FirestoreStore) GetTraining(ctx context.Context, teamID, trainingID string) (*model.Training, error) {
	doc, err := s.trainingRef(teamID, trainingID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var t model.Training
	if err := doc.DataTo(&t); err != nil {
		return nil, err
	}
	t.ID = doc.Ref.ID
	normalizeInstants(doc.Data(), &t)
	return &t, nil
}

// normalizeInstants repairs timestamp fields on documents written by older
// tooling that stored them as Firestore timestamps or strings instead of
// epoch millis.
func normalizeInstants(data map[string]interface{}, t *model.Training) {
	if t.StartMillis <= 0 {
		if ms, ok := timeutil.CoerceMillis(data["startMillis"]); ok {
			t.StartMillis = ms
		}
	}
	if t.EndMillis <= 0 {
		if ms, ok := timeutil.CoerceMillis(data["endMillis"]); ok {
			t.EndMillis = ms
		}
	}
}

func (s *FirestoreStore) ListTrainings(ctx context.Context, teamID string, fromMillis, toMillis int64) ([]model.Training, error) {
	if toMillis < fromMillis {
		return nil, ErrInvalidRange
	}

	iter := s.client.Collection("teams").Doc(teamID).Collection("trainings").
		Where("startMillis", ">=", fromMillis).
		Where("startMillis", "<=", toMillis).
		OrderBy("startMillis", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	out := make([]model.Training, 0)
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}

		var t model.Training
		if err := doc.DataTo(&t); err != nil {
			log.Error("training document decode failed", err, "team", teamID, "doc", doc.Ref.ID)
			continue
		}
		t.ID = doc.Ref.ID
		normalizeInstants(doc.Data(), &t)
		out = append(out, t)
	}
	return out, nil
}

func (s *FirestoreStore) DeleteTrainingsEndedBefore(ctx context.Context, teamID string, cutoffMillis int64) (int, error) {
	iter := s.client.Collection("teams").Doc(teamID).Collection("trainings").
		Where("endMillis", "<", cutoffMillis).
		Documents(ctx)
	defer iter.Stop()

	removed := 0
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return removed, err
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *FirestoreStore) GetResponse(ctx context.Context, teamID, trainingID, athleteID string) (*model.Response, error) {
	doc, err := s.responseRef(teamID, trainingID, athleteID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var r model.Response
	if err := doc.DataTo(&r); err != nil {
		return nil, err
	}
	if r.AthleteID == "" {
		r.AthleteID = doc.Ref.ID
	}
	return &r, nil
}

func (s *FirestoreStore) PutResponse(ctx context.Context, r *model.Response) error {
	if r.TeamID == "" || r.TrainingID == "" || r.AthleteID == "" {
		return errors.New("response team, training and athlete ids are required")
	}
	_, err := s.responseRef(r.TeamID, r.TrainingID, r.AthleteID).Set(ctx, r)
	return err
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
