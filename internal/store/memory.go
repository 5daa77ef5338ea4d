package store

import (
	"context"
	"sort"
	"sync"

	"trainsync/internal/model"
)

// MemoryStore is a non-durable Store for tests and development. It mirrors
// the Firestore layout: trainings keyed per team, responses keyed per
// (training, athlete).
type MemoryStore struct {
	mu        sync.RWMutex
	trainings map[string]map[string]model.Training // teamID -> trainingID -> doc
	responses map[string]model.Response            // teamID/trainingID/athleteID -> doc
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trainings: make(map[string]map[string]model.Training),
		responses: make(map[string]model.Response),
	}
}

func responseKey(teamID, trainingID, athleteID string) string {
	return teamID + "/" + trainingID + "/" + athleteID
}

func (s *MemoryStore) UpsertTraining(_ context.Context, t *model.Training) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	team := s.trainings[t.TeamID]
	if team == nil {
		team = make(map[string]model.Training)
		s.trainings[t.TeamID] = team
	}
	team[t.ID] = *t
	return nil
}

func (s *MemoryStore) GetTraining(_ context.Context, teamID, trainingID string) (*model.Training, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trainings[teamID][trainingID]
	if !ok {
		return nil, ErrNotFound
	}
	out := t
	return &out, nil
}

func (s *MemoryStore) ListTrainings(_ context.Context, teamID string, fromMillis, toMillis int64) ([]model.Training, error) {
	if toMillis < fromMillis {
		return nil, ErrInvalidRange
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Training, 0)
	for _, t := range s.trainings[teamID] {
		if t.StartMillis >= fromMillis && t.StartMillis <= toMillis {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartMillis != out[j].StartMillis {
			return out[i].StartMillis < out[j].StartMillis
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) DeleteTrainingsEndedBefore(_ context.Context, teamID string, cutoffMillis int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, t := range s.trainings[teamID] {
		if t.EndMillis < cutoffMillis {
			delete(s.trainings[teamID], id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) GetResponse(_ context.Context, teamID, trainingID, athleteID string) (*model.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.responses[responseKey(teamID, trainingID, athleteID)]
	if !ok {
		return nil, ErrNotFound
	}
	out := r
	return &out, nil
}

func (s *MemoryStore) PutResponse(_ context.Context, r *model.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.responses[responseKey(r.TeamID, r.TrainingID, r.AthleteID)] = *r
	return nil
}

func (s *MemoryStore) Close() error { return nil }
