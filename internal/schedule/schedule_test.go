package schedule_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"trainsync/internal/model"
	"trainsync/internal/questionnaire"
	"trainsync/internal/schedule"
	"trainsync/internal/store"
)

// flakyStore fails response lookups for one training ID, everything else
// passes through to the wrapped store.
type flakyStore struct {
	*store.MemoryStore
	failFor string
}

func (f *flakyStore) GetResponse(ctx context.Context, teamID, trainingID, athleteID string) (*model.Response, error) {
	if trainingID == f.failFor {
		return nil, fmt.Errorf("deadline exceeded")
	}
	return f.MemoryStore.GetResponse(ctx, teamID, trainingID, athleteID)
}

func seedTraining(ctx context.Context, st store.Store, id string, start, end time.Time) model.Training {
	t := model.Training{
		ID:          id,
		TeamID:      "team-1",
		Title:       "Session " + id,
		StartMillis: start.UnixMilli(),
		EndMillis:   end.UnixMilli(),
	}
	if err := st.UpsertTraining(ctx, &t); err != nil {
		panic(err)
	}
	return t
}

func TestListWithStatus(t *testing.T) {
	Convey("Given a team with three sessions", t, func() {
		ctx := context.Background()
		st := store.NewMemoryStore()
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		// Ended two hours ago: inside the submission window.
		seedTraining(ctx, st, "a", now.Add(-3*time.Hour), now.Add(-2*time.Hour))
		// Ended yesterday: window long closed.
		seedTraining(ctx, st, "b", now.Add(-25*time.Hour), now.Add(-24*time.Hour))
		// Starts tomorrow.
		seedTraining(ctx, st, "c", now.Add(24*time.Hour), now.Add(25*time.Hour))

		svc := schedule.New(st)

		Convey("Results come back ordered by start ascending", func() {
			items, err := svc.ListWithStatus(ctx, "team-1", now.Add(-48*time.Hour), now.Add(48*time.Hour), "athlete-1", now)

			So(err, ShouldBeNil)
			So(items, ShouldHaveLength, 3)
			So(items[0].ID, ShouldEqual, "b")
			So(items[1].ID, ShouldEqual, "a")
			So(items[2].ID, ShouldEqual, "c")

			Convey("And each record carries its availability state", func() {
				So(items[0].State, ShouldEqual, questionnaire.StateExpired)
				So(items[1].State, ShouldEqual, questionnaire.StateRespond)
				So(items[2].State, ShouldEqual, questionnaire.StateComingSoon)

				So(items[1].HasResponse, ShouldBeFalse)
				So(items[1].ResponseStatus, ShouldEqual, schedule.ResponseStatusNone)
				So(items[1].QuestionnaireOpenAt.UnixMilli(), ShouldEqual, items[1].EndMillis+(30*time.Minute).Milliseconds())
				So(items[1].QuestionnaireCloseAt.UnixMilli(), ShouldEqual, items[1].EndMillis+(5*time.Hour).Milliseconds())
			})
		})

		Convey("A submitted response flips the record to completed", func() {
			So(st.PutResponse(ctx, &model.Response{
				AthleteID:       "athlete-1",
				TeamID:          "team-1",
				TrainingID:      "a",
				Status:          model.ResponseCompleted,
				SubmittedMillis: now.Add(-time.Hour).UnixMilli(),
			}), ShouldBeNil)

			items, err := svc.ListWithStatus(ctx, "team-1", now.Add(-48*time.Hour), now.Add(48*time.Hour), "athlete-1", now)

			So(err, ShouldBeNil)
			So(items[1].ID, ShouldEqual, "a")
			So(items[1].HasResponse, ShouldBeTrue)
			So(items[1].ResponseStatus, ShouldEqual, model.ResponseCompleted)
			So(items[1].State, ShouldEqual, questionnaire.StateCompleted)

			Convey("Without affecting another athlete's view", func() {
				other, err := svc.ListWithStatus(ctx, "team-1", now.Add(-48*time.Hour), now.Add(48*time.Hour), "athlete-2", now)

				So(err, ShouldBeNil)
				So(other[1].HasResponse, ShouldBeFalse)
				So(other[1].State, ShouldEqual, questionnaire.StateRespond)
			})
		})

		Convey("A failed response lookup degrades one record, not the list", func() {
			flaky := &flakyStore{MemoryStore: st, failFor: "a"}
			svc := schedule.New(flaky)

			items, err := svc.ListWithStatus(ctx, "team-1", now.Add(-48*time.Hour), now.Add(48*time.Hour), "athlete-1", now)

			So(err, ShouldBeNil)
			So(items, ShouldHaveLength, 3)
			So(items[1].ID, ShouldEqual, "a")
			So(items[1].ResponseStatus, ShouldEqual, schedule.ResponseStatusUnknown)
			So(items[1].HasResponse, ShouldBeFalse)
			So(items[1].State, ShouldEqual, questionnaire.StateRespond)
			So(items[0].ResponseStatus, ShouldEqual, schedule.ResponseStatusNone)
			So(items[2].ResponseStatus, ShouldEqual, schedule.ResponseStatusNone)
		})
	})
}

func TestNextPendingOrUpcoming(t *testing.T) {
	Convey("Given a schedule service", t, func() {
		ctx := context.Background()
		st := store.NewMemoryStore()
		svc := schedule.New(st)
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		Convey("With no trainings the selection is nil", func() {
			next, err := svc.NextPendingOrUpcoming(ctx, "team-1", "athlete-1", 7, now)

			So(err, ShouldBeNil)
			So(next, ShouldBeNil)
		})

		Convey("A session awaiting a response beats a future one", func() {
			seedTraining(ctx, st, "pending", now.Add(-3*time.Hour), now.Add(-2*time.Hour))
			seedTraining(ctx, st, "future", now.Add(2*time.Hour), now.Add(3*time.Hour))

			next, err := svc.NextPendingOrUpcoming(ctx, "team-1", "athlete-1", 7, now)

			So(err, ShouldBeNil)
			So(next, ShouldNotBeNil)
			So(next.ID, ShouldEqual, "pending")
			So(next.State, ShouldEqual, questionnaire.StateRespond)
		})

		Convey("Among pending sessions the one ending soonest wins", func() {
			seedTraining(ctx, st, "older", now.Add(-5*time.Hour), now.Add(-4*time.Hour))
			seedTraining(ctx, st, "newer", now.Add(-2*time.Hour), now.Add(-time.Hour))

			next, err := svc.NextPendingOrUpcoming(ctx, "team-1", "athlete-1", 7, now)

			So(err, ShouldBeNil)
			So(next.ID, ShouldEqual, "older")
		})

		Convey("A just-submitted session stays surfaced briefly", func() {
			tr := seedTraining(ctx, st, "done", now.Add(-3*time.Hour), now.Add(-2*time.Hour))
			seedTraining(ctx, st, "future", now.Add(2*time.Hour), now.Add(3*time.Hour))
			So(st.PutResponse(ctx, &model.Response{
				AthleteID:       "athlete-1",
				TeamID:          "team-1",
				TrainingID:      tr.ID,
				Status:          model.ResponseCompleted,
				SubmittedMillis: now.Add(-2 * time.Minute).UnixMilli(),
			}), ShouldBeNil)

			next, err := svc.NextPendingOrUpcoming(ctx, "team-1", "athlete-1", 7, now)

			So(err, ShouldBeNil)
			So(next.ID, ShouldEqual, "done")
			So(next.State, ShouldEqual, questionnaire.StateCompleted)

			Convey("But not once the grace period has passed", func() {
				later := now.Add(10 * time.Minute)

				next, err := svc.NextPendingOrUpcoming(ctx, "team-1", "athlete-1", 7, later)

				So(err, ShouldBeNil)
				So(next.ID, ShouldEqual, "future")
			})
		})

		Convey("With nothing pending the soonest future session is chosen", func() {
			seedTraining(ctx, st, "expired", now.Add(-26*time.Hour), now.Add(-25*time.Hour))
			seedTraining(ctx, st, "later", now.Add(48*time.Hour), now.Add(49*time.Hour))
			seedTraining(ctx, st, "sooner", now.Add(6*time.Hour), now.Add(7*time.Hour))

			next, err := svc.NextPendingOrUpcoming(ctx, "team-1", "athlete-1", 7, now)

			So(err, ShouldBeNil)
			So(next.ID, ShouldEqual, "sooner")
			So(next.State, ShouldEqual, questionnaire.StateComingSoon)
		})
	})
}
