package importer_test

import (
	"context"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"trainsync/internal/ics"
	"trainsync/internal/importer"
	"trainsync/internal/model"
	"trainsync/internal/questionnaire"
	"trainsync/internal/store"
)

func feed(lines ...string) string {
	all := []string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//trainsync tests//EN"}
	all = append(all, lines...)
	all = append(all, "END:VCALENDAR", "")
	return strings.Join(all, "\r\n")
}

const parisFeedEvent = "BEGIN:VEVENT\r\n" +
	"UID:abc\r\n" +
	"DTSTART;TZID=Europe/Paris:20250310T180000\r\n" +
	"DTEND;TZID=Europe/Paris:20250310T193000\r\n" +
	"SUMMARY:Evening session\r\n" +
	"END:VEVENT"

func parisFeed() string {
	return feed(strings.Split(parisFeedEvent, "\r\n")...)
}

func TestImportFeed(t *testing.T) {
	Convey("Given an importer over an in-memory store", t, func() {
		ctx := context.Background()
		st := store.NewMemoryStore()
		imp := importer.New(st, &ics.RRuleExpander{})
		now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

		Convey("Importing one event creates one training", func() {
			report, err := imp.ImportFeed(ctx, "team-1", parisFeed(), "google", "Europe/Paris", now)

			So(err, ShouldBeNil)
			So(report.Imported, ShouldEqual, 1)
			So(report.Updated, ShouldEqual, 0)
			So(report.Errors, ShouldBeEmpty)

			start := time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC)
			key := model.TrainingKey("abc", start.UnixMilli())
			tr, err := st.GetTraining(ctx, "team-1", key)
			So(err, ShouldBeNil)
			So(tr.Title, ShouldEqual, "Evening session")
			So(tr.StartMillis, ShouldEqual, start.UnixMilli())
			So(tr.EndMillis, ShouldEqual, start.Add(90*time.Minute).UnixMilli())
			So(tr.DisplayTimezone, ShouldEqual, "Europe/Paris")
			So(tr.Source, ShouldEqual, "google")
			So(tr.SourceUID, ShouldEqual, "abc")
			So(tr.DeepLink, ShouldNotBeEmpty)
			So(tr.Players, ShouldBeEmpty)

			Convey("Re-importing the same feed is a no-op", func() {
				again, err := imp.ImportFeed(ctx, "team-1", parisFeed(), "google", "Europe/Paris", now)

				So(err, ShouldBeNil)
				So(again.Imported, ShouldEqual, 0)
				So(again.Updated, ShouldEqual, 0)

				list, err := st.ListTrainings(ctx, "team-1", 0, now.Add(90*24*time.Hour).UnixMilli())
				So(err, ShouldBeNil)
				So(list, ShouldHaveLength, 1)
			})
		})

		Convey("A changed summary merges without clobbering assignments", func() {
			_, err := imp.ImportFeed(ctx, "team-1", parisFeed(), "google", "Europe/Paris", now)
			So(err, ShouldBeNil)

			key := model.TrainingKey("abc", time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC).UnixMilli())
			tr, err := st.GetTraining(ctx, "team-1", key)
			So(err, ShouldBeNil)
			created := tr.CreatedMillis

			// A coach assigns players between imports; the importer does
			// not own this field.
			tr.Players = []string{"athlete-7", "athlete-9"}
			So(st.UpsertTraining(ctx, tr), ShouldBeNil)

			renamed := strings.Replace(parisFeed(), "Evening session", "Recovery session", 1)
			report, err := imp.ImportFeed(ctx, "team-1", renamed, "google", "Europe/Paris", now.Add(time.Hour))

			So(err, ShouldBeNil)
			So(report.Imported, ShouldEqual, 0)
			So(report.Updated, ShouldEqual, 1)

			merged, err := st.GetTraining(ctx, "team-1", key)
			So(err, ShouldBeNil)
			So(merged.Title, ShouldEqual, "Recovery session")
			So(merged.CreatedMillis, ShouldEqual, created)
			So(merged.Players, ShouldResemble, []string{"athlete-7", "athlete-9"})
			So(merged.UpdatedMillis, ShouldBeGreaterThan, created)
		})

		Convey("All-day entries never produce a training", func() {
			report, err := imp.ImportFeed(ctx, "team-1", feed(
				"BEGIN:VEVENT",
				"UID:allday",
				"DTSTART;VALUE=DATE:20250315",
				"DTEND;VALUE=DATE:20250316",
				"SUMMARY:Tournament day",
				"END:VEVENT",
			), "google", "Europe/Paris", now)

			So(err, ShouldBeNil)
			So(report.Imported, ShouldEqual, 0)
			So(report.Errors, ShouldBeEmpty)

			list, err := st.ListTrainings(ctx, "team-1", 0, now.Add(90*24*time.Hour).UnixMilli())
			So(err, ShouldBeNil)
			So(list, ShouldBeEmpty)
		})

		Convey("Retention removes sessions ended before the margin", func() {
			old := model.Training{
				ID:          "stale_1",
				TeamID:      "team-1",
				Title:       "Cancelled long ago",
				StartMillis: now.Add(-73 * time.Hour).UnixMilli(),
				EndMillis:   now.Add(-72 * time.Hour).UnixMilli(),
			}
			recent := model.Training{
				ID:          "recent_1",
				TeamID:      "team-1",
				Title:       "Yesterday",
				StartMillis: now.Add(-25 * time.Hour).UnixMilli(),
				EndMillis:   now.Add(-24 * time.Hour).UnixMilli(),
			}
			So(st.UpsertTraining(ctx, &old), ShouldBeNil)
			So(st.UpsertTraining(ctx, &recent), ShouldBeNil)

			report, err := imp.ImportFeed(ctx, "team-1", parisFeed(), "google", "Europe/Paris", now)

			So(err, ShouldBeNil)
			So(report.Removed, ShouldEqual, 1)

			_, err = st.GetTraining(ctx, "team-1", "stale_1")
			So(err, ShouldEqual, store.ErrNotFound)
			_, err = st.GetTraining(ctx, "team-1", "recent_1")
			So(err, ShouldBeNil)
		})

		Convey("A malformed occurrence is skipped, the rest commits", func() {
			lines := []string{
				"BEGIN:VEVENT",
				"UID:broken",
				"DTSTART;TZID=Europe/Paris:20250310T180000",
				"SUMMARY:No end",
				"END:VEVENT",
			}
			lines = append(lines, strings.Split(parisFeedEvent, "\r\n")...)
			report, err := imp.ImportFeed(ctx, "team-1", feed(lines...), "google", "Europe/Paris", now)

			So(err, ShouldBeNil)
			So(report.Imported, ShouldEqual, 1)
			So(report.Errors, ShouldHaveLength, 1)
			So(report.Errors[0], ShouldContainSubstring, "broken")
		})

		Convey("An unparseable feed is fatal with zero counts", func() {
			report, err := imp.ImportFeed(ctx, "team-1", "not a calendar", "google", "Europe/Paris", now)

			So(err, ShouldNotBeNil)
			So(report.Imported, ShouldEqual, 0)
			So(report.Updated, ShouldEqual, 0)
			So(report.Removed, ShouldEqual, 0)
		})
	})
}

func TestImportEndToEnd(t *testing.T) {
	Convey("Given the Paris evening session scenario", t, func() {
		ctx := context.Background()
		st := store.NewMemoryStore()
		imp := importer.New(st, &ics.RRuleExpander{})
		now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

		report, err := imp.ImportFeed(ctx, "team-1", parisFeed(), "google", "Europe/Paris", now)
		So(err, ShouldBeNil)
		So(report.Imported, ShouldEqual, 1)

		Convey("45 minutes after the session ends the form is open", func() {
			start := time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC)
			end := start.Add(90 * time.Minute)
			queryNow := end.Add(45 * time.Minute)

			key := model.TrainingKey("abc", start.UnixMilli())
			tr, err := st.GetTraining(ctx, "team-1", key)
			So(err, ShouldBeNil)
			So(tr.DisplayTimezone, ShouldEqual, "Europe/Paris")

			state := questionnaire.Compute(tr.EndMillis, false, queryNow)
			So(state, ShouldEqual, questionnaire.StateRespond)
		})
	})
}
