package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"trainsync/internal/config"
)

func TestLoad(t *testing.T) {
	Convey("Given a config path", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")

		Convey("A missing file is created with defaults on first load", func() {
			cfg, err := config.Load(path)

			So(err, ShouldBeNil)
			So(cfg.Listen, ShouldEqual, "127.0.0.1:8080")
			So(cfg.RefreshCron, ShouldEqual, "*/15 * * * *")
			So(cfg.FallbackTimezone, ShouldEqual, "Europe/Paris")
			So(cfg.ImportLookaheadDays, ShouldEqual, 60)
			So(cfg.Teams, ShouldBeEmpty)

			info, err := os.Stat(path)
			So(err, ShouldBeNil)
			So(info.Mode().Perm(), ShouldEqual, os.FileMode(0o600))
		})

		Convey("An existing file is loaded and normalized", func() {
			So(os.WriteFile(path, []byte(`
listen: 0.0.0.0:9090
teams:
  - id: team-1
    name: First Team
    feed_url: https://calendar.example.com/team1.ics
`), 0o600), ShouldBeNil)

			cfg, err := config.Load(path)

			So(err, ShouldBeNil)
			So(cfg.Listen, ShouldEqual, "0.0.0.0:9090")
			So(cfg.LogLevel, ShouldEqual, "info")
			So(cfg.Teams, ShouldHaveLength, 1)
			So(cfg.Teams[0].Source, ShouldEqual, "google")
			So(cfg.Teams[0].Timezone, ShouldEqual, "Europe/Paris")

			team, ok := cfg.Team("team-1")
			So(ok, ShouldBeTrue)
			So(team.Name, ShouldEqual, "First Team")

			_, ok = cfg.Team("team-2")
			So(ok, ShouldBeFalse)
		})

		Convey("Environment variables override file values", func() {
			So(os.WriteFile(path, []byte("listen: 0.0.0.0:9090\n"), 0o600), ShouldBeNil)
			t.Setenv("TRAINSYNC_LISTEN", "127.0.0.1:7070")
			t.Setenv("TRAINSYNC_LOG_LEVEL", "debug")

			cfg, err := config.Load(path)

			So(err, ShouldBeNil)
			So(cfg.Listen, ShouldEqual, "127.0.0.1:7070")
			So(cfg.LogLevel, ShouldEqual, "debug")
		})

		Convey("An empty path is rejected", func() {
			_, err := config.Load("")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSaveRoundTrip(t *testing.T) {
	Convey("Given a populated configuration", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "nested", "config.yaml")

		cfg := config.DefaultConfig()
		cfg.Teams = []config.TeamConfig{{
			ID:      "team-1",
			Name:    "First Team",
			FeedURL: "https://calendar.example.com/team1.ics",
		}}
		cfg.BasicAuth = &config.BasicAuthConfig{Username: "coach", Password: "secret"}

		Convey("Save then Load preserves it", func() {
			So(config.Save(path, cfg), ShouldBeNil)

			loaded, err := config.Load(path)
			So(err, ShouldBeNil)
			So(loaded.Teams, ShouldHaveLength, 1)
			So(loaded.Teams[0].ID, ShouldEqual, "team-1")
			So(loaded.Teams[0].Source, ShouldEqual, "google")
			So(loaded.BasicAuth, ShouldNotBeNil)
			So(loaded.BasicAuth.Username, ShouldEqual, "coach")
		})
	})
}
