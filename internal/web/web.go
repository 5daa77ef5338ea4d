// Package web exposes the HTTP API: schedule queries, the dashboard
// "next" selection, manual import triggers and the questionnaire
// collaborator's response write path.
package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trainsync/internal/config"
	"trainsync/internal/ics"
	"trainsync/internal/importer"
	"trainsync/internal/log"
	"trainsync/internal/model"
	"trainsync/internal/schedule"
	"trainsync/internal/store"
)

// defaultScheduleLookahead bounds the schedule range when the caller does
// not pass explicit bounds; imports never reach past 60 days anyway.
const (
	defaultScheduleLookback  = 24 * time.Hour
	defaultScheduleLookahead = 14 * 24 * time.Hour
)

// Server provides the HTTP API.
type Server struct {
	cfg      *config.Config
	store    store.Store
	imp      *importer.Importer
	fetcher  *ics.Fetcher
	schedule *schedule.Service
	mux      *http.ServeMux
}

// NewServer constructs a Server.
func NewServer(cfg *config.Config, st store.Store, imp *importer.Importer, fetcher *ics.Fetcher) *Server {
	s := &Server{
		cfg:      cfg,
		store:    st,
		imp:      imp,
		fetcher:  fetcher,
		schedule: schedule.New(st),
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root http.Handler, wrapped with basic auth when
// configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		log.Info("HTTP basic auth enabled", "listen", s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	ba := s.cfg.BasicAuth
	return ba != nil && ba.Username != "" && ba.Password != ""
}

// basicAuthMiddleware protects everything except /health and /metrics.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="trainsync", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("GET /api/teams/{team}/schedule", s.handleSchedule)
	s.mux.HandleFunc("GET /api/teams/{team}/next", s.handleNext)
	s.mux.HandleFunc("POST /api/teams/{team}/import", s.handleImport)
	s.mux.HandleFunc("POST /api/teams/{team}/trainings/{training}/responses", s.handleSubmitResponse)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleSchedule returns the team's trainings with per-athlete
// questionnaire state, ordered by start ascending.
//
// GET /api/teams/{team}/schedule?athlete=a1&from=RFC3339&to=RFC3339
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("team")
	q := r.URL.Query()

	athleteID := q.Get("athlete")
	if athleteID == "" {
		writeError(w, http.StatusBadRequest, "athlete query parameter is required")
		return
	}

	now := time.Now().UTC()
	from, ok := parseTimeDefault(q.Get("from"), now.Add(-defaultScheduleLookback))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}
	to, ok := parseTimeDefault(q.Get("to"), now.Add(defaultScheduleLookahead))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid to")
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}

	items, err := s.schedule.ListWithStatus(r.Context(), teamID, from, to, athleteID, now)
	if err != nil {
		log.Error("schedule query failed", err, "team", teamID, "athlete", athleteID)
		writeError(w, http.StatusInternalServerError, "schedule query failed")
		return
	}

	writeJSON(w, http.StatusOK, scheduleResponse{
		TeamID:    teamID,
		From:      from,
		To:        to,
		Trainings: items,
	})
}

// handleNext returns the single training a dashboard should surface.
//
// GET /api/teams/{team}/next?athlete=a1&lookahead_days=7
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("team")
	q := r.URL.Query()

	athleteID := q.Get("athlete")
	if athleteID == "" {
		writeError(w, http.StatusBadRequest, "athlete query parameter is required")
		return
	}
	lookahead := parseIntDefault(q.Get("lookahead_days"), 7)

	item, err := s.schedule.NextPendingOrUpcoming(r.Context(), teamID, athleteID, lookahead, time.Now().UTC())
	if err != nil {
		log.Error("next query failed", err, "team", teamID, "athlete", athleteID)
		writeError(w, http.StatusInternalServerError, "next query failed")
		return
	}
	if item == nil {
		writeJSON(w, http.StatusOK, nextResponse{})
		return
	}
	writeJSON(w, http.StatusOK, nextResponse{Training: item})
}

// handleImport triggers one import pass for the team's configured feed.
// The request body may override the feed URL for ad-hoc imports.
//
// POST /api/teams/{team}/import {"feed_url": "..."} (body optional)
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("team")

	team, ok := s.cfg.Team(teamID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown team")
		return
	}

	var body struct {
		FeedURL string `json:"feed_url"`
	}
	if r.Body != nil {
		// Decode errors on an empty body are fine; the config URL is used.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	url := team.FeedURL
	if body.FeedURL != "" {
		url = body.FeedURL
	}
	if url == "" {
		writeError(w, http.StatusBadRequest, "team has no feed URL configured")
		return
	}

	src := ics.Source{TeamID: teamID, URL: url}
	report, err := s.imp.ImportSource(r.Context(), s.fetcher, src, team.Source, team.Timezone, time.Now().UTC())
	if err != nil {
		log.Error("manual import failed", err, "team", teamID, "url", ics.RedactURL(url))
		writeError(w, http.StatusBadGateway, "import failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleSubmitResponse records an athlete's submission fact for one
// training. Later submissions overwrite the same document; the payload
// is stored opaquely.
//
// POST /api/teams/{team}/trainings/{training}/responses
func (s *Server) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("team")
	trainingID := r.PathValue("training")

	var body struct {
		AthleteID string          `json:"athlete_id"`
		Status    string          `json:"status"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.AthleteID == "" {
		writeError(w, http.StatusBadRequest, "athlete_id is required")
		return
	}
	if body.Status == "" {
		body.Status = model.ResponseCompleted
	}

	if _, err := s.store.GetTraining(r.Context(), teamID, trainingID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown training")
			return
		}
		log.Error("training lookup failed", err, "team", teamID, "training", trainingID)
		writeError(w, http.StatusInternalServerError, "training lookup failed")
		return
	}

	resp := model.Response{
		AthleteID:       body.AthleteID,
		TeamID:          teamID,
		TrainingID:      trainingID,
		Status:          body.Status,
		SubmittedMillis: time.Now().UTC().UnixMilli(),
		Payload:         body.Payload,
	}
	if err := s.store.PutResponse(r.Context(), &resp); err != nil {
		log.Error("response write failed", err, "team", teamID, "training", trainingID, "athlete", body.AthleteID)
		writeError(w, http.StatusInternalServerError, "response write failed")
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// scheduleResponse is the JSON shape for /api/teams/{team}/schedule.
type scheduleResponse struct {
	TeamID    string                       `json:"team_id"`
	From      time.Time                    `json:"from"`
	To        time.Time                    `json:"to"`
	Trainings []schedule.TrainingWithState `json:"trainings"`
}

// nextResponse is the JSON shape for /api/teams/{team}/next. Training is
// null when nothing is pending or upcoming.
type nextResponse struct {
	Training *schedule.TrainingWithState `json:"training"`
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// parseTimeDefault accepts RFC3339 or epoch milliseconds.
func parseTimeDefault(s string, def time.Time) (time.Time, bool) {
	if s == "" {
		return def, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
