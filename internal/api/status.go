package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/fyydbot/internal/metrics"
)

// CacheSizer reports how many podcast names are cached.
type CacheSizer interface {
	Len() int
}

// Status describes the running bot for the status endpoint and the MCP
// status resource.
type Status struct {
	Version string
	Started time.Time
	Cache   CacheSizer
	Metrics *metrics.Metrics

	now func() time.Time
}

// StatusReport is the JSON body of GET /status.
type StatusReport struct {
	Version          string             `json:"version"`
	Uptime           string             `json:"uptime"`
	UptimeSeconds    float64            `json:"uptime_seconds"`
	NameCacheEntries int                `json:"name_cache_entries"`
	Counters         map[string]float64 `json:"counters"`
}

// Report takes a snapshot of the current state.
func (s *Status) Report() (StatusReport, error) {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	up := now().Sub(s.Started).Truncate(time.Second)

	counters, err := s.Metrics.Counters()
	if err != nil {
		return StatusReport{}, fmt.Errorf("gathering counters: %w", err)
	}

	r := StatusReport{
		Version:       s.Version,
		Uptime:        up.String(),
		UptimeSeconds: up.Seconds(),
		Counters:      counters,
	}
	if s.Cache != nil {
		r.NameCacheEntries = s.Cache.Len()
	}
	return r, nil
}

// NewStatusHandler serves /health, /status and, when metrics are enabled,
// /metrics.
func NewStatusHandler(s *Status) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/status", handleStatus(s))
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics.Handler())
	}

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleStatus(s *Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.Report()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
