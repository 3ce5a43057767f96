package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ethpandaops/txlatency/pkg/history"
)

const (
	defaultMeasurementsLimit = 50
	maxMeasurementsLimit     = 1000
	defaultStatsWindow       = time.Hour
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	Info
}

// handleHealth returns server health and probe identity.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
		Info:   s.info,
	})
}

type measurementsResponse struct {
	Measurements []history.Measurement `json:"measurements"`
}

// handleMeasurements lists the most recent measurements, newest first.
func (s *server) handleMeasurements(w http.ResponseWriter, r *http.Request) {
	limit := defaultMeasurementsLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"limit must be a positive integer"})

			return
		}

		limit = min(n, maxMeasurementsLimit)
	}

	rows, err := s.store.ListRecent(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to list measurements")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing measurements failed"})

		return
	}

	if rows == nil {
		rows = []history.Measurement{}
	}

	writeJSON(w, http.StatusOK, measurementsResponse{Measurements: rows})
}

type statsResponse struct {
	Since int64 `json:"since"`
	*history.Summary
}

// handleStats aggregates measurements over the window given by ?since=.
func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	window := defaultStatsWindow

	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"since must be a positive duration"})

			return
		}

		window = d
	}

	since := time.Now().Add(-window).UnixMilli()

	summary, err := s.store.Summary(r.Context(), since)
	if err != nil {
		s.log.WithError(err).Error("Failed to summarise measurements")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"summarising measurements failed"})

		return
	}

	writeJSON(w, http.StatusOK, statsResponse{Since: since, Summary: summary})
}
