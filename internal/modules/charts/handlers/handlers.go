// Package handlers serves chart data and rendered chart images.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aristath/frontier/internal/modules/analysis"
	"github.com/aristath/frontier/internal/modules/charts"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// RunSource loads stored optimisation runs.
type RunSource interface {
	Run(ctx context.Context, id string) (*analysis.Report, error)
	Runs(ctx context.Context, limit int) ([]analysis.RunSummary, error)
}

type renderFunc func(io.Writer, *charts.Dashboard) error

var renderers = map[string]renderFunc{
	"frontier":   charts.RenderFrontier,
	"allocation": charts.RenderAllocation,
	"drawdown":   charts.RenderDrawdown,
	"cumulative": charts.RenderCumulative,
}

// Handler handles chart HTTP requests
type Handler struct {
	runs RunSource
	log  zerolog.Logger
}

// NewHandler creates a new charts handler
func NewHandler(runs RunSource, log zerolog.Logger) *Handler {
	return &Handler{
		runs: runs,
		log:  log.With().Str("handler", "charts").Logger(),
	}
}

// RegisterRoutes registers the chart routes under /api/charts
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/charts", func(r chi.Router) {
		r.Get("/", h.HandleGetChartData)
		r.Get("/{chart}.png", h.HandleGetChartImage)
	})
}

// HandleGetChartData handles GET /api/charts?run={id}
func (h *Handler) HandleGetChartData(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, charts.FromReport(report))
}

// HandleGetChartImage handles GET /api/charts/{chart}.png?run={id}
func (h *Handler) HandleGetChartImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "chart")
	render, exists := renderers[name]
	if !exists {
		h.writeError(w, http.StatusNotFound, "unknown chart: "+name)
		return
	}

	report, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := render(&buf, charts.FromReport(report)); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, charts.ErrNotEnoughData) {
			status = http.StatusUnprocessableEntity
		}
		h.log.Warn().Err(err).Str("chart", name).Str("run_id", report.ID).Msg("Failed to render chart")
		h.writeError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.log.Debug().Err(err).Msg("Failed to write chart image")
	}
}

// loadRun resolves ?run=, falling back to the latest run.
func (h *Handler) loadRun(w http.ResponseWriter, r *http.Request) (*analysis.Report, bool) {
	id := r.URL.Query().Get("run")
	if id == "" {
		latest, err := h.runs.Runs(r.Context(), 1)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return nil, false
		}
		if len(latest) == 0 {
			h.writeError(w, http.StatusNotFound, "no optimisation has been run yet")
			return nil, false
		}
		id = latest[0].ID
	}

	report, err := h.runs.Run(r.Context(), id)
	if errors.Is(err, analysis.ErrRunNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return report, true
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
