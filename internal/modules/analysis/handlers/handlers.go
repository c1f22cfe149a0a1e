// Package handlers provides HTTP handlers for the optimisation dashboard.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aristath/frontier/internal/modules/analysis"
	"github.com/aristath/frontier/internal/modules/marketdata"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// DataFeed is the market data surface used by the data endpoints.
type DataFeed interface {
	Preview(ctx context.Context, n int) (*marketdata.Preview, error)
	Refresh(ctx context.Context) (*marketdata.Dataset, error)
	Status(ctx context.Context) ([]marketdata.RefreshInfo, error)
}

// Defaults supplies the stored request defaults for empty request bodies.
type Defaults interface {
	DefaultRequest() (analysis.Request, error)
}

// Handler handles optimisation HTTP requests
type Handler struct {
	service  *analysis.Service
	data     DataFeed
	defaults Defaults
	log      zerolog.Logger
}

// NewHandler creates a new analysis handler. defaults may be nil.
func NewHandler(service *analysis.Service, data DataFeed, defaults Defaults, log zerolog.Logger) *Handler {
	return &Handler{
		service:  service,
		data:     data,
		defaults: defaults,
		log:      log.With().Str("handler", "analysis").Logger(),
	}
}

// HandleGetObjective handles GET /api/objective
func (h *Handler) HandleGetObjective(w http.ResponseWriter, r *http.Request) {
	obj, err := h.service.Objective(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build objective")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, obj)
}

// HandleGetPreview handles GET /api/data/preview?rows=n
func (h *Handler) HandleGetPreview(w http.ResponseWriter, r *http.Request) {
	rows := marketdata.DefaultPreviewRows
	if raw := r.URL.Query().Get("rows"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "rows must be a positive integer")
			return
		}
		rows = n
	}

	preview, err := h.data.Preview(r.Context(), rows)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, preview)
}

// HandleGetCorrelation handles GET /api/correlation
func (h *Handler) HandleGetCorrelation(w http.ResponseWriter, r *http.Request) {
	obj, err := h.service.Objective(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, obj.Correlation)
}

// HandleGetAssumptions handles GET /api/assumptions
func (h *Handler) HandleGetAssumptions(w http.ResponseWriter, r *http.Request) {
	obj, err := h.service.Objective(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"assumptions": obj.Assumptions,
		"shrinkage":   obj.Estimates.Shrinkage,
		"mandate":     obj.Mandate,
	})
}

// HandleRefreshData handles POST /api/data/refresh
func (h *Handler) HandleRefreshData(w http.ResponseWriter, r *http.Request) {
	ds, err := h.data.Refresh(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Market data refresh failed")
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	status, err := h.data.Status(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read refresh status")
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"rows":         ds.Factors.Len(),
		"columns":      ds.Factors.Columns,
		"refreshed_at": ds.RefreshedAt,
		"status":       status,
	})
}

// HandleRunMVO handles POST /api/mvo
func (h *Handler) HandleRunMVO(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}
	report, err := h.service.RunMVO(r.Context(), req)
	h.writeRun(w, report, err)
}

// HandleRunBlackLitterman handles POST /api/black-litterman
func (h *Handler) HandleRunBlackLitterman(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}
	report, err := h.service.RunBlackLitterman(r.Context(), req)
	h.writeRun(w, report, err)
}

// HandleListRuns handles GET /api/runs?limit=n
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.service.Runs(r.Context(), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// HandleGetRun handles GET /api/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := h.service.Run(r.Context(), id)
	if errors.Is(err, analysis.ErrRunNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// decodeRequest reads the request body on top of the stored defaults.
// An empty body runs with the defaults.
func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request) (analysis.Request, bool) {
	req := analysis.DefaultRequest()
	if h.defaults != nil {
		stored, err := h.defaults.DefaultRequest()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to load stored defaults")
		} else {
			req = stored
		}
	}

	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return req, false
		}
	}
	return req, true
}

func (h *Handler) writeRun(w http.ResponseWriter, report *analysis.Report, err error) {
	var inputErr *analysis.InputError
	switch {
	case errors.As(err, &inputErr):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  analysis.AdjustInputsMessage,
			"reason": inputErr.Reason.Error(),
		})
	case err != nil:
		h.log.Error().Err(err).Msg("Optimisation run failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		h.writeJSON(w, http.StatusOK, report)
	}
}

// writeJSON writes a JSON response. The body is encoded before the status is
// sent so an encoding failure becomes a 500.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
		status = http.StatusInternalServerError
		buf.Reset()
		_ = json.NewEncoder(&buf).Encode(map[string]string{"error": "failed to encode response"})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.log.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
