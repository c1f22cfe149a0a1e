// Package handlers provides HTTP handlers for the dashboard defaults.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aristath/frontier/internal/events"
	"github.com/aristath/frontier/internal/modules/settings"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler provides HTTP handlers for settings endpoints
type Handler struct {
	service *settings.Service
	bus     *events.Bus
	log     zerolog.Logger
}

// NewHandler creates a new settings handler
func NewHandler(service *settings.Service, bus *events.Bus, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		bus:     bus,
		log:     log.With().Str("handler", "settings").Logger(),
	}
}

// RegisterRoutes registers the settings routes under /api/settings
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/settings", func(r chi.Router) {
		r.Get("/", h.HandleGetAll)
		r.Put("/", h.HandleUpdateMany)
		r.Get("/request", h.HandleGetDefaultRequest)
		r.Put("/{key}", h.HandleUpdate)
	})
}

// HandleGetAll handles GET /api/settings
func (h *Handler) HandleGetAll(w http.ResponseWriter, r *http.Request) {
	values, err := h.service.GetAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get all settings")
		h.writeError(w, http.StatusInternalServerError, "Failed to get settings")
		return
	}
	h.writeJSON(w, http.StatusOK, values)
}

// HandleGetDefaultRequest handles GET /api/settings/request
func (h *Handler) HandleGetDefaultRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.DefaultRequest()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

// HandleUpdate handles PUT /api/settings/{key}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var update settings.SettingUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.apply(w, map[string]interface{}{key: update.Value})
}

// HandleUpdateMany handles PUT /api/settings with a {key: value} body
func (h *Handler) HandleUpdateMany(w http.ResponseWriter, r *http.Request) {
	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(updates) == 0 {
		h.writeError(w, http.StatusBadRequest, "No settings provided")
		return
	}

	h.apply(w, updates)
}

func (h *Handler) apply(w http.ResponseWriter, updates map[string]interface{}) {
	if err := h.service.SetMany(updates); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, settings.ErrUnknownSetting):
			status = http.StatusNotFound
		case errors.Is(err, settings.ErrInvalidValue):
			status = http.StatusBadRequest
		}
		h.log.Warn().Err(err).Interface("updates", updates).Msg("Failed to update settings")
		h.writeError(w, status, err.Error())
		return
	}

	if h.bus != nil {
		h.bus.Emit(events.SettingsChanged, "settings", updates)
	}

	values, err := h.service.GetAll()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, values)
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
