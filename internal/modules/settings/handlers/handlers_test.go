package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/events"
	"github.com/aristath/frontier/internal/modules/settings"
	testingpkg "github.com/aristath/frontier/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (chi.Router, *events.Bus) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, database.NameConfig)
	t.Cleanup(cleanup)

	svc := settings.NewService(settings.NewRepository(db.Conn(), zerolog.Nop()), zerolog.Nop())
	bus := events.NewBus(zerolog.Nop())
	router := chi.NewRouter()
	NewHandler(svc, bus, zerolog.Nop()).RegisterRoutes(router)
	return router, bus
}

func send(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleGetAll(t *testing.T) {
	router, _ := setup(t)

	w := send(router, "GET", "/api/settings", "")
	require.Equal(t, http.StatusOK, w.Code)

	var values map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &values))
	assert.Equal(t, "efficient_return", values[settings.KeyMethod])
	assert.Equal(t, 0.08, values[settings.KeyTargetReturn])
}

func TestHandleUpdate(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"single key", "PUT", "/api/settings/risk_free_rate", `{"value": 0.04}`, http.StatusOK},
		{"single key out of range", "PUT", "/api/settings/risk_free_rate", `{"value": 0.4}`, http.StatusBadRequest},
		{"unknown key", "PUT", "/api/settings/trading_mode", `{"value": "live"}`, http.StatusNotFound},
		{"bad body", "PUT", "/api/settings/risk_free_rate", `{`, http.StatusBadRequest},
		{"bulk", "PUT", "/api/settings", `{"lower_bound": 0.05, "upper_bound": 0.5}`, http.StatusOK},
		{"bulk inverted bounds", "PUT", "/api/settings", `{"lower_bound": 0.2, "upper_bound": 0.1}`, http.StatusBadRequest},
		{"bulk empty", "PUT", "/api/settings", `{}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setup(t)
			w := send(router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestHandleUpdate_EmitsSettingsChanged(t *testing.T) {
	router, bus := setup(t)
	ch := bus.Subscribe(events.SettingsChanged)
	defer bus.Unsubscribe(ch)

	w := send(router, "PUT", "/api/settings/optimization_method", `{"value": "Max Sharpe"}`)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case ev := <-ch:
		assert.Equal(t, "Max Sharpe", ev.Data[settings.KeyMethod])
	case <-time.After(time.Second):
		t.Fatal("SETTINGS_CHANGED not emitted")
	}

	w = send(router, "GET", "/api/settings/request", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"method":"max_sharpe"`)
}
