package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/modules/analysis"
	"github.com/aristath/frontier/internal/modules/estimation"
	testingpkg "github.com/aristath/frontier/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticDefaults struct {
	req analysis.Request
	err error
}

func (d staticDefaults) DefaultRequest() (analysis.Request, error) {
	return d.req, d.err
}

func newTestRouter(t *testing.T, defaults Defaults) (chi.Router, *testingpkg.MockDataSource) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, database.NameHistory)
	t.Cleanup(cleanup)

	data := testingpkg.NewMockDataSource()
	svc := analysis.NewService(
		data,
		estimation.NewService(nil, estimation.MethodLedoitWolf, zerolog.Nop()),
		analysis.NewRepository(db.Conn(), zerolog.Nop()),
		nil,
		testingpkg.NewUniverse(),
		zerolog.Nop(),
	)

	router := chi.NewRouter()
	NewHandler(svc, data, defaults, zerolog.Nop()).RegisterRoutes(router)
	return router, data
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	testCases := []struct {
		method string
		path   string
	}{
		{"GET", "/api/objective"},
		{"GET", "/api/correlation"},
		{"GET", "/api/assumptions"},
		{"GET", "/api/data/preview"},
		{"POST", "/api/data/refresh"},
		{"POST", "/api/mvo"},
		{"POST", "/api/black-litterman"},
		{"GET", "/api/runs"},
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := do(router, tc.method, tc.path, "")
			assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

func TestHandleRunMVO(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		validate   func(t *testing.T, body map[string]interface{})
	}{
		{
			name:       "empty body uses defaults",
			wantStatus: http.StatusOK,
			validate: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "Efficient Return (8.0%)", body["label"])
				assert.Len(t, body["weights"], 4)
			},
		},
		{
			name:       "max sharpe by display name",
			body:       `{"method": "Max Sharpe"}`,
			wantStatus: http.StatusOK,
			validate: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "Max Sharpe", body["label"])
			},
		},
		{
			name:       "unreachable target",
			body:       `{"target_return": 0.15}`,
			wantStatus: http.StatusUnprocessableEntity,
			validate: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, analysis.AdjustInputsMessage, body["error"])
				assert.Contains(t, body["reason"], "maximum possible return")
			},
		},
		{
			name:       "bounds out of order",
			body:       `{"lower_bound": 0.2, "upper_bound": 0.1}`,
			wantStatus: http.StatusUnprocessableEntity,
			validate: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, analysis.AdjustInputsMessage, body["error"])
			},
		},
		{
			name:       "malformed json",
			body:       `{"method":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t, nil)
			w := do(router, "POST", "/api/mvo", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.validate != nil {
				var body map[string]interface{}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				tt.validate(t, body)
			}
		})
	}
}

func TestHandleRunMVO_StoredDefaults(t *testing.T) {
	stored := analysis.DefaultRequest()
	stored.Method = "min_volatility"
	router, _ := newTestRouter(t, staticDefaults{req: stored})

	w := do(router, "POST", "/api/mvo", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"label":"Minimum Volatility"`)

	router, _ = newTestRouter(t, staticDefaults{err: errors.New("config db locked")})
	w = do(router, "POST", "/api/mvo", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"label":"Efficient Return (8.0%)"`)
}

func TestHandleRunBlackLitterman_WithView(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := do(router, "POST", "/api/black-litterman",
		`{"method": "max_sharpe", "views": [{"asset": "USA QUALITY", "return": 0.2}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report analysis.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, analysis.KindBlackLitterman, report.Kind)
	require.Len(t, report.PriorReturns, 4)
	assert.Greater(t, report.ExpectedReturns[2].ExpectedReturn, report.PriorReturns[2].ExpectedReturn)
}

func TestHandleRuns(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := do(router, "POST", "/api/mvo", "")
	require.Equal(t, http.StatusOK, w.Code)
	var report analysis.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))

	w = do(router, "GET", "/api/runs?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Runs  []analysis.RunSummary `json:"runs"`
		Count int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, report.ID, list.Runs[0].ID)

	w = do(router, "GET", "/api/runs/"+report.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), report.ID)

	w = do(router, "GET", "/api/runs/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, "GET", "/api/runs?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDataEndpoints(t *testing.T) {
	router, data := newTestRouter(t, nil)

	w := do(router, "GET", "/api/data/preview?rows=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	var preview struct {
		Factors   []interface{} `json:"factors"`
		TotalRows int           `json:"total_rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &preview))
	assert.Len(t, preview.Factors, 3)
	assert.Equal(t, 25, preview.TotalRows)

	w = do(router, "GET", "/api/data/preview?rows=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, "POST", "/api/data/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, data.Refreshes())

	data.SetError(errors.New("upstream unavailable"))
	w = do(router, "POST", "/api/data/refresh", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	w = do(router, "GET", "/api/objective", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWriteJSON_EncodingFailure(t *testing.T) {
	h := NewHandler(nil, nil, nil, zerolog.Nop())

	tests := []struct {
		name       string
		status     int
		data       interface{}
		wantStatus int
		wantError  bool
	}{
		{name: "encodable", status: http.StatusOK, data: map[string]float64{"x": 1}, wantStatus: http.StatusOK},
		{name: "nan value", status: http.StatusOK, data: map[string]float64{"x": math.NaN()}, wantStatus: http.StatusInternalServerError, wantError: true},
		{name: "infinite value", status: http.StatusCreated, data: []float64{math.Inf(-1)}, wantStatus: http.StatusInternalServerError, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.writeJSON(w, tt.status, tt.data)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			require.NotEmpty(t, w.Body.Bytes())

			var body map[string]interface{}
			err := json.Unmarshal(w.Body.Bytes(), &body)
			if tt.wantError {
				require.NoError(t, err)
				assert.Contains(t, body, "error")
				return
			}
			assert.NoError(t, err)
		})
	}
}
