package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/frontier/internal/modules/analysis"
	"github.com/aristath/frontier/internal/modules/analytics"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeRuns struct {
	reports map[string]*analysis.Report
	order   []string
}

func (f *fakeRuns) Run(ctx context.Context, id string) (*analysis.Report, error) {
	r, ok := f.reports[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", analysis.ErrRunNotFound, id)
	}
	return r, nil
}

func (f *fakeRuns) Runs(ctx context.Context, limit int) ([]analysis.RunSummary, error) {
	out := []analysis.RunSummary{}
	for i := len(f.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, analysis.RunSummary{ID: f.order[i]})
	}
	return out, nil
}

func report(id string) *analysis.Report {
	dates := []time.Time{
		time.Date(2021, 1, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 2, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	return &analysis.Report{
		ID:      id,
		Label:   "Minimum Volatility",
		Weights: optimization.Weights{{Asset: "A", Weight: 0.7}, {Asset: "B", Weight: 0.3}},
		Frontier: &optimization.FrontierCurve{Points: []optimization.FrontierPoint{
			{Volatility: 0.1, ExpectedReturn: 0.05},
			{Volatility: 0.2, ExpectedReturn: 0.1},
		}},
		Performance: optimization.Performance{Volatility: 0.1, ExpectedReturn: 0.05},
		Drawdowns:   analytics.Series{Dates: dates, Values: []float64{0, -0.02, 0}},
		Cumulative:  analytics.Series{Dates: dates, Values: []float64{1.01, 0.99, 1.02}},
	}
}

func newRouter(runs *fakeRuns) chi.Router {
	router := chi.NewRouter()
	NewHandler(runs, zerolog.Nop()).RegisterRoutes(router)
	return router
}

func TestHandleGetChartImage(t *testing.T) {
	runs := &fakeRuns{
		reports: map[string]*analysis.Report{"old": report("old"), "new": report("new")},
		order:   []string{"old", "new"},
	}
	router := newRouter(runs)

	tests := []struct {
		path        string
		wantStatus  int
		contentType string
	}{
		{"/api/charts/frontier.png?run=old", http.StatusOK, "image/png"},
		{"/api/charts/allocation.png", http.StatusOK, "image/png"},
		{"/api/charts/drawdown.png?run=new", http.StatusOK, "image/png"},
		{"/api/charts/cumulative.png", http.StatusOK, "image/png"},
		{"/api/charts/sunburst.png", http.StatusNotFound, "application/json"},
		{"/api/charts/frontier.png?run=missing", http.StatusNotFound, "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("GET", tt.path, nil))
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.contentType, w.Header().Get("Content-Type"))
			if tt.contentType == "image/png" {
				assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
			}
		})
	}
}

func TestHandleGetChartData(t *testing.T) {
	runs := &fakeRuns{
		reports: map[string]*analysis.Report{"only": report("only")},
		order:   []string{"only"},
	}
	router := newRouter(runs)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/charts", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"run_id":"only"`)

	empty := newRouter(&fakeRuns{reports: map[string]*analysis.Report{}})
	w = httptest.NewRecorder()
	empty.ServeHTTP(w, httptest.NewRequest("GET", "/api/charts", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
