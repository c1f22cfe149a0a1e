package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/aristath/frontier/internal/modules/estimation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func months(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = time.Date(2020, time.Month(i+1), 28, 0, 0, 0, 0, time.UTC)
	}
	return out
}

func series(values ...float64) Series {
	return Series{Dates: months(len(values)), Values: values}
}

func TestPortfolioReturns(t *testing.T) {
	r := &estimation.ReturnSeries{
		Dates:   months(3),
		Columns: []string{"A", "B"},
		Values: mat.NewDense(3, 2, []float64{
			0.10, 0.00,
			-0.05, 0.05,
			0.02, 0.04,
		}),
	}

	p, err := PortfolioReturns(r, []float64{0.6, 0.4})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.06, -0.01, 0.028}, p.Values, 1e-15)
	assert.Equal(t, r.Dates, p.Dates)

	_, err = PortfolioReturns(r, []float64{1})
	assert.Error(t, err)
	_, err = PortfolioReturns(nil, []float64{1})
	assert.Error(t, err)
}

func TestBenchmarkReturns(t *testing.T) {
	r := &estimation.ReturnSeries{Dates: months(2), Columns: []string{"MSCI USA"}, Values: mat.NewDense(2, 1, []float64{0.01, 0.02})}
	b, err := BenchmarkReturns(r)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.01, 0.02}, b.Values)

	wide := &estimation.ReturnSeries{Dates: months(1), Columns: []string{"A", "B"}, Values: mat.NewDense(1, 2, nil)}
	_, err = BenchmarkReturns(wide)
	assert.Error(t, err)
}

func TestDrawdowns(t *testing.T) {
	tests := []struct {
		name     string
		returns  []float64
		wantDD   []float64
		wantWors float64
	}{
		{"recovering", []float64{0.1, -0.2, 0.05, 0.1}, []float64{0, -0.2, -0.16, -0.076}, -0.2},
		{"only gains", []float64{0.01, 0.02, 0.03}, []float64{0, 0, 0}, 0},
		{"first period loss is the first peak", []float64{-0.5, 0.2}, []float64{0, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dd, worst := Drawdowns(series(tt.returns...))
			assert.InDeltaSlice(t, tt.wantDD, dd.Values, 1e-12)
			assert.InDelta(t, tt.wantWors, worst, 1e-12)
		})
	}
}

func TestCumulative(t *testing.T) {
	cum := Cumulative(series(0.1, -0.2, 0.05))
	assert.InDeltaSlice(t, []float64{1.1, 0.88, 0.924}, cum.Values, 1e-12)
}

func TestAlign(t *testing.T) {
	a := series(1, 2, 3, 4)
	b := Series{
		Dates:  []time.Time{a.Dates[3], a.Dates[1], a.Dates[2].Add(24 * time.Hour)},
		Values: []float64{40, 20, 99},
	}

	outA, outB := Align(a, b)
	assert.Equal(t, []float64{2, 4}, outA.Values)
	assert.Equal(t, []float64{20, 40}, outB.Values)
	assert.Equal(t, outA.Dates, outB.Dates)
}

func TestCompute(t *testing.T) {
	p := series(0.02, -0.01, 0.03, -0.02, 0.01)
	b := series(0.01, -0.02, 0.02, -0.01, 0.015)

	m, err := Compute(p, b, 0.03, 12)
	require.NoError(t, err)

	assert.Equal(t, 5, m.Observations)
	assert.InDelta(t, 0.072, m.PortfolioReturn, 1e-12)
	assert.InDelta(t, 0.036, m.BenchmarkReturn, 1e-12)
	assert.InDelta(t, 0.030199337741082997, m.ActiveRisk, 1e-12)
	assert.InDelta(t, 0.06304760106459245, m.DownsideRisk, 1e-12)
	assert.InDelta(t, 0.6661633320032413, m.SortinoRatio, 1e-9)
	assert.InDelta(t, 1.3347457627118645, m.Beta, 1e-9)
	assert.InDelta(t, 0.033991525423728814, m.Alpha, 1e-9)
	assert.InDelta(t, 1.1920791213585396, m.InformationRatio, 1e-9)
	assert.InDelta(t, -0.02, m.VaR95, 1e-12)
	assert.InDelta(t, -0.02, m.CVaR95, 1e-12)
	assert.Empty(t, m.Undefined)
}

func TestCompute_BetaUsesPopulationVariance(t *testing.T) {
	tests := []struct {
		name      string
		portfolio []float64
		benchmark []float64
		beta      float64
	}{
		{
			name:      "mixed",
			portfolio: []float64{0.02, -0.01, 0.03, -0.02, 0.01},
			benchmark: []float64{0.01, -0.02, 0.02, -0.01, 0.015},
			beta:      1.3347457627118645,
		},
		{
			name:      "portfolio equals benchmark",
			portfolio: []float64{0.01, -0.02, 0.03},
			benchmark: []float64{0.01, -0.02, 0.03},
			beta:      1.5,
		},
		{
			name:      "two periods",
			portfolio: []float64{0.02, -0.02},
			benchmark: []float64{0.01, -0.01},
			beta:      4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Compute(series(tt.portfolio...), series(tt.benchmark...), 0, 12)
			require.NoError(t, err)
			assert.InDelta(t, tt.beta, m.Beta, 1e-9)
			n := float64(len(tt.benchmark))
			assert.InDelta(t, m.Beta*(n-1)/n, stat.Covariance(tt.portfolio, tt.benchmark, nil)/stat.Variance(tt.benchmark, nil), 1e-9)
		})
	}
}

func TestCompute_ZeroDenominatorsAreFlagged(t *testing.T) {
	// Constant benchmark, identical active returns, no losses
	p := series(0.02, 0.03, 0.04)
	b := series(0.01, 0.01, 0.01)

	m, err := Compute(p, b, 0, 12)
	require.NoError(t, err)

	assert.Zero(t, m.Beta)
	assert.Zero(t, m.SortinoRatio)
	assert.False(t, math.IsNaN(m.InformationRatio))
	assert.Contains(t, m.Undefined, "beta")
	assert.Contains(t, m.Undefined, "sortino_ratio")
	assert.NotContains(t, m.Undefined, "information_ratio")

	same, err := Compute(b, b, 0, 12)
	require.NoError(t, err)
	assert.Zero(t, same.ActiveRisk)
	assert.Zero(t, same.InformationRatio)
	assert.Contains(t, same.Undefined, "information_ratio")
}

func TestCompute_Errors(t *testing.T) {
	_, err := Compute(series(0.01), series(0.01), 0.03, 12)
	assert.Error(t, err)

	disjoint := Series{Dates: []time.Time{time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(1999, 2, 1, 0, 0, 0, 0, time.UTC)}, Values: []float64{0.01, 0.02}}
	_, err = Compute(series(0.01, 0.02), disjoint, 0.03, 12)
	assert.ErrorContains(t, err, "share 0 dates")

	_, err = Compute(series(0.01, 0.02), series(0.01, 0.02), 0.03, 0)
	assert.Error(t, err)
}

func TestTailRisk(t *testing.T) {
	returns := []float64{0.05, -0.04, 0.01, -0.10, 0.02, 0.03, -0.02, 0.04, 0.00, 0.01,
		0.02, -0.01, 0.03, -0.06, 0.02, 0.01, 0.00, 0.01, 0.02, 0.03}

	// 5% of 20 observations is the single worst period
	valueAtRisk, cvar, err := TailRisk(returns, 0.95)
	require.NoError(t, err)
	assert.Equal(t, -0.10, valueAtRisk)
	assert.Equal(t, -0.10, cvar)

	// 25% is the fifth worst; CVaR averages the worst five
	valueAtRisk, cvar, err = TailRisk(returns, 0.75)
	require.NoError(t, err)
	assert.Equal(t, -0.01, valueAtRisk)
	assert.InDelta(t, -0.046, cvar, 1e-12)

	_, _, err = TailRisk(returns, 1)
	assert.Error(t, err)
	_, _, err = TailRisk(nil, 0.95)
	assert.Error(t, err)
}

func TestRollingVolatility(t *testing.T) {
	p := series(0.02, -0.01, 0.03, -0.02, 0.01)

	vol := RollingVolatility(p, 3, 12)
	require.Equal(t, 3, vol.Len())
	assert.Equal(t, p.Dates[2:], vol.Dates)
	assert.InDeltaSlice(t, []float64{0.05887840577551897, 0.07483314773547882, 0.07118052168020873}, vol.Values, 1e-9)

	assert.Zero(t, RollingVolatility(p, 12, 12).Len())
}
