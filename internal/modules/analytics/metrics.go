package analytics

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// MinObservations is the fewest overlapping periods the benchmark metrics need.
const MinObservations = 2

// Metrics is the risk/return report for a portfolio return series.
//
// Benchmark-relative figures are computed on the dates both series share.
// A metric whose denominator is zero is reported as 0 and its JSON name is
// listed in Undefined.
type Metrics struct {
	PortfolioReturn  float64  `json:"portfolio_return"`
	BenchmarkReturn  float64  `json:"benchmark_return"`
	ActiveRisk       float64  `json:"active_risk"`
	DownsideRisk     float64  `json:"downside_risk"`
	SortinoRatio     float64  `json:"sortino_ratio"`
	Beta             float64  `json:"beta"`
	Alpha            float64  `json:"alpha"`
	InformationRatio float64  `json:"information_ratio"`
	MaxDrawdown      float64  `json:"max_drawdown"`
	VaR95            float64  `json:"var_95"`
	CVaR95           float64  `json:"cvar_95"`
	Observations     int      `json:"observations"`
	Undefined        []string `json:"undefined,omitempty"`
}

// Compute derives the report from period returns. riskFreeRate is annual and
// frequency is the number of periods per year.
func Compute(portfolio, benchmark Series, riskFreeRate float64, frequency int) (*Metrics, error) {
	if frequency <= 0 {
		return nil, fmt.Errorf("frequency must be positive, got %d", frequency)
	}
	if portfolio.Len() < MinObservations {
		return nil, fmt.Errorf("need at least %d portfolio returns, have %d", MinObservations, portfolio.Len())
	}
	p, b := Align(portfolio, benchmark)
	if p.Len() < MinObservations {
		return nil, fmt.Errorf("portfolio and benchmark share %d dates, need at least %d", p.Len(), MinObservations)
	}

	f := float64(frequency)
	m := &Metrics{Observations: p.Len()}
	ratio := func(name string, num, den float64) float64 {
		if den == 0 || math.IsNaN(den) {
			m.Undefined = append(m.Undefined, name)
			return 0
		}
		return num / den
	}

	_, m.MaxDrawdown = Drawdowns(portfolio)

	m.DownsideRisk = DownsideRisk(portfolio.Values, riskFreeRate, frequency)
	excess := stat.Mean(portfolio.Values, nil) - riskFreeRate/f
	m.SortinoRatio = ratio("sortino_ratio", excess*f, m.DownsideRisk)

	var err error
	if m.ActiveRisk, err = ActiveRisk(p.Values, b.Values, frequency); err != nil {
		return nil, err
	}

	m.PortfolioReturn = stat.Mean(p.Values, nil) * f
	m.BenchmarkReturn = stat.Mean(b.Values, nil) * f

	m.Beta = ratio("beta", stat.Covariance(p.Values, b.Values, nil), stat.PopVariance(b.Values, nil))
	m.Alpha = m.PortfolioReturn - (riskFreeRate + m.Beta*(m.BenchmarkReturn-riskFreeRate))
	m.InformationRatio = ratio("information_ratio", m.PortfolioReturn-m.BenchmarkReturn, m.ActiveRisk)

	if m.VaR95, m.CVaR95, err = TailRisk(portfolio.Values, 0.95); err != nil {
		return nil, err
	}

	return m, nil
}

// ActiveRisk is the annualised population standard deviation of p - b
// (tracking error).
func ActiveRisk(p, b []float64, frequency int) (float64, error) {
	if len(p) != len(b) {
		return 0, fmt.Errorf("series lengths differ: %d and %d", len(p), len(b))
	}
	active := make(stats.Float64Data, len(p))
	for i := range p {
		active[i] = p[i] - b[i]
	}
	sd, err := stats.StandardDeviationPopulation(active)
	if err != nil {
		return 0, fmt.Errorf("failed to compute active risk: %w", err)
	}
	return sd * math.Sqrt(float64(frequency)), nil
}

// DownsideRisk is sqrt(mean(e²)) over the negative excess returns
// e = r - rf/f, annualised. No negative excess return gives 0.
func DownsideRisk(returns []float64, riskFreeRate float64, frequency int) float64 {
	f := float64(frequency)
	var sum float64
	var count int
	for _, r := range returns {
		if e := r - riskFreeRate/f; e < 0 {
			sum += e * e
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum/float64(count)) * math.Sqrt(f)
}

// TailRisk returns historical value at risk and conditional value at risk of
// period returns at the given confidence. Both are returns, so losses are
// negative: VaR is the nearest-rank (1-confidence) quantile and CVaR the
// mean of the returns at or below it.
func TailRisk(returns []float64, confidence float64) (float64, float64, error) {
	if confidence <= 0 || confidence >= 1 {
		return 0, 0, fmt.Errorf("confidence must be in (0, 1), got %g", confidence)
	}
	data := stats.LoadRawData(returns)
	// 1-0.95 is not exactly 0.05; round so the nearest rank is not pushed up
	percent := math.Round((1-confidence)*100*1e9) / 1e9
	valueAtRisk, err := stats.PercentileNearestRank(data, percent)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to compute value at risk: %w", err)
	}

	var tail stats.Float64Data
	for _, r := range data {
		if r <= valueAtRisk {
			tail = append(tail, r)
		}
	}
	expectedShortfall, err := stats.Mean(tail)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to compute conditional value at risk: %w", err)
	}
	return valueAtRisk, expectedShortfall, nil
}

// RollingVolatility is the annualised population standard deviation of the
// trailing window of returns. The series starts at the first full window.
func RollingVolatility(p Series, window, frequency int) Series {
	if window < 2 || p.Len() < window {
		return Series{}
	}
	sd := talib.StdDev(p.Values, window, 1)
	scale := math.Sqrt(float64(frequency))

	out := Series{
		Dates:  append(p.Dates[:0:0], p.Dates[window-1:]...),
		Values: make([]float64, 0, p.Len()-window+1),
	}
	for _, v := range sd[window-1:] {
		out.Values = append(out.Values, v*scale)
	}
	return out
}
