// Package optimization implements long-only mean-variance optimisation over a
// box-bounded budget set, and Black-Litterman return blending.
package optimization

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// User-correctable optimisation failures.
var (
	ErrInvalidBounds     = errors.New("lower bound must be less than upper bound")
	ErrInfeasible        = errors.New("weight bounds cannot sum to 1 across the assets")
	ErrTargetUnreachable = errors.New("target return must be lower than the maximum possible return")
	ErrNoExcessReturn    = errors.New("at least one asset must have an expected return above the risk-free rate")
	ErrNotOptimized      = errors.New("no portfolio has been optimised yet")
)

// Method names the optimisation objective.
type Method string

const (
	MethodEfficientReturn Method = "efficient_return"
	MethodMaxSharpe       Method = "max_sharpe"
	MethodMinVolatility   Method = "min_volatility"
)

// ParseMethod accepts the method identifiers and their display names.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "", string(MethodEfficientReturn), "Efficient Return":
		return MethodEfficientReturn, nil
	case string(MethodMaxSharpe), "Max Sharpe":
		return MethodMaxSharpe, nil
	case string(MethodMinVolatility), "Minimum Volatility":
		return MethodMinVolatility, nil
	default:
		return "", fmt.Errorf("unknown optimisation method %q", s)
	}
}

// Label is the display name of the optimised portfolio.
func (m Method) Label(targetReturn float64) string {
	switch m {
	case MethodMaxSharpe:
		return "Max Sharpe"
	case MethodMinVolatility:
		return "Minimum Volatility"
	default:
		return fmt.Sprintf("Efficient Return (%s%%)", formatPercent(targetReturn))
	}
}

// formatPercent renders 0.08 as "8.0" and 0.125 as "12.5".
func formatPercent(fraction float64) string {
	pct := math.Round(fraction*100*1e4) / 1e4
	s := strconv.FormatFloat(pct, 'f', -1, 64)
	if pct == math.Trunc(pct) {
		s += ".0"
	}
	return s
}

// AssetWeight is one asset's share of the portfolio.
type AssetWeight struct {
	Asset  string  `json:"asset"`
	Weight float64 `json:"weight"`
}

// Weights keeps assets in input order.
type Weights []AssetWeight

// Map returns the weights keyed by asset.
func (w Weights) Map() map[string]float64 {
	m := make(map[string]float64, len(w))
	for _, aw := range w {
		m[aw.Asset] = aw.Weight
	}
	return m
}

// Values returns the bare weight vector.
func (w Weights) Values() []float64 {
	out := make([]float64, len(w))
	for i, aw := range w {
		out[i] = aw.Weight
	}
	return out
}

// Performance summarises a portfolio's expected behaviour.
type Performance struct {
	ExpectedReturn float64 `json:"expected_return"`
	Volatility     float64 `json:"volatility"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
}

// EfficientFrontier optimises weights for fixed expected returns and covariance.
type EfficientFrontier struct {
	tickers []string
	mu      []float64
	cov     *mat.SymDense
	set     budgetBox
	solver  *qpSolver
	weights []float64
}

// New validates the inputs and prepares the solver.
func New(tickers []string, expectedReturns []float64, cov mat.Symmetric, lower, upper float64) (*EfficientFrontier, error) {
	n := len(tickers)
	if n == 0 {
		return nil, fmt.Errorf("no assets provided")
	}
	if len(expectedReturns) != n {
		return nil, fmt.Errorf("expected returns have %d entries for %d assets", len(expectedReturns), n)
	}
	if cov == nil || cov.SymmetricDim() != n {
		return nil, fmt.Errorf("covariance must be %dx%d", n, n)
	}
	if math.IsNaN(lower) || math.IsNaN(upper) || lower >= upper {
		return nil, ErrInvalidBounds
	}
	for i, r := range expectedReturns {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, fmt.Errorf("expected return for %s is not finite", tickers[i])
		}
	}

	set := budgetBox{n: n, lower: lower, upper: upper}
	if !set.feasible() {
		return nil, fmt.Errorf("%w: %d assets between %.4f and %.4f", ErrInfeasible, n, lower, upper)
	}

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := cov.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("covariance entry (%d,%d) is not finite", i, j)
			}
			sym.SetSym(i, j, v)
		}
	}

	solver, err := newQPSolver(sym, set)
	if err != nil {
		return nil, err
	}

	return &EfficientFrontier{
		tickers: append([]string(nil), tickers...),
		mu:      append([]float64(nil), expectedReturns...),
		cov:     sym,
		set:     set,
		solver:  solver,
	}, nil
}

// Tickers returns the asset names in order.
func (ef *EfficientFrontier) Tickers() []string {
	return ef.tickers
}

// MinVolatility finds the lowest-variance portfolio.
func (ef *EfficientFrontier) MinVolatility() (Weights, error) {
	w, err := ef.solver.minVariance(nil)
	if err != nil {
		return nil, err
	}
	return ef.setWeights(w), nil
}

// MaxReturn is the highest expected return reachable within the bounds.
func (ef *EfficientFrontier) MaxReturn() float64 {
	return floats.Dot(ef.mu, ef.set.maxReturnPortfolio(ef.mu))
}

// EfficientReturn minimises variance subject to an expected return of at least target.
func (ef *EfficientFrontier) EfficientReturn(target float64) (Weights, error) {
	w, err := ef.efficientReturn(target, nil)
	if err != nil {
		return nil, err
	}
	return ef.setWeights(w), nil
}

func (ef *EfficientFrontier) efficientReturn(target float64, start []float64) ([]float64, error) {
	maxRet := ef.MaxReturn()
	if target > maxRet+1e-12 {
		return nil, fmt.Errorf("%w: target %.4f, maximum %.4f", ErrTargetUnreachable, target, maxRet)
	}

	minVol, err := ef.solver.minVariance(start)
	if err != nil {
		return nil, err
	}
	if floats.Dot(ef.mu, minVol) >= target {
		return minVol, nil
	}

	// Only the max-return corner meets a target at the very top
	if target >= maxRet-1e-10 {
		return ef.set.maxReturnPortfolio(ef.mu), nil
	}

	return ef.solver.targetReturn(ef.mu, target, minVol)
}

// MaxSharpe finds the tangency portfolio for the given annual risk-free rate.
// The Sharpe ratio along the efficient frontier is unimodal in the target
// return, so the tangency point is located by golden-section search.
func (ef *EfficientFrontier) MaxSharpe(riskFreeRate float64) (Weights, error) {
	if floats.Max(ef.mu) <= riskFreeRate {
		return nil, ErrNoExcessReturn
	}
	maxRet := ef.MaxReturn()
	if maxRet <= riskFreeRate {
		return nil, fmt.Errorf("%w within the weight bounds", ErrNoExcessReturn)
	}

	minVol, err := ef.solver.minVariance(nil)
	if err != nil {
		return nil, err
	}
	lo := math.Max(floats.Dot(ef.mu, minVol), riskFreeRate)
	hi := maxRet

	cache := make(map[float64][]float64)
	warm := minVol
	sharpe := func(target float64) float64 {
		w, ok := cache[target]
		if !ok {
			w, err = ef.efficientReturn(target, warm)
			if err != nil {
				return math.Inf(-1)
			}
			cache[target] = w
			warm = w
		}
		vol := math.Sqrt(math.Max(variance(ef.cov, w), 0))
		if vol == 0 {
			return math.Inf(-1)
		}
		return (floats.Dot(ef.mu, w) - riskFreeRate) / vol
	}

	best := goldenSectionMax(sharpe, lo, hi, 1e-10)

	// The maximum may sit on either end of the interval
	bestVal := sharpe(best)
	for _, edge := range []float64{lo, hi} {
		if v := sharpe(edge); v > bestVal {
			best, bestVal = edge, v
		}
	}
	if math.IsInf(bestVal, -1) {
		if err == nil {
			err = fmt.Errorf("no portfolio with positive volatility")
		}
		return nil, fmt.Errorf("max sharpe failed: %w", err)
	}

	return ef.setWeights(cache[best]), nil
}

// goldenSectionMax maximises a unimodal function on [a, b].
func goldenSectionMax(f func(float64) float64, a, b, tol float64) float64 {
	invPhi := (math.Sqrt(5) - 1) / 2
	c := b - invPhi*(b-a)
	d := a + invPhi*(b-a)
	fc, fd := f(c), f(d)
	for i := 0; i < 200 && b-a > tol; i++ {
		if fc >= fd {
			b, d, fd = d, c, fc
			c = b - invPhi*(b-a)
			fc = f(c)
		} else {
			a, c, fc = c, d, fd
			d = a + invPhi*(b-a)
			fd = f(d)
		}
	}
	if fc >= fd {
		return c
	}
	return d
}

// Optimize dispatches on method. targetReturn is used by efficient return only.
func (ef *EfficientFrontier) Optimize(method Method, riskFreeRate, targetReturn float64) (Weights, error) {
	switch method {
	case MethodMaxSharpe:
		return ef.MaxSharpe(riskFreeRate)
	case MethodMinVolatility:
		return ef.MinVolatility()
	case MethodEfficientReturn, "":
		return ef.EfficientReturn(targetReturn)
	default:
		return nil, fmt.Errorf("unknown optimisation method %q", method)
	}
}

func (ef *EfficientFrontier) setWeights(w []float64) Weights {
	ef.weights = append([]float64(nil), w...)
	return ef.toWeights(ef.weights)
}

func (ef *EfficientFrontier) toWeights(w []float64) Weights {
	out := make(Weights, len(w))
	for i, v := range w {
		out[i] = AssetWeight{Asset: ef.tickers[i], Weight: v}
	}
	return out
}

// Weights returns the last optimised weights.
func (ef *EfficientFrontier) Weights() (Weights, error) {
	if ef.weights == nil {
		return nil, ErrNotOptimized
	}
	return ef.toWeights(ef.weights), nil
}

// CleanWeights zeroes weights whose magnitude is below cutoff and rounds the
// rest to the given number of decimals. The result is not renormalised.
func (ef *EfficientFrontier) CleanWeights(cutoff float64, rounding int) (Weights, error) {
	if ef.weights == nil {
		return nil, ErrNotOptimized
	}
	return CleanWeights(ef.toWeights(ef.weights), cutoff, rounding), nil
}

// CleanWeights applies the cutoff and rounding to any weights.
func CleanWeights(w Weights, cutoff float64, rounding int) Weights {
	scale := math.Pow(10, float64(rounding))
	out := make(Weights, len(w))
	for i, aw := range w {
		v := aw.Weight
		if math.Abs(v) < cutoff {
			v = 0
		}
		if rounding > 0 {
			v = math.Round(v*scale) / scale
		}
		if v == 0 {
			v = 0 // drop negative zero
		}
		out[i] = AssetWeight{Asset: aw.Asset, Weight: v}
	}
	return out
}

// Performance evaluates the last optimised weights.
func (ef *EfficientFrontier) Performance(riskFreeRate float64) (Performance, error) {
	if ef.weights == nil {
		return Performance{}, ErrNotOptimized
	}
	return PortfolioPerformance(ef.weights, ef.mu, ef.cov, riskFreeRate), nil
}

// PortfolioPerformance computes expected return, volatility and Sharpe ratio.
// A zero-volatility portfolio reports a Sharpe ratio of 0.
func PortfolioPerformance(w, mu []float64, cov mat.Symmetric, riskFreeRate float64) Performance {
	ret := floats.Dot(w, mu)
	vol := math.Sqrt(math.Max(variance(cov, w), 0))
	sharpe := 0.0
	if vol > 0 {
		sharpe = (ret - riskFreeRate) / vol
	}
	return Performance{ExpectedReturn: ret, Volatility: vol, SharpeRatio: sharpe}
}
