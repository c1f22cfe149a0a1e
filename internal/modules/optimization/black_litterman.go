package optimization

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultTau scales the uncertainty of the prior.
const DefaultTau = 0.05

// ViewType distinguishes single-asset views from spreads.
type ViewType string

const (
	ViewAbsolute ViewType = "absolute"
	ViewRelative ViewType = "relative"
)

// View represents a Black-Litterman view (investor opinion).
//
// An absolute view states the expected annual return of Asset. A relative
// view states by how much Asset outperforms Versus. Confidence is optional;
// when every view carries one, the view uncertainty follows Idzorek's method.
type View struct {
	Type       ViewType `json:"type"`
	Asset      string   `json:"asset"`
	Versus     string   `json:"versus,omitempty"`
	Return     float64  `json:"return"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// AbsoluteViews turns an asset -> return map into views ordered by asset name.
func AbsoluteViews(views map[string]float64) []View {
	out := make([]View, 0, len(views))
	for asset, ret := range views {
		out = append(out, View{Type: ViewAbsolute, Asset: asset, Return: ret})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// BlackLitterman blends a prior return vector with investor views.
type BlackLitterman struct {
	tickers []string
	cov     *mat.SymDense
	prior   []float64
	tau     float64
	views   []View

	p     *mat.Dense    // k x n picking matrix
	q     *mat.VecDense // view returns
	omega *mat.Dense    // view uncertainty, diagonal
}

// NewBlackLitterman validates the views against tickers. tau <= 0 selects
// DefaultTau.
func NewBlackLitterman(tickers []string, cov mat.Symmetric, prior []float64, tau float64, views []View) (*BlackLitterman, error) {
	n := len(tickers)
	if n == 0 {
		return nil, fmt.Errorf("no assets provided")
	}
	if cov == nil || cov.SymmetricDim() != n {
		return nil, fmt.Errorf("covariance must be %dx%d", n, n)
	}
	if len(prior) != n {
		return nil, fmt.Errorf("prior has %d entries for %d assets", len(prior), n)
	}
	if tau <= 0 {
		tau = DefaultTau
	}

	sym := mat.NewSymDense(n, nil)
	sym.CopySym(cov)

	bl := &BlackLitterman{
		tickers: append([]string(nil), tickers...),
		cov:     sym,
		prior:   append([]float64(nil), prior...),
		tau:     tau,
		views:   append([]View(nil), views...),
	}
	if len(views) == 0 {
		return bl, nil
	}

	index := make(map[string]int, n)
	for i, t := range tickers {
		index[t] = i
	}

	k := len(views)
	bl.p = mat.NewDense(k, n, nil)
	bl.q = mat.NewVecDense(k, nil)
	allConfident := true

	for row, view := range views {
		if math.IsNaN(view.Return) || math.IsInf(view.Return, 0) {
			return nil, fmt.Errorf("view %d: return is not finite", row)
		}
		i, ok := index[view.Asset]
		if !ok {
			return nil, fmt.Errorf("view %d: unknown asset %q", row, view.Asset)
		}
		switch view.Type {
		case ViewAbsolute, "":
			bl.p.Set(row, i, 1)
		case ViewRelative:
			j, ok := index[view.Versus]
			if !ok {
				return nil, fmt.Errorf("view %d: unknown asset %q", row, view.Versus)
			}
			if i == j {
				return nil, fmt.Errorf("view %d: relative view compares %s with itself", row, view.Asset)
			}
			bl.p.Set(row, i, 1)
			bl.p.Set(row, j, -1)
		default:
			return nil, fmt.Errorf("view %d: unknown view type %q", row, view.Type)
		}
		bl.q.SetVec(row, view.Return)

		if view.Confidence == nil {
			allConfident = false
		} else if c := *view.Confidence; c < 0 || c > 1 || math.IsNaN(c) {
			return nil, fmt.Errorf("view %d: confidence %g outside [0, 1]", row, c)
		}
	}

	bl.omega = bl.viewUncertainty(allConfident)
	return bl, nil
}

// viewUncertainty builds Ω. The default is diag(τ·PΣP'), i.e. each view is as
// uncertain as the prior for the same portfolio. With confidences, Idzorek's
// alpha = (1-c)/c scales that variance; full confidence gives zero
// uncertainty and zero confidence a very large one.
func (bl *BlackLitterman) viewUncertainty(idzorek bool) *mat.Dense {
	k, _ := bl.p.Dims()
	omega := mat.NewDense(k, k, nil)
	for row := 0; row < k; row++ {
		pk := bl.p.RowView(row)
		variance := bl.tau * mat.Inner(pk, bl.cov, pk)
		if idzorek {
			c := *bl.views[row].Confidence
			if c < 1e-16 {
				omega.Set(row, row, 1e6)
				continue
			}
			variance *= (1 - c) / c
		}
		omega.Set(row, row, variance)
	}
	return omega
}

// Tau returns the prior scaling in use.
func (bl *BlackLitterman) Tau() float64 {
	return bl.tau
}

// Views returns the views in the order they were given.
func (bl *BlackLitterman) Views() []View {
	return bl.views
}

// system returns τΣ and the view system matrix PτΣP' + Ω.
func (bl *BlackLitterman) system() (*mat.Dense, *mat.Dense) {
	n := len(bl.tickers)
	k, _ := bl.p.Dims()

	tauSigma := mat.NewDense(n, n, nil)
	tauSigma.Scale(bl.tau, bl.cov)

	var ps mat.Dense
	ps.Mul(bl.p, tauSigma)
	a := mat.NewDense(k, k, nil)
	a.Mul(&ps, bl.p.T())
	a.Add(a, bl.omega)
	return tauSigma, a
}

// PosteriorReturns computes π + τΣP'(PτΣP' + Ω)^-1 (Q - Pπ).
// Without views the prior is returned unchanged.
func (bl *BlackLitterman) PosteriorReturns() ([]float64, error) {
	if len(bl.views) == 0 {
		return append([]float64(nil), bl.prior...), nil
	}

	tauSigma, a := bl.system()
	pi := mat.NewVecDense(len(bl.prior), append([]float64(nil), bl.prior...))

	var gap mat.VecDense
	gap.MulVec(bl.p, pi)
	gap.SubVec(bl.q, &gap)

	var x mat.VecDense
	if err := x.SolveVec(a, &gap); err != nil {
		return nil, fmt.Errorf("failed to solve view system: %w", err)
	}

	var pt mat.VecDense
	pt.MulVec(bl.p.T(), &x)
	var adj mat.VecDense
	adj.MulVec(tauSigma, &pt)

	out := make([]float64, len(bl.prior))
	for i := range out {
		out[i] = bl.prior[i] + adj.AtVec(i)
	}
	return out, nil
}

// PosteriorCovariance computes Σ + τΣ - τΣP'(PτΣP' + Ω)^-1 PτΣ.
func (bl *BlackLitterman) PosteriorCovariance() (*mat.SymDense, error) {
	n := len(bl.tickers)
	out := mat.NewSymDense(n, nil)

	if len(bl.views) == 0 {
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				out.SetSym(i, j, (1+bl.tau)*bl.cov.At(i, j))
			}
		}
		return out, nil
	}

	tauSigma, a := bl.system()
	var ps mat.Dense
	ps.Mul(bl.p, tauSigma)

	var x mat.Dense
	if err := x.Solve(a, &ps); err != nil {
		return nil, fmt.Errorf("failed to solve view system: %w", err)
	}
	var correction mat.Dense
	correction.Mul(ps.T(), &x)

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			upper := bl.cov.At(i, j) + tauSigma.At(i, j) - correction.At(i, j)
			lower := bl.cov.At(j, i) + tauSigma.At(j, i) - correction.At(j, i)
			out.SetSym(i, j, 0.5*(upper+lower))
		}
	}
	return out, nil
}

// Weights returns the unconstrained optimum (δΣ)^-1 μ_BL scaled to sum to one.
func (bl *BlackLitterman) Weights(riskAversion float64) (Weights, error) {
	if riskAversion <= 0 {
		return nil, fmt.Errorf("risk aversion must be positive, got %g", riskAversion)
	}
	posterior, err := bl.PosteriorReturns()
	if err != nil {
		return nil, err
	}

	n := len(bl.tickers)
	a := mat.NewDense(n, n, nil)
	a.Scale(riskAversion, bl.cov)

	var raw mat.VecDense
	if err := raw.SolveVec(a, mat.NewVecDense(n, posterior)); err != nil {
		return nil, fmt.Errorf("failed to solve for weights: %w", err)
	}
	sum := mat.Sum(&raw)
	if math.Abs(sum) < 1e-12 {
		return nil, fmt.Errorf("implied weights sum to zero")
	}

	out := make(Weights, n)
	for i, t := range bl.tickers {
		out[i] = AssetWeight{Asset: t, Weight: raw.AtVec(i) / sum}
	}
	return out, nil
}

// MarketImpliedPrior returns δΣw + rf, the returns that make the market
// portfolio optimal.
func MarketImpliedPrior(riskAversion float64, cov mat.Symmetric, marketWeights []float64, riskFreeRate float64) ([]float64, error) {
	n := cov.SymmetricDim()
	if len(marketWeights) != n {
		return nil, fmt.Errorf("market weights have %d entries for %d assets", len(marketWeights), n)
	}
	var sw mat.VecDense
	sw.MulVec(cov, mat.NewVecDense(n, append([]float64(nil), marketWeights...)))

	out := make([]float64, n)
	for i := range out {
		out[i] = riskAversion*sw.AtVec(i) + riskFreeRate
	}
	return out, nil
}

// MarketImpliedRiskAversion estimates δ = (R_m - rf) / σ_m² from a price
// series, using the arithmetic mean and sample variance of simple returns
// annualised by frequency.
func MarketImpliedRiskAversion(prices []float64, frequency int, riskFreeRate float64) (float64, error) {
	if len(prices) < 3 {
		return 0, fmt.Errorf("need at least 3 prices, got %d", len(prices))
	}
	rets := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			return 0, fmt.Errorf("zero price at position %d", i-1)
		}
		rets[i-1] = prices[i]/prices[i-1] - 1
	}

	if floats.HasNaN(rets) {
		return 0, fmt.Errorf("market returns contain NaN")
	}

	f := float64(frequency)
	mean, variance := stat.MeanVariance(rets, nil)
	if variance == 0 {
		return 0, fmt.Errorf("market returns have zero variance")
	}
	return (mean*f - riskFreeRate) / (variance * f), nil
}
