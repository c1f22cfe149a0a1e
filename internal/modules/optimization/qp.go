package optimization

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// budgetBox is the feasible set {w : sum(w) = 1, lower <= w_i <= upper}.
type budgetBox struct {
	n            int
	lower, upper float64
}

// feasible reports whether the set is non-empty.
func (b budgetBox) feasible() bool {
	return float64(b.n)*b.lower <= 1+1e-12 && float64(b.n)*b.upper >= 1-1e-12
}

// project writes the Euclidean projection of v onto the set into out.
// The projection is clip(v - tau) for the unique shift tau that restores the
// budget; tau is bracketed by bisection and then solved exactly on the
// resulting free set.
func (b budgetBox) project(v, out []float64) {
	clip := func(x float64) float64 {
		return math.Min(b.upper, math.Max(b.lower, x))
	}
	sumAt := func(tau float64) float64 {
		var s float64
		for _, x := range v {
			s += clip(x - tau)
		}
		return s
	}

	lo := floats.Min(v) - b.upper // sum(clip) = n*upper >= 1
	hi := floats.Max(v) - b.lower // sum(clip) = n*lower <= 1
	for i := 0; i < 200 && hi-lo > 1e-15*math.Max(1, math.Abs(hi)); i++ {
		mid := 0.5 * (lo + hi)
		if sumAt(mid) > 1 {
			lo = mid
		} else {
			hi = mid
		}
	}
	tau := 0.5 * (lo + hi)

	// Exact shift for the free coordinates
	var freeSum, fixedSum float64
	free := 0
	for _, x := range v {
		y := x - tau
		switch {
		case y >= b.upper:
			fixedSum += b.upper
		case y <= b.lower:
			fixedSum += b.lower
		default:
			freeSum += x
			free++
		}
	}
	if free > 0 {
		exact := (freeSum + fixedSum - 1) / float64(free)
		if math.Abs(exact-tau) <= 1e-9 {
			tau = exact
		}
	}

	for i, x := range v {
		out[i] = clip(x - tau)
	}
}

// maxReturnPortfolio fills the highest expected returns first, starting
// every asset at the lower bound. It attains the largest mu'w on the set.
func (b budgetBox) maxReturnPortfolio(mu []float64) []float64 {
	w := make([]float64, b.n)
	for i := range w {
		w[i] = b.lower
	}
	order := make([]int, b.n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return mu[order[i]] > mu[order[j]] })

	remaining := 1 - float64(b.n)*b.lower
	for _, i := range order {
		if remaining <= 0 {
			break
		}
		add := math.Min(b.upper-b.lower, remaining)
		w[i] += add
		remaining -= add
	}
	return w
}

// solverOptions bounds the work of a single solve.
type solverOptions struct {
	maxInner  int     // projected gradient iterations per multiplier update
	maxOuter  int     // multiplier updates
	stepTol   float64 // inner stop: max |w_k - w_{k-1}|
	constrTol float64 // outer stop: |mu'w - target|
}

// acceptTol is the largest step or constraint residual accepted from a
// solve that ran out of iterations.
const acceptTol = 1e-8

var defaultSolverOptions = solverOptions{
	maxInner:  20000,
	maxOuter:  200,
	stepTol:   1e-14,
	constrTol: 1e-11,
}

// qpSolver minimises w'Σw over the budget box, optionally with mu'w = target.
// The return equality is handled by an augmented Lagrangian; each
// subproblem is solved by accelerated projected gradient (FISTA with
// adaptive restart) using the exact projection above.
type qpSolver struct {
	cov     *mat.SymDense
	set     budgetBox
	lambda  float64 // largest eigenvalue of Σ
	options solverOptions
}

func newQPSolver(cov *mat.SymDense, set budgetBox) (*qpSolver, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(cov, false); !ok {
		return nil, fmt.Errorf("eigendecomposition of covariance failed")
	}
	values := eig.Values(nil)
	lambda := values[len(values)-1]
	if values[0] < -1e-10*math.Max(1, math.Abs(lambda)) {
		return nil, fmt.Errorf("covariance is not positive semi-definite (min eigenvalue %g)", values[0])
	}
	return &qpSolver{
		cov:     cov,
		set:     set,
		lambda:  lambda,
		options: defaultSolverOptions,
	}, nil
}

// startPoint is the projected equal-weight portfolio.
func (s *qpSolver) startPoint() []float64 {
	w := make([]float64, s.set.n)
	for i := range w {
		w[i] = 1 / float64(s.set.n)
	}
	s.set.project(w, w)
	return w
}

// minVariance solves min w'Σw on the budget box.
func (s *qpSolver) minVariance(start []float64) ([]float64, error) {
	if start == nil {
		start = s.startPoint()
	}
	w, delta := s.fista(start, nil, 0, 0, 0)
	if delta > acceptTol {
		return w, fmt.Errorf("minimum variance did not converge (last step %g)", delta)
	}
	return w, nil
}

// targetReturn solves min w'Σw on the budget box with mu'w = target.
func (s *qpSolver) targetReturn(mu []float64, target float64, start []float64) ([]float64, error) {
	norm2 := floats.Dot(mu, mu)
	if norm2 == 0 {
		return nil, fmt.Errorf("expected returns are all zero")
	}
	if start == nil {
		start = s.startPoint()
	}

	curvature := 2 * s.lambda
	if curvature <= 0 {
		curvature = 1
	}
	rho := 10 * curvature / norm2
	multiplier := 0.0
	w := start
	prevViolation := math.Inf(1)

	for outer := 0; outer < s.options.maxOuter; outer++ {
		var delta float64
		w, delta = s.fista(w, mu, target, multiplier, rho)

		violation := floats.Dot(mu, w) - target
		if delta < s.options.stepTol && math.Abs(violation) < s.options.constrTol {
			return w, nil
		}

		multiplier -= rho * violation
		if math.Abs(violation) > 0.25*prevViolation {
			rho *= 2
		}
		prevViolation = math.Abs(violation)
	}

	if math.Abs(floats.Dot(mu, w)-target) < acceptTol {
		return w, nil
	}
	return w, fmt.Errorf("target return %.6f not reached (got %.6f)", target, floats.Dot(mu, w))
}

// fista minimises
//
//	w'Σw - multiplier*(mu'w - target) + rho/2*(mu'w - target)^2
//
// over the budget box. mu == nil drops the return terms. Returns the last
// iterate and the size of the last step.
func (s *qpSolver) fista(start, mu []float64, target, multiplier, rho float64) ([]float64, float64) {
	n := s.set.n
	lipschitz := 2 * s.lambda
	if mu != nil {
		lipschitz += rho * floats.Dot(mu, mu)
	}
	if lipschitz <= 0 {
		return append([]float64(nil), start...), 0
	}
	step := 1 / lipschitz

	x := append([]float64(nil), start...)
	y := append([]float64(nil), start...)
	next := make([]float64, n)
	grad := make([]float64, n)
	yv := mat.NewVecDense(n, y)
	gv := mat.NewVecDense(n, grad)
	t := 1.0
	delta := math.Inf(1)

	for iter := 0; iter < s.options.maxInner; iter++ {
		// gradient at y
		gv.MulVec(s.cov, yv)
		floats.Scale(2, grad)
		if mu != nil {
			coeff := rho*(floats.Dot(mu, y)-target) - multiplier
			floats.AddScaled(grad, coeff, mu)
		}

		for i := range next {
			next[i] = y[i] - step*grad[i]
		}
		s.set.project(next, next)

		var momentumCheck float64
		delta = 0
		for i := range next {
			d := next[i] - x[i]
			delta = math.Max(delta, math.Abs(d))
			momentumCheck += (y[i] - next[i]) * d
		}
		if delta < s.options.stepTol {
			copy(x, next)
			return x, delta
		}

		// Restart momentum when it points uphill
		if momentumCheck > 0 {
			t = 1
		}
		tNext := 0.5 * (1 + math.Sqrt(1+4*t*t))
		beta := (t - 1) / tNext
		for i := range y {
			y[i] = next[i] + beta*(next[i]-x[i])
		}
		copy(x, next)
		t = tNext
	}
	return x, delta
}

// variance returns w'Σw.
func variance(cov mat.Symmetric, w []float64) float64 {
	v := mat.NewVecDense(len(w), w)
	return mat.Inner(v, cov, v)
}
