// Package analysis runs the dashboard pipeline: estimates, optimisation,
// Black-Litterman blending, realised analytics and mandate sizing.
package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/aristath/frontier/internal/modules/optimization"
)

// Kind tells an MVO run from a Black-Litterman run.
type Kind string

const (
	KindMVO            Kind = "mvo"
	KindBlackLitterman Kind = "black_litterman"
)

// Range is an inclusive slider range.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies in the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min-1e-12 && v <= r.Max+1e-12
}

// Dashboard input ranges.
var (
	LowerBoundRange   = Range{Min: 0, Max: 0.25}
	UpperBoundRange   = Range{Min: 0, Max: 1}
	RiskFreeRateRange = Range{Min: 0, Max: 0.06}
	TargetReturnRange = Range{Min: 0.05, Max: 0.15}
	ViewReturnRange   = Range{Min: 0.05, Max: 0.25}
	RelativeViewRange = Range{Min: -0.25, Max: 0.25}
)

// Dashboard defaults.
const (
	DefaultMethod       = optimization.MethodEfficientReturn
	DefaultLowerBound   = 0.0
	DefaultUpperBound   = 1.0
	DefaultRiskFreeRate = 0.03
	DefaultTargetReturn = 0.08
	DefaultViewReturn   = 0.08
)

// ErrInvalidRequest marks a request outside the dashboard ranges.
var ErrInvalidRequest = errors.New("invalid request")

// Request holds the optimisation inputs chosen by the user.
type Request struct {
	Method       optimization.Method `json:"method"`
	LowerBound   float64             `json:"lower_bound"`
	UpperBound   float64             `json:"upper_bound"`
	RiskFreeRate float64             `json:"risk_free_rate"`
	TargetReturn float64             `json:"target_return"`
	Views        []optimization.View `json:"views,omitempty"`
	Tau          float64             `json:"tau,omitempty"`
}

// DefaultRequest returns the dashboard's initial inputs.
func DefaultRequest() Request {
	return Request{
		Method:       DefaultMethod,
		LowerBound:   DefaultLowerBound,
		UpperBound:   DefaultUpperBound,
		RiskFreeRate: DefaultRiskFreeRate,
		TargetReturn: DefaultTargetReturn,
	}
}

// Normalize resolves display names to method identifiers.
func (r *Request) Normalize() error {
	m, err := optimization.ParseMethod(string(r.Method))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	r.Method = m
	return nil
}

// Validate checks the request against the dashboard ranges. The bound order
// is reported with optimization.ErrInvalidBounds.
func (r *Request) Validate() error {
	if err := r.Normalize(); err != nil {
		return err
	}

	checks := []struct {
		name  string
		value float64
		rng   Range
	}{
		{"lower_bound", r.LowerBound, LowerBoundRange},
		{"upper_bound", r.UpperBound, UpperBoundRange},
		{"risk_free_rate", r.RiskFreeRate, RiskFreeRateRange},
		{"target_return", r.TargetReturn, TargetReturnRange},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || !c.rng.Contains(c.value) {
			return fmt.Errorf("%w: %s %g outside [%g, %g]", ErrInvalidRequest, c.name, c.value, c.rng.Min, c.rng.Max)
		}
	}

	if r.LowerBound >= r.UpperBound {
		return optimization.ErrInvalidBounds
	}
	if r.Tau < 0 || r.Tau > 1 {
		return fmt.Errorf("%w: tau %g outside [0, 1]", ErrInvalidRequest, r.Tau)
	}

	seen := make(map[string]bool, len(r.Views))
	for _, v := range r.Views {
		rng := ViewReturnRange
		if v.Type == optimization.ViewRelative {
			rng = RelativeViewRange
		}
		if !rng.Contains(v.Return) {
			return fmt.Errorf("%w: view on %s %g outside [%g, %g]", ErrInvalidRequest, v.Asset, v.Return, rng.Min, rng.Max)
		}
		kind := v.Type
		if kind == "" {
			kind = optimization.ViewAbsolute
		}
		key := string(kind) + ":" + v.Asset + ":" + v.Versus
		if seen[key] {
			return fmt.Errorf("%w: duplicate view on %s", ErrInvalidRequest, v.Asset)
		}
		seen[key] = true
	}
	return nil
}
