package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// FrontierPoint is one (risk, return) pair on the curve.
type FrontierPoint struct {
	Volatility     float64 `json:"volatility"`
	ExpectedReturn float64 `json:"expected_return"`
}

// AssetPoint places a single asset in risk/return space.
type AssetPoint struct {
	Asset          string  `json:"asset"`
	Volatility     float64 `json:"volatility"`
	ExpectedReturn float64 `json:"expected_return"`
}

// FrontierCurve is the efficient frontier plus the individual assets.
type FrontierCurve struct {
	Points []FrontierPoint `json:"points"`
	Assets []AssetPoint    `json:"assets"`
}

// DefaultFrontierPoints is the sampling density used by the dashboard.
const DefaultFrontierPoints = 50

// Frontier samples the efficient frontier from the minimum-volatility
// return to the maximum achievable return. It leaves the optimised weights
// untouched.
func (ef *EfficientFrontier) Frontier(points int) (*FrontierCurve, error) {
	if points < 2 {
		points = DefaultFrontierPoints
	}

	minVol, err := ef.solver.minVariance(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to find minimum volatility: %w", err)
	}
	lo := floats.Dot(ef.mu, minVol)
	hi := ef.MaxReturn()

	curve := &FrontierCurve{
		Points: make([]FrontierPoint, 0, points),
		Assets: make([]AssetPoint, len(ef.tickers)),
	}

	warm := minVol
	for i := 0; i < points; i++ {
		target := lo + (hi-lo)*float64(i)/float64(points-1)
		w, err := ef.efficientReturn(target, warm)
		if err != nil {
			return nil, fmt.Errorf("failed at target %.4f: %w", target, err)
		}
		warm = w
		curve.Points = append(curve.Points, FrontierPoint{
			Volatility:     math.Sqrt(math.Max(variance(ef.cov, w), 0)),
			ExpectedReturn: floats.Dot(ef.mu, w),
		})
		if hi-lo < 1e-12 {
			break
		}
	}

	for i, t := range ef.tickers {
		curve.Assets[i] = AssetPoint{
			Asset:          t,
			Volatility:     math.Sqrt(math.Max(ef.cov.At(i, i), 0)),
			ExpectedReturn: ef.mu[i],
		}
	}

	return curve, nil
}
