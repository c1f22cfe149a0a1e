// Package charts turns optimisation runs into chart data and PNG images.
package charts

import (
	"math"

	"github.com/aristath/frontier/internal/modules/analysis"
	"github.com/aristath/frontier/internal/modules/analytics"
)

// ChartDataPoint represents a single point on a time chart
type ChartDataPoint struct {
	Time  string  `json:"time"` // YYYY-MM-DD format
	Value float64 `json:"value"`
}

// RiskReturnPoint is a point in volatility/return space.
type RiskReturnPoint struct {
	Label      string  `json:"label,omitempty"`
	Volatility float64 `json:"volatility"`
	Return     float64 `json:"return"`
}

// Slice is one allocation pie wedge. Label is empty for zero weights.
type Slice struct {
	Asset  string  `json:"asset"`
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// Dashboard holds every chart shown for a run.
type Dashboard struct {
	RunID             string            `json:"run_id"`
	Label             string            `json:"label"`
	Frontier          []RiskReturnPoint `json:"frontier"`
	Assets            []RiskReturnPoint `json:"assets"`
	Selected          RiskReturnPoint   `json:"selected"`
	Allocation        []Slice           `json:"allocation"`
	Drawdown          []ChartDataPoint  `json:"drawdown"`
	Cumulative        []ChartDataPoint  `json:"cumulative"`
	RollingVolatility []ChartDataPoint  `json:"rolling_volatility"`
}

// minSliceWeight hides pie labels for weights that round to zero.
const minSliceWeight = 1e-4

// FromReport builds the chart data of a run.
func FromReport(report *analysis.Report) *Dashboard {
	d := &Dashboard{
		RunID: report.ID,
		Label: report.Label,
		Selected: RiskReturnPoint{
			Label:      report.Label,
			Volatility: report.Performance.Volatility,
			Return:     report.Performance.ExpectedReturn,
		},
		Frontier:          []RiskReturnPoint{},
		Assets:            []RiskReturnPoint{},
		Allocation:        make([]Slice, 0, len(report.Weights)),
		Drawdown:          points(report.Drawdowns),
		Cumulative:        points(report.Cumulative),
		RollingVolatility: points(report.RollingVol),
	}

	if report.Frontier != nil {
		for _, p := range report.Frontier.Points {
			d.Frontier = append(d.Frontier, RiskReturnPoint{Volatility: p.Volatility, Return: p.ExpectedReturn})
		}
		for _, a := range report.Frontier.Assets {
			d.Assets = append(d.Assets, RiskReturnPoint{Label: a.Asset, Volatility: a.Volatility, Return: a.ExpectedReturn})
		}
	}

	for _, w := range report.Weights {
		s := Slice{Asset: w.Asset, Weight: w.Weight}
		if math.Abs(w.Weight) >= minSliceWeight {
			s.Label = w.Asset
		}
		d.Allocation = append(d.Allocation, s)
	}
	return d
}

func points(s analytics.Series) []ChartDataPoint {
	out := make([]ChartDataPoint, s.Len())
	for i, d := range s.Dates {
		out[i] = ChartDataPoint{Time: d.Format("2006-01-02"), Value: s.Values[i]}
	}
	return out
}
