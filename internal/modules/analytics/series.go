// Package analytics computes realised performance and risk of a weighted
// portfolio against a benchmark.
package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/frontier/internal/modules/estimation"
	"gonum.org/v1/gonum/mat"
)

// Series is a dated sequence of period values.
type Series struct {
	Dates  []time.Time `json:"dates"`
	Values []float64   `json:"values"`
}

// Len returns the number of observations.
func (s Series) Len() int {
	return len(s.Values)
}

// PortfolioReturns computes R·w for each period.
func PortfolioReturns(r *estimation.ReturnSeries, weights []float64) (Series, error) {
	if r == nil || r.Len() == 0 {
		return Series{}, fmt.Errorf("no returns")
	}
	_, n := r.Values.Dims()
	if len(weights) != n {
		return Series{}, fmt.Errorf("have %d weights for %d assets", len(weights), n)
	}

	var p mat.VecDense
	p.MulVec(r.Values, mat.NewVecDense(n, append([]float64(nil), weights...)))

	return Series{
		Dates:  append([]time.Time(nil), r.Dates...),
		Values: mat.Col(nil, 0, &p),
	}, nil
}

// BenchmarkReturns extracts the single benchmark column.
func BenchmarkReturns(r *estimation.ReturnSeries) (Series, error) {
	if r == nil || r.Len() == 0 {
		return Series{}, fmt.Errorf("no benchmark returns")
	}
	if len(r.Columns) != 1 {
		return Series{}, fmt.Errorf("benchmark must have exactly one column, has %d", len(r.Columns))
	}
	return Series{
		Dates:  append([]time.Time(nil), r.Dates...),
		Values: r.Column(0),
	}, nil
}

// Cumulative compounds period returns: Π(1+r) up to each date.
func Cumulative(p Series) Series {
	out := Series{
		Dates:  append([]time.Time(nil), p.Dates...),
		Values: make([]float64, p.Len()),
	}
	growth := 1.0
	for i, r := range p.Values {
		growth *= 1 + r
		out.Values[i] = growth
	}
	return out
}

// Drawdowns returns (cum - running max)/running max for each date along
// with the deepest drawdown. The running max starts at the first period's
// growth, not at 1.
func Drawdowns(p Series) (Series, float64) {
	cum := Cumulative(p)
	out := Series{
		Dates:  cum.Dates,
		Values: make([]float64, cum.Len()),
	}

	peak := math.Inf(-1)
	worst := 0.0
	for i, v := range cum.Values {
		peak = math.Max(peak, v)
		dd := 0.0
		if peak != 0 {
			dd = (v - peak) / peak
		}
		out.Values[i] = dd
		worst = math.Min(worst, dd)
	}
	return out, worst
}

// Align keeps only the dates present in both series, in a's order.
func Align(a, b Series) (Series, Series) {
	index := make(map[int64]int, b.Len())
	for i, d := range b.Dates {
		index[d.Unix()] = i
	}

	var outA, outB Series
	for i, d := range a.Dates {
		j, ok := index[d.Unix()]
		if !ok {
			continue
		}
		outA.Dates = append(outA.Dates, d)
		outA.Values = append(outA.Values, a.Values[i])
		outB.Dates = append(outB.Dates, d)
		outB.Values = append(outB.Values, b.Values[j])
	}
	return outA, outB
}
