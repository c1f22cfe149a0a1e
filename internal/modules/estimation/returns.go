// Package estimation derives expected returns and covariance from price history.
package estimation

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/frontier/internal/modules/marketdata"
	"gonum.org/v1/gonum/mat"
)

// ReturnSeries holds simple period returns, one row per period end.
type ReturnSeries struct {
	Dates   []time.Time
	Columns []string
	Values  *mat.Dense // T x n
}

// Len returns the number of periods
func (r *ReturnSeries) Len() int {
	if r.Values == nil {
		return 0
	}
	rows, _ := r.Values.Dims()
	return rows
}

// Column returns a copy of column j.
func (r *ReturnSeries) Column(j int) []float64 {
	return mat.Col(nil, j, r.Values)
}

// PriceMatrix converts a price table to a dense T x n matrix.
func PriceMatrix(t marketdata.PriceTable) *mat.Dense {
	m := mat.NewDense(t.Len(), len(t.Columns), nil)
	for i, row := range t.Values {
		m.SetRow(i, row)
	}
	return m
}

// Returns computes simple returns p[t]/p[t-1] - 1. The first row has no
// predecessor and is dropped.
func Returns(t marketdata.PriceTable) (*ReturnSeries, error) {
	if t.Len() < 2 {
		return nil, fmt.Errorf("need at least 2 prices to compute returns, have %d", t.Len())
	}

	n := len(t.Columns)
	values := mat.NewDense(t.Len()-1, n, nil)
	for i := 1; i < t.Len(); i++ {
		for j := 0; j < n; j++ {
			prev := t.Values[i-1][j]
			if prev == 0 {
				return nil, fmt.Errorf("zero price for %s on %s", t.Columns[j], t.Dates[i-1].Format("2006-01-02"))
			}
			values.Set(i-1, j, t.Values[i][j]/prev-1)
		}
	}

	return &ReturnSeries{
		Dates:   append([]time.Time(nil), t.Dates[1:]...),
		Columns: append([]string(nil), t.Columns...),
		Values:  values,
	}, nil
}

// MeanHistoricalReturn annualises the geometric mean of each column:
// (prod(1+r))^(frequency/N) - 1.
func MeanHistoricalReturn(r *ReturnSeries, frequency int) []float64 {
	rows, cols := r.Values.Dims()
	mu := make([]float64, cols)
	if rows == 0 {
		return mu
	}
	for j := 0; j < cols; j++ {
		growth := 1.0
		for i := 0; i < rows; i++ {
			growth *= 1 + r.Values.At(i, j)
		}
		mu[j] = math.Pow(growth, float64(frequency)/float64(rows)) - 1
	}
	return mu
}
