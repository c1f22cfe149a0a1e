package estimation

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/frontier/internal/modules/marketdata"
	"gonum.org/v1/gonum/mat"
)

// Method selects the covariance estimator.
type Method string

const (
	MethodLedoitWolf Method = "ledoit_wolf"
	MethodSample     Method = "sample"
)

// Estimates are the annualised inputs to the optimiser.
type Estimates struct {
	Tickers         []string    `json:"tickers" msgpack:"tickers"`
	ExpectedReturns []float64   `json:"expected_returns" msgpack:"mu"`
	Covariance      [][]float64 `json:"covariance" msgpack:"cov"`
	Method          Method      `json:"method" msgpack:"method"`
	Shrinkage       float64     `json:"shrinkage" msgpack:"shrinkage"`
	Frequency       int         `json:"frequency" msgpack:"frequency"`
	Observations    int         `json:"observations" msgpack:"observations"`
	Start           time.Time   `json:"start" msgpack:"start"`
	End             time.Time   `json:"end" msgpack:"end"`
}

// Assumption is one row of the asset assumptions table.
type Assumption struct {
	Asset          string  `json:"asset"`
	ExpectedReturn float64 `json:"expected_return"`
	StdDev         float64 `json:"std_dev"`
}

// Estimate computes expected returns and covariance from a price table.
func Estimate(prices marketdata.PriceTable, frequency int, method Method) (*Estimates, error) {
	if frequency <= 0 {
		return nil, fmt.Errorf("frequency must be positive, got %d", frequency)
	}
	returns, err := Returns(prices)
	if err != nil {
		return nil, err
	}
	if returns.Len() < 2 {
		return nil, fmt.Errorf("insufficient data: need at least 2 returns, got %d", returns.Len())
	}

	var (
		cov       *mat.SymDense
		shrinkage float64
	)
	switch method {
	case MethodSample:
		cov, err = SampleCovariance(returns, frequency)
	case MethodLedoitWolf, "":
		method = MethodLedoitWolf
		cov, shrinkage, err = LedoitWolf(returns, frequency)
	default:
		return nil, fmt.Errorf("unknown covariance method %q", method)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to estimate covariance: %w", err)
	}

	cov, _, err = EnsurePSD(cov)
	if err != nil {
		return nil, err
	}

	return &Estimates{
		Tickers:         append([]string(nil), prices.Columns...),
		ExpectedReturns: MeanHistoricalReturn(returns, frequency),
		Covariance:      SymToRows(cov),
		Method:          method,
		Shrinkage:       shrinkage,
		Frequency:       frequency,
		Observations:    returns.Len(),
		Start:           returns.Dates[0],
		End:             returns.Dates[len(returns.Dates)-1],
	}, nil
}

// Validate checks that the vectors and the covariance agree in size and
// hold finite values.
func (e *Estimates) Validate() error {
	n := len(e.Tickers)
	if n == 0 {
		return fmt.Errorf("estimates hold no assets")
	}
	if len(e.ExpectedReturns) != n {
		return fmt.Errorf("%d expected returns for %d assets", len(e.ExpectedReturns), n)
	}
	if len(e.Covariance) != n {
		return fmt.Errorf("covariance has %d rows for %d assets", len(e.Covariance), n)
	}
	for i, row := range e.Covariance {
		if len(row) != n {
			return fmt.Errorf("covariance row %d has %d entries, expected %d", i, len(row), n)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("covariance row %d is not finite", i)
			}
		}
	}
	for i, v := range e.ExpectedReturns {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("expected return of %s is not finite", e.Tickers[i])
		}
	}
	return nil
}

// CovarianceMatrix returns the covariance as a gonum matrix.
func (e *Estimates) CovarianceMatrix() (*mat.SymDense, error) {
	m, err := RowsToSym(e.Covariance)
	if err != nil {
		return nil, fmt.Errorf("malformed covariance: %w", err)
	}
	return m, nil
}

// Assumptions lists expected return and volatility per asset.
func (e *Estimates) Assumptions() []Assumption {
	out := make([]Assumption, len(e.Tickers))
	for i, t := range e.Tickers {
		out[i] = Assumption{
			Asset:          t,
			ExpectedReturn: e.ExpectedReturns[i],
			StdDev:         math.Sqrt(math.Max(e.Covariance[i][i], 0)),
		}
	}
	return out
}

// CorrelationTable is a labelled correlation matrix. Entries that are not
// defined (a constant column) are reported as 0 and the column is listed in
// Undefined.
type CorrelationTable struct {
	Columns   []string    `json:"columns"`
	Matrix    [][]float64 `json:"matrix"`
	Undefined []string    `json:"undefined,omitempty"`
}

// Correlations computes the return correlation table of a price table.
func Correlations(prices marketdata.PriceTable) (*CorrelationTable, error) {
	returns, err := Returns(prices)
	if err != nil {
		return nil, err
	}
	corr, err := Correlation(returns)
	if err != nil {
		return nil, err
	}

	table := &CorrelationTable{Columns: returns.Columns, Matrix: SymToRows(corr)}
	for i, row := range table.Matrix {
		undefined := false
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				row[j] = 0
				undefined = undefined || i == j
			}
		}
		if undefined {
			table.Undefined = append(table.Undefined, table.Columns[i])
		}
	}
	return table, nil
}
