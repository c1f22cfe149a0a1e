package analysis

import (
	"errors"
	"time"

	"github.com/aristath/frontier/internal/modules/allocation"
	"github.com/aristath/frontier/internal/modules/analytics"
	"github.com/aristath/frontier/internal/modules/estimation"
	"github.com/aristath/frontier/internal/modules/marketdata"
	"github.com/aristath/frontier/internal/modules/optimization"
)

// AdjustInputsMessage is shown whenever the optimisation step fails.
const AdjustInputsMessage = "Please adjust the input parameters"

// InputError is an optimisation failure the user can fix by changing the
// request. Reason keeps the underlying cause.
type InputError struct {
	Reason error
}

func (e *InputError) Error() string {
	return AdjustInputsMessage + ": " + e.Reason.Error()
}

func (e *InputError) Unwrap() error {
	return e.Reason
}

// IsInputError reports whether err should be shown as "adjust the inputs".
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// AssetReturn pairs an asset with an annual expected return.
type AssetReturn struct {
	Asset          string  `json:"asset"`
	ExpectedReturn float64 `json:"expected_return"`
}

// Report is the result of one optimisation run.
type Report struct {
	ID              string                      `json:"id"`
	Kind            Kind                        `json:"kind"`
	Label           string                      `json:"label"`
	Request         Request                     `json:"request"`
	Weights         optimization.Weights        `json:"weights"`
	Performance     optimization.Performance    `json:"performance"`
	ExpectedReturns []AssetReturn               `json:"expected_returns"`
	PriorReturns    []AssetReturn               `json:"prior_returns,omitempty"`
	Frontier        *optimization.FrontierCurve `json:"frontier,omitempty"`
	Cumulative      analytics.Series            `json:"cumulative"`
	Drawdowns       analytics.Series            `json:"drawdowns"`
	RollingVol      analytics.Series            `json:"rolling_volatility"`
	MaxDrawdown     float64                     `json:"max_drawdown"`
	Metrics         *analytics.Metrics          `json:"metrics,omitempty"`
	BenchmarkLabel  string                      `json:"benchmark_label"`
	Allocation      *allocation.Allocation      `json:"allocation,omitempty"`
	Shrinkage       float64                     `json:"shrinkage"`
	Warnings        []string                    `json:"warnings,omitempty"`
	CreatedAt       time.Time                   `json:"created_at"`
}

// RunSummary is one row of the run history.
type RunSummary struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

// Objective is the data shown before any optimisation: the data preview,
// the correlation matrix and the per-asset assumptions.
type Objective struct {
	Preview     *marketdata.Preview          `json:"preview"`
	Correlation *estimation.CorrelationTable `json:"correlation"`
	Assumptions []estimation.Assumption      `json:"assumptions"`
	Estimates   *estimation.Estimates        `json:"estimates"`
	Mandate     string                       `json:"mandate"`
}

func assetReturns(tickers []string, mu []float64) []AssetReturn {
	out := make([]AssetReturn, len(tickers))
	for i, t := range tickers {
		out[i] = AssetReturn{Asset: t, ExpectedReturn: mu[i]}
	}
	return out
}
