package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/events"
	"github.com/aristath/frontier/internal/modules/allocation"
	"github.com/aristath/frontier/internal/modules/analytics"
	"github.com/aristath/frontier/internal/modules/estimation"
	"github.com/aristath/frontier/internal/modules/marketdata"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Weight cleaning applied before reporting and sizing.
const (
	CleanCutoff   = 1e-4
	CleanRounding = 5
)

// DataSource provides the current price dataset.
type DataSource interface {
	Dataset(ctx context.Context) (*marketdata.Dataset, error)
	Preview(ctx context.Context, n int) (*marketdata.Preview, error)
}

// Estimator turns prices into annualised expected returns and covariance.
type Estimator interface {
	Estimate(ctx context.Context, prices marketdata.PriceTable, frequency int) (*estimation.Estimates, error)
}

// Service runs optimisations and keeps their history.
type Service struct {
	data      DataSource
	estimator Estimator
	repo      *Repository
	bus       *events.Bus
	universe  *config.Universe
	log       zerolog.Logger
}

// NewService creates the analysis service. repo and bus may be nil.
func NewService(data DataSource, estimator Estimator, repo *Repository, bus *events.Bus, universe *config.Universe, log zerolog.Logger) *Service {
	return &Service{
		data:      data,
		estimator: estimator,
		repo:      repo,
		bus:       bus,
		universe:  universe,
		log:       log.With().Str("service", "analysis").Logger(),
	}
}

// Objective gathers the data preview, correlations and asset assumptions.
func (s *Service) Objective(ctx context.Context) (*Objective, error) {
	ds, err := s.data.Dataset(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	preview, err := s.data.Preview(ctx, marketdata.DefaultPreviewRows)
	if err != nil {
		return nil, fmt.Errorf("failed to build preview: %w", err)
	}
	corr, err := estimation.Correlations(ds.Factors)
	if err != nil {
		return nil, fmt.Errorf("failed to compute correlations: %w", err)
	}
	est, err := s.estimator.Estimate(ctx, ds.Factors, s.universe.Frequency)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate assumptions: %w", err)
	}

	return &Objective{
		Preview:     preview,
		Correlation: corr,
		Assumptions: est.Assumptions(),
		Estimates:   est,
		Mandate:     allocation.Format(s.mandate(), allocation.DefaultCurrency),
	}, nil
}

// RunMVO optimises on the historical expected returns.
func (s *Service) RunMVO(ctx context.Context, req Request) (*Report, error) {
	return s.run(ctx, KindMVO, req)
}

// RunBlackLitterman blends the views into the historical returns before
// optimising. Without views the result equals RunMVO's.
func (s *Service) RunBlackLitterman(ctx context.Context, req Request) (*Report, error) {
	return s.run(ctx, KindBlackLitterman, req)
}

func (s *Service) run(ctx context.Context, kind Kind, req Request) (*Report, error) {
	start := time.Now()

	report, err := s.build(ctx, kind, req)
	if err != nil {
		if s.bus != nil {
			s.bus.Emit(events.RunFailed, "analysis", map[string]interface{}{
				"kind":        string(kind),
				"error":       err.Error(),
				"input_error": IsInputError(err),
			})
		}
		return nil, err
	}

	if s.repo != nil {
		if err := s.repo.Save(ctx, report); err != nil {
			s.log.Warn().Err(err).Str("run_id", report.ID).Msg("Failed to store run")
		}
	}

	s.log.Info().
		Str("run_id", report.ID).
		Str("kind", string(kind)).
		Str("label", report.Label).
		Float64("expected_return", report.Performance.ExpectedReturn).
		Float64("volatility", report.Performance.Volatility).
		Dur("duration", time.Since(start)).
		Msg("Optimisation run completed")

	if s.bus != nil {
		s.bus.Emit(events.RunCompleted, "analysis", map[string]interface{}{
			"run_id": report.ID,
			"kind":   string(kind),
			"label":  report.Label,
		})
	}
	return report, nil
}

func (s *Service) build(ctx context.Context, kind Kind, req Request) (*Report, error) {
	if err := req.Validate(); err != nil {
		return nil, &InputError{Reason: err}
	}
	if kind == KindMVO {
		req.Views = nil
	}

	ds, err := s.data.Dataset(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	freq := s.universe.Frequency
	est, err := s.estimator.Estimate(ctx, ds.Factors, freq)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate inputs: %w", err)
	}
	cov, err := est.CovarianceMatrix()
	if err != nil {
		return nil, fmt.Errorf("failed to estimate inputs: %w", err)
	}

	report := &Report{
		ID:             uuid.New().String(),
		Kind:           kind,
		Label:          req.Method.Label(req.TargetReturn),
		Request:        req,
		BenchmarkLabel: ds.BenchmarkLabel,
		Shrinkage:      est.Shrinkage,
		CreatedAt:      time.Now().UTC(),
	}

	mu := est.ExpectedReturns
	if kind == KindBlackLitterman {
		bl, err := optimization.NewBlackLitterman(est.Tickers, cov, est.ExpectedReturns, req.Tau, req.Views)
		if err != nil {
			return nil, &InputError{Reason: err}
		}
		if mu, err = bl.PosteriorReturns(); err != nil {
			return nil, &InputError{Reason: err}
		}
		report.PriorReturns = assetReturns(est.Tickers, est.ExpectedReturns)
	}
	report.ExpectedReturns = assetReturns(est.Tickers, mu)

	ef, err := optimization.New(est.Tickers, mu, cov, req.LowerBound, req.UpperBound)
	if err != nil {
		return nil, &InputError{Reason: err}
	}
	if _, err := ef.Optimize(req.Method, req.RiskFreeRate, req.TargetReturn); err != nil {
		return nil, &InputError{Reason: err}
	}
	if report.Weights, err = ef.CleanWeights(CleanCutoff, CleanRounding); err != nil {
		return nil, &InputError{Reason: err}
	}
	if report.Performance, err = ef.Performance(req.RiskFreeRate); err != nil {
		return nil, &InputError{Reason: err}
	}

	if report.Frontier, err = ef.Frontier(optimization.DefaultFrontierPoints); err != nil {
		s.log.Warn().Err(err).Msg("Failed to trace efficient frontier")
		report.Warnings = append(report.Warnings, "efficient frontier unavailable: "+err.Error())
		report.Frontier = nil
	}

	if err := s.realised(ds, report, req.RiskFreeRate, freq); err != nil {
		return nil, err
	}

	if report.Allocation, err = allocation.Allocate(report.Weights, s.mandate(), allocation.DefaultCurrency); err != nil {
		return nil, fmt.Errorf("failed to size allocation: %w", err)
	}
	return report, nil
}

// realised fills the historical performance of the cleaned weights.
func (s *Service) realised(ds *marketdata.Dataset, report *Report, riskFreeRate float64, freq int) error {
	returns, err := estimation.Returns(ds.Factors)
	if err != nil {
		return fmt.Errorf("failed to compute factor returns: %w", err)
	}
	portfolio, err := analytics.PortfolioReturns(returns, report.Weights.Values())
	if err != nil {
		return fmt.Errorf("failed to compute portfolio returns: %w", err)
	}

	report.Cumulative = analytics.Cumulative(portfolio)
	report.Drawdowns, report.MaxDrawdown = analytics.Drawdowns(portfolio)
	report.RollingVol = analytics.RollingVolatility(portfolio, freq, freq)

	benchReturns, err := estimation.Returns(ds.Benchmark)
	if err != nil {
		return fmt.Errorf("failed to compute benchmark returns: %w", err)
	}
	benchmark, err := analytics.BenchmarkReturns(benchReturns)
	if err != nil {
		return err
	}

	metrics, err := analytics.Compute(portfolio, benchmark, riskFreeRate, freq)
	if err != nil {
		s.log.Warn().Err(err).Msg("Benchmark metrics unavailable")
		report.Warnings = append(report.Warnings, "benchmark metrics unavailable: "+err.Error())
		return nil
	}
	report.Metrics = metrics
	return nil
}

func (s *Service) mandate() decimal.Decimal {
	if s.universe.MandateUSD > 0 {
		return decimal.NewFromFloat(s.universe.MandateUSD)
	}
	return allocation.DefaultMandate
}

// Runs lists recent runs.
func (s *Service) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	if s.repo == nil {
		return []RunSummary{}, nil
	}
	return s.repo.List(ctx, limit)
}

// Run loads a stored report.
func (s *Service) Run(ctx context.Context, id string) (*Report, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return s.repo.Get(ctx, id)
}
