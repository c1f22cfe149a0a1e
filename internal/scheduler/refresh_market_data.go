package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"
)

// RefreshMarketDataJob downloads the configured price sources and stores them.
type RefreshMarketDataJob struct {
	JobBase
	refresher MarketDataRefresher
}

// NewRefreshMarketDataJob creates a new RefreshMarketDataJob
func NewRefreshMarketDataJob(refresher MarketDataRefresher) *RefreshMarketDataJob {
	return &RefreshMarketDataJob{
		JobBase:   JobBase{log: zerolog.Nop()},
		refresher: refresher,
	}
}

// Name returns the job name
func (j *RefreshMarketDataJob) Name() string {
	return "refresh_market_data"
}

// Run executes the refresh
func (j *RefreshMarketDataJob) Run() error {
	ctx, cancel := j.runContext()
	defer cancel()

	ds, err := j.refresher.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh market data: %w", err)
	}

	j.log.Info().
		Int("factor_rows", ds.Factors.Len()).
		Int("benchmark_rows", ds.Benchmark.Len()).
		Msg("Market data refreshed")
	return nil
}
