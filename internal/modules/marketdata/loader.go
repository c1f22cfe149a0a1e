package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/frontier/internal/config"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// TableFetcher loads one price source.
type TableFetcher interface {
	Fetch(ctx context.Context, source string) (PriceTable, error)
}

// Loader fetches the factor and benchmark sources of a universe.
type Loader struct {
	fetcher  TableFetcher
	universe *config.Universe
	log      zerolog.Logger
}

// NewLoader creates a new loader
func NewLoader(fetcher TableFetcher, universe *config.Universe, log zerolog.Logger) *Loader {
	return &Loader{
		fetcher:  fetcher,
		universe: universe,
		log:      log.With().Str("component", "price_loader").Logger(),
	}
}

// Load fetches both sources concurrently. Either failing fails the load.
func (l *Loader) Load(ctx context.Context) (*Dataset, error) {
	var factors, benchmark PriceTable

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := l.loadSource(gctx, l.universe.Factors)
		if err != nil {
			return err
		}
		factors = t
		return nil
	})
	g.Go(func() error {
		t, err := l.loadSource(gctx, l.universe.Benchmark)
		if err != nil {
			return err
		}
		benchmark = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l.log.Info().
		Int("factor_rows", factors.Len()).
		Strs("factors", factors.Columns).
		Int("benchmark_rows", benchmark.Len()).
		Msg("Loaded market data")

	return &Dataset{
		Factors:        factors,
		Benchmark:      benchmark,
		BenchmarkLabel: l.universe.Benchmark.Label,
		RefreshedAt:    time.Now().UTC(),
	}, nil
}

func (l *Loader) loadSource(ctx context.Context, src config.Source) (PriceTable, error) {
	table, err := l.fetcher.Fetch(ctx, src.Source)
	if err != nil {
		return PriceTable{}, fmt.Errorf("failed to load %s: %w", src.Name, err)
	}
	selected, err := table.Select(src.Selected())
	if err != nil {
		return PriceTable{}, fmt.Errorf("failed to select %s columns: %w", src.Name, err)
	}
	return selected, nil
}
