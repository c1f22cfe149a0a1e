package marketdata

import (
	"context"
	"fmt"
	"sync"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/events"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultPreviewRows matches the head shown on the objective page.
const DefaultPreviewRows = 5

// Service keeps the current dataset, backed by the market database.
type Service struct {
	loader   *Loader
	repo     *Repository
	bus      *events.Bus
	universe *config.Universe
	log      zerolog.Logger

	mu      sync.RWMutex
	current *Dataset
	refresh sync.Mutex // serialises refreshes
	loading singleflight.Group
}

// NewService creates a new market data service
func NewService(loader *Loader, repo *Repository, bus *events.Bus, universe *config.Universe, log zerolog.Logger) *Service {
	return &Service{
		loader:   loader,
		repo:     repo,
		bus:      bus,
		universe: universe,
		log:      log.With().Str("service", "marketdata").Logger(),
	}
}

// Refresh downloads both sources, stores them and swaps the in-memory dataset.
func (s *Service) Refresh(ctx context.Context) (*Dataset, error) {
	s.refresh.Lock()
	defer s.refresh.Unlock()

	ds, err := s.loader.Load(ctx)
	if err != nil {
		if s.bus != nil {
			s.bus.EmitError("marketdata", err, map[string]interface{}{"operation": "refresh"})
		}
		return nil, err
	}

	err = s.repo.SaveAll(ctx, ds.RefreshedAt,
		SeriesWrite{Series: s.universe.Factors.Name, Source: s.universe.Factors.Source, Table: ds.Factors},
		SeriesWrite{Series: s.universe.Benchmark.Name, Source: s.universe.Benchmark.Source, Table: ds.Benchmark},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store prices: %w", err)
	}

	s.mu.Lock()
	s.current = ds
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Emit(events.DataRefreshed, "marketdata", map[string]interface{}{
			"factor_rows":    ds.Factors.Len(),
			"benchmark_rows": ds.Benchmark.Len(),
			"factors":        ds.Factors.Columns,
		})
	}

	return ds, nil
}

// Dataset returns the current dataset, reading the database and then the
// network the first time it is needed. Concurrent first calls share one load.
func (s *Service) Dataset(ctx context.Context) (*Dataset, error) {
	if ds := s.cached(); ds != nil {
		return ds, nil
	}

	v, err, _ := s.loading.Do("dataset", func() (interface{}, error) {
		return s.loadOrDownload(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Dataset), nil
}

func (s *Service) cached() *Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Service) loadOrDownload(ctx context.Context) (*Dataset, error) {
	if ds := s.cached(); ds != nil {
		return ds, nil
	}

	stored, err := s.loadStored(ctx)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		s.mu.Lock()
		s.current = stored
		s.mu.Unlock()
		return stored, nil
	}

	s.log.Info().Msg("No stored prices, downloading")
	return s.Refresh(ctx)
}

func (s *Service) loadStored(ctx context.Context) (*Dataset, error) {
	factors, ok, err := s.repo.Load(ctx, s.universe.Factors.Name)
	if err != nil || !ok {
		return nil, err
	}
	benchmark, ok, err := s.repo.Load(ctx, s.universe.Benchmark.Name)
	if err != nil || !ok {
		return nil, err
	}
	if factors.Validate() != nil || benchmark.Validate() != nil {
		s.log.Warn().Msg("Stored prices are unusable, ignoring them")
		return nil, nil
	}

	ds := &Dataset{
		Factors:        factors,
		Benchmark:      benchmark,
		BenchmarkLabel: s.universe.Benchmark.Label,
	}
	if info, err := s.repo.LastRefresh(ctx, s.universe.Factors.Name); err == nil && info != nil {
		ds.RefreshedAt = info.RefreshedAt
	}
	return ds, nil
}

// Preview returns the first n rows of both tables.
func (s *Service) Preview(ctx context.Context, n int) (*Preview, error) {
	ds, err := s.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	return NewPreview(ds, n), nil
}

// Status reports the last refresh of each series.
func (s *Service) Status(ctx context.Context) ([]RefreshInfo, error) {
	var out []RefreshInfo
	for _, series := range []string{s.universe.Factors.Name, s.universe.Benchmark.Name} {
		info, err := s.repo.LastRefresh(ctx, series)
		if err != nil {
			return nil, err
		}
		if info != nil {
			out = append(out, *info)
		}
	}
	return out, nil
}
