package estimation

import (
	"context"

	"github.com/aristath/frontier/internal/modules/marketdata"
	"github.com/rs/zerolog"
)

// Service computes estimates, going through the cache when one is set.
type Service struct {
	cache  *Cache
	method Method
	log    zerolog.Logger
}

// NewService creates a new estimation service. cache may be nil.
func NewService(cache *Cache, method Method, log zerolog.Logger) *Service {
	if method == "" {
		method = MethodLedoitWolf
	}
	return &Service{
		cache:  cache,
		method: method,
		log:    log.With().Str("service", "estimation").Logger(),
	}
}

// Estimate returns annualised expected returns and covariance for prices.
func (s *Service) Estimate(ctx context.Context, prices marketdata.PriceTable, frequency int) (*Estimates, error) {
	var key string
	if s.cache != nil {
		key = Key(prices, frequency, s.method)
		if est, ok := s.cache.Get(ctx, key); ok {
			s.log.Debug().Str("key", key[:8]).Msg("Using cached estimates")
			return est, nil
		}
	}

	est, err := Estimate(prices, frequency, s.method)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int("assets", len(est.Tickers)).
		Int("observations", est.Observations).
		Float64("shrinkage", est.Shrinkage).
		Msg("Estimated expected returns and covariance")

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, est); err != nil {
			s.log.Warn().Err(err).Msg("Failed to cache estimates")
		}
	}
	return est, nil
}
