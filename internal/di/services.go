package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/events"
	"github.com/aristath/frontier/internal/modules/analysis"
	"github.com/aristath/frontier/internal/modules/estimation"
	"github.com/aristath/frontier/internal/modules/marketdata"
	"github.com/aristath/frontier/internal/modules/settings"
	"github.com/aristath/frontier/internal/reliability"
	"github.com/rs/zerolog"
)

// InitializeServices builds the repositories and services on top of the
// open databases.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.EventBus = events.NewBus(log)

	// Repositories
	container.MarketDataRepo = marketdata.NewRepository(container.MarketDB.Conn(), log)
	container.RunRepo = analysis.NewRepository(container.HistoryDB.Conn(), log)
	container.SettingsRepo = settings.NewRepository(container.ConfigDB.Conn(), log)
	container.EstimateCache = estimation.NewCache(container.CacheDB.Conn(), cfg.CacheTTL, log)

	// Market data
	container.Fetcher = marketdata.NewFetcher(cfg.DownloadCacheDir(), cfg.HTTPTimeout, log)
	loader := marketdata.NewLoader(container.Fetcher, cfg.Universe, log)
	container.MarketDataService = marketdata.NewService(
		loader,
		container.MarketDataRepo,
		container.EventBus,
		cfg.Universe,
		log,
	)

	// Estimation and optimisation
	container.EstimationService = estimation.NewService(
		container.EstimateCache,
		estimation.Method(cfg.Covariance),
		log,
	)
	container.AnalysisService = analysis.NewService(
		container.MarketDataService,
		container.EstimationService,
		container.RunRepo,
		container.EventBus,
		cfg.Universe,
		log,
	)

	container.SettingsService = settings.NewService(container.SettingsRepo, log)

	// Backups: a broken bucket configuration disables uploads instead of
	// keeping the server from starting.
	var store reliability.ObjectStore
	if cfg.Backup != nil && cfg.Backup.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		s3Store, err := reliability.NewS3Store(ctx, cfg.Backup, log)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize backup storage - backups disabled")
		} else {
			store = s3Store
			log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Backup storage initialized")
		}
	}
	prefix := ""
	if cfg.Backup != nil {
		prefix = cfg.Backup.Prefix
	}
	container.BackupService = reliability.NewBackupService(
		container.Databases(),
		store,
		prefix,
		cfg.DataDir,
		container.EventBus,
		log,
	)

	log.Info().Msg("Services initialized")
	return nil
}
