package di

import (
	"errors"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/events"
	"github.com/aristath/frontier/internal/modules/analysis"
	"github.com/aristath/frontier/internal/modules/estimation"
	"github.com/aristath/frontier/internal/modules/marketdata"
	"github.com/aristath/frontier/internal/modules/settings"
	"github.com/aristath/frontier/internal/reliability"
	"github.com/aristath/frontier/internal/scheduler"
)

// Container holds all application dependencies
type Container struct {
	// Databases
	MarketDB  *database.DB // downloaded price tables and refresh log
	HistoryDB *database.DB // optimisation runs
	ConfigDB  *database.DB // user settings
	CacheDB   *database.DB // estimation results

	// Repositories
	MarketDataRepo *marketdata.Repository
	RunRepo        *analysis.Repository
	SettingsRepo   *settings.Repository
	EstimateCache  *estimation.Cache

	// Services
	EventBus          *events.Bus
	Fetcher           *marketdata.Fetcher
	MarketDataService *marketdata.Service
	EstimationService *estimation.Service
	AnalysisService   *analysis.Service
	SettingsService   *settings.Service
	BackupService     *reliability.BackupService

	Scheduler *scheduler.Scheduler
}

// Databases returns the open databases in a fixed order.
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.MarketDB, c.HistoryDB, c.ConfigDB, c.CacheDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close closes every database. Stop the scheduler first.
func (c *Container) Close() error {
	var errs []error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
