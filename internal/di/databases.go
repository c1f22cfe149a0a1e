package di

import (
	"fmt"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the four databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	specs := []struct {
		name    string
		profile database.DatabaseProfile
		target  **database.DB
	}{
		{database.NameMarket, database.ProfileStandard, &container.MarketDB},
		{database.NameHistory, database.ProfileLedger, &container.HistoryDB}, // runs are never rewritten
		{database.NameConfig, database.ProfileStandard, &container.ConfigDB},
		{database.NameCache, database.ProfileCache, &container.CacheDB},
	}

	for _, spec := range specs {
		db, err := database.Open(cfg.DataDir, spec.name, spec.profile)
		if err != nil {
			_ = container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", spec.name, err)
		}
		*spec.target = db
	}

	log.Info().Int("databases", len(specs)).Msg("All databases initialized and schemas applied")

	return container, nil
}
