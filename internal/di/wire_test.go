package di

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/frontier/internal/config"
	testingpkg "github.com/aristath/frontier/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:         t.TempDir(),
		Port:            8501,
		HTTPTimeout:     time.Second,
		CacheTTL:        time.Hour,
		RefreshSchedule: "0 0 6 * * *",
		Backup:          &config.BackupConfig{RetentionDays: 30, Schedule: "0 30 3 * * *"},
		Universe:        testingpkg.NewUniverse(),
	}
}

func TestInitializeDatabases(t *testing.T) {
	cfg := testConfig(t)

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	require.Len(t, container.Databases(), 4)
	for _, name := range []string{"market", "history", "config", "cache"} {
		assert.FileExists(t, filepath.Join(cfg.DataDir, name+".db"))
	}
}

func TestInitializeDatabases_InvalidPath(t *testing.T) {
	cfg := &config.Config{DataDir: "/dev/null/frontier"}

	_, err := InitializeDatabases(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	assert.NotNil(t, container.EventBus)
	assert.NotNil(t, container.MarketDataService)
	assert.NotNil(t, container.AnalysisService)
	assert.NotNil(t, container.SettingsService)
	assert.NotNil(t, container.BackupService)
	assert.False(t, container.BackupService.Enabled())

	schedules := map[string]string{}
	for _, job := range container.Scheduler.Jobs() {
		schedules[job.Name] = job.Schedule
	}
	assert.Equal(t, map[string]string{
		"backup_databases":      "",
		"check_core_databases":  integritySchedule,
		"check_disk_space":      diskSpaceSchedule,
		"check_wal_checkpoints": walCheckpointSchedule,
		"prune_runs":            pruneRunsSchedule,
		"purge_caches":          purgeCachesSchedule,
		"refresh_market_data":   "0 0 6 * * *",
	}, schedules)

	// Jobs that only touch the local databases run cleanly
	for _, name := range []string{"check_core_databases", "check_wal_checkpoints", "prune_runs", "purge_caches", "backup_databases"} {
		assert.NoError(t, container.Scheduler.RunNow(name), name)
	}
}

func TestWire_RefreshScheduleDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.RefreshSchedule = ""

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	for _, job := range container.Scheduler.Jobs() {
		if job.Name == "refresh_market_data" {
			assert.Empty(t, job.Schedule)
		}
	}
}

func TestWire_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.RefreshSchedule = "every morning"

	_, err := Wire(cfg, zerolog.Nop())
	assert.Error(t, err)
}
