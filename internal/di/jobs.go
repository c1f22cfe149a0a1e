package di

import (
	"fmt"
	"time"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/scheduler"
	"github.com/rs/zerolog"
)

// Maintenance schedules (cron with seconds).
const (
	purgeCachesSchedule   = "0 0 4 * * *"
	pruneRunsSchedule     = "0 15 4 * * *"
	integritySchedule     = "0 0 2 * * *"
	walCheckpointSchedule = "0 0 * * * *"
	diskSpaceSchedule     = "0 */30 * * * *"
	downloadCacheMaxAge   = 48 * time.Hour
	refreshJobTimeout     = 5 * time.Minute
	backupJobTimeout      = 30 * time.Minute
)

type loggedJob interface {
	scheduler.Job
	SetLogger(log zerolog.Logger)
}

// RegisterJobs creates the background jobs and adds them to the scheduler.
// Jobs without a schedule stay available for manual triggering.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	s := scheduler.New(log)
	container.Scheduler = s

	add := func(schedule string, job loggedJob) error {
		job.SetLogger(log.With().Str("job", job.Name()).Logger())
		if schedule == "" {
			return s.Register(job)
		}
		return s.AddJob(schedule, job)
	}

	refresh := scheduler.NewRefreshMarketDataJob(container.MarketDataService)
	refresh.SetTimeout(refreshJobTimeout)
	if err := add(cfg.RefreshSchedule, refresh); err != nil {
		return fmt.Errorf("failed to register %s: %w", refresh.Name(), err)
	}

	backupSchedule := ""
	retention := 0
	if cfg.Backup != nil {
		retention = cfg.Backup.RetentionDays
		if cfg.Backup.Enabled && container.BackupService.Enabled() {
			backupSchedule = cfg.Backup.Schedule
		}
	}
	backup := scheduler.NewBackupJob(container.BackupService, retention)
	backup.SetTimeout(backupJobTimeout)
	if err := add(backupSchedule, backup); err != nil {
		return fmt.Errorf("failed to register %s: %w", backup.Name(), err)
	}

	jobs := []struct {
		schedule string
		job      loggedJob
	}{
		{purgeCachesSchedule, scheduler.NewPurgeCachesJob(container.EstimateCache, container.Fetcher, downloadCacheMaxAge)},
		{pruneRunsSchedule, scheduler.NewPruneRunsJob(container.RunRepo, container.SettingsService.RunHistoryKeep)},
		{integritySchedule, scheduler.NewCheckCoreDatabasesJob(container.Databases()...)},
		{walCheckpointSchedule, scheduler.NewCheckWALCheckpointsJob(container.Databases()...)},
		{diskSpaceSchedule, scheduler.NewCheckDiskSpaceJob(cfg.DataDir)},
	}
	for _, j := range jobs {
		if err := add(j.schedule, j.job); err != nil {
			return fmt.Errorf("failed to register %s: %w", j.job.Name(), err)
		}
	}

	log.Info().Int("jobs", len(s.Jobs())).Msg("Jobs registered")
	return nil
}
