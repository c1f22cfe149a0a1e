package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PurgeCachesJob drops expired estimation results and stale downloads.
type PurgeCachesJob struct {
	JobBase
	estimates EstimateCache
	downloads DownloadCache
	maxAge    time.Duration
}

// NewPurgeCachesJob creates a new PurgeCachesJob. Either cache may be nil.
func NewPurgeCachesJob(estimates EstimateCache, downloads DownloadCache, maxAge time.Duration) *PurgeCachesJob {
	return &PurgeCachesJob{
		JobBase:   JobBase{log: zerolog.Nop()},
		estimates: estimates,
		downloads: downloads,
		maxAge:    maxAge,
	}
}

// Name returns the job name
func (j *PurgeCachesJob) Name() string {
	return "purge_caches"
}

// Run purges both caches and reports every failure.
func (j *PurgeCachesJob) Run() error {
	ctx, cancel := j.runContext()
	defer cancel()

	var errs []error
	if j.estimates != nil {
		purged, err := j.estimates.Purge(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to purge estimate cache: %w", err))
		} else {
			j.log.Debug().Int64("purged", purged).Msg("Estimate cache purged")
		}
	}
	if j.downloads != nil {
		removed, err := j.downloads.PruneCache(j.maxAge)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to prune download cache: %w", err))
		} else {
			j.log.Debug().Int("removed", removed).Msg("Download cache pruned")
		}
	}
	return errors.Join(errs...)
}

// PruneRunsJob trims the run history to the configured size.
type PruneRunsJob struct {
	JobBase
	runs RunPruner
	keep func() int
}

// NewPruneRunsJob creates a new PruneRunsJob. keep is read on every run so
// setting changes apply without a restart.
func NewPruneRunsJob(runs RunPruner, keep func() int) *PruneRunsJob {
	return &PruneRunsJob{
		JobBase: JobBase{log: zerolog.Nop()},
		runs:    runs,
		keep:    keep,
	}
}

// Name returns the job name
func (j *PruneRunsJob) Name() string {
	return "prune_runs"
}

// Run deletes the runs beyond the newest keep.
func (j *PruneRunsJob) Run() error {
	ctx, cancel := j.runContext()
	defer cancel()

	keep := j.keep()
	deleted, err := j.runs.Prune(ctx, keep)
	if err != nil {
		return fmt.Errorf("failed to prune runs: %w", err)
	}
	j.log.Info().Int("keep", keep).Int64("deleted", deleted).Msg("Run history pruned")
	return nil
}
