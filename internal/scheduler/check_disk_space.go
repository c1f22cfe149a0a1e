package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// Free space thresholds in bytes.
const (
	diskCritical = 500 * 1000 * 1000
	diskLow      = 5 * 1000 * 1000 * 1000
)

// CheckDiskSpaceJob watches free space on the data directory's filesystem.
// Below the critical threshold it fails so the scheduler logs an error.
type CheckDiskSpaceJob struct {
	JobBase
	path  string
	usage func(path string) (*disk.UsageStat, error)
}

// NewCheckDiskSpaceJob creates a job for the filesystem holding path.
func NewCheckDiskSpaceJob(path string) *CheckDiskSpaceJob {
	return &CheckDiskSpaceJob{
		JobBase: JobBase{log: zerolog.Nop()},
		path:    path,
		usage:   disk.Usage,
	}
}

// Name returns the job name
func (j *CheckDiskSpaceJob) Name() string {
	return "check_disk_space"
}

// Run executes the disk space check
func (j *CheckDiskSpaceJob) Run() error {
	stat, err := j.usage(j.path)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(stat.Free) / 1e9
	switch {
	case stat.Free < diskCritical:
		j.log.Error().
			Float64("available_gb", availableGB).
			Msg("Insufficient disk space")
		return fmt.Errorf("only %.2f GB free on %s", availableGB, j.path)
	case stat.Free < diskLow:
		j.log.Warn().
			Float64("available_gb", availableGB).
			Float64("used_percent", stat.UsedPercent).
			Msg("Disk space running low")
	default:
		j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")
	}
	return nil
}
