package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"
)

// BackupJob uploads a database backup and rotates old archives.
type BackupJob struct {
	JobBase
	backups       BackupCreator
	retentionDays int
}

// NewBackupJob creates a new BackupJob
func NewBackupJob(backups BackupCreator, retentionDays int) *BackupJob {
	return &BackupJob{
		JobBase:       JobBase{log: zerolog.Nop()},
		backups:       backups,
		retentionDays: retentionDays,
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup_databases"
}

// Run executes the backup. A failed rotation is logged, not returned.
func (j *BackupJob) Run() error {
	if !j.backups.Enabled() {
		j.log.Debug().Msg("Backup storage not configured, skipping")
		return nil
	}

	ctx, cancel := j.runContext()
	defer cancel()

	info, err := j.backups.CreateAndUploadBackup(ctx)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	j.log.Info().Str("key", info.Key).Msg("Backup uploaded")

	deleted, err := j.backups.RotateOldBackups(ctx, j.retentionDays)
	if err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
		return nil
	}
	if deleted > 0 {
		j.log.Info().Int("deleted", deleted).Msg("Old backups rotated")
	}
	return nil
}
