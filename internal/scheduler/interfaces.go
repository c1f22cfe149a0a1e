package scheduler

import (
	"context"
	"time"

	"github.com/aristath/frontier/internal/modules/marketdata"
	"github.com/aristath/frontier/internal/reliability"
)

// MarketDataRefresher downloads and stores fresh price tables.
type MarketDataRefresher interface {
	Refresh(ctx context.Context) (*marketdata.Dataset, error)
}

// BackupCreator uploads database backups and prunes old ones.
type BackupCreator interface {
	Enabled() bool
	CreateAndUploadBackup(ctx context.Context) (*reliability.BackupInfo, error)
	RotateOldBackups(ctx context.Context, retentionDays int) (int, error)
}

// EstimateCache drops expired estimation results.
type EstimateCache interface {
	Purge(ctx context.Context) (int64, error)
}

// DownloadCache drops downloaded price files older than maxAge.
type DownloadCache interface {
	PruneCache(maxAge time.Duration) (int, error)
}

// RunPruner keeps the newest runs and deletes the rest.
type RunPruner interface {
	Prune(ctx context.Context, keep int) (int64, error)
}
