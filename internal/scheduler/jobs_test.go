package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/modules/marketdata"
	"github.com/aristath/frontier/internal/reliability"
	testingpkg "github.com/aristath/frontier/internal/testing"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobNames(t *testing.T) {
	jobs := map[string]Job{
		"check_core_databases":  NewCheckCoreDatabasesJob(),
		"check_wal_checkpoints": NewCheckWALCheckpointsJob(),
		"check_disk_space":      NewCheckDiskSpaceJob("."),
		"refresh_market_data":   NewRefreshMarketDataJob(nil),
		"backup_databases":      NewBackupJob(nil, 30),
		"purge_caches":          NewPurgeCachesJob(nil, nil, time.Hour),
		"prune_runs":            NewPruneRunsJob(nil, nil),
	}
	for name, job := range jobs {
		assert.Equal(t, name, job.Name())
	}
}

func TestDatabaseChecks(t *testing.T) {
	history, cleanupHistory := testingpkg.NewTestDB(t, database.NameHistory)
	defer cleanupHistory()
	config, cleanupConfig := testingpkg.NewTestDB(t, database.NameConfig)
	defer cleanupConfig()

	t.Run("integrity", func(t *testing.T) {
		assert.NoError(t, NewCheckCoreDatabasesJob(history, config).Run())
	})
	t.Run("integrity skips nil databases", func(t *testing.T) {
		assert.NoError(t, NewCheckCoreDatabasesJob(nil, config).Run())
	})
	t.Run("wal checkpoints", func(t *testing.T) {
		assert.NoError(t, NewCheckWALCheckpointsJob(history, nil, config).Run())
	})
	t.Run("integrity fails on a closed database", func(t *testing.T) {
		closed, cleanup := testingpkg.NewTestDB(t, database.NameCache)
		cleanup()
		err := NewCheckCoreDatabasesJob(history, closed).Run()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cache")
	})
}

func TestCheckDiskSpaceJob(t *testing.T) {
	tests := []struct {
		name    string
		free    uint64
		statErr error
		wantErr bool
	}{
		{name: "plenty", free: 50e9},
		{name: "low but not critical", free: 2e9},
		{name: "critical", free: 100e6, wantErr: true},
		{name: "stat failure", statErr: errors.New("no such device"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewCheckDiskSpaceJob("/data")
			job.usage = func(path string) (*disk.UsageStat, error) {
				assert.Equal(t, "/data", path)
				if tt.statErr != nil {
					return nil, tt.statErr
				}
				return &disk.UsageStat{Path: path, Free: tt.free, Total: 100e9}, nil
			}
			err := job.Run()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type fakeRefresher struct {
	err   error
	calls int
}

func (f *fakeRefresher) Refresh(ctx context.Context) (*marketdata.Dataset, error) {
	f.calls++
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("expected a deadline")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &marketdata.Dataset{BenchmarkLabel: "MSCI USA"}, nil
}

func TestRefreshMarketDataJob(t *testing.T) {
	ok := &fakeRefresher{}
	require.NoError(t, NewRefreshMarketDataJob(ok).Run())
	assert.Equal(t, 1, ok.calls)

	failing := &fakeRefresher{err: errors.New("download failed")}
	err := NewRefreshMarketDataJob(failing).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download failed")
}

type fakeBackups struct {
	enabled   bool
	createErr error
	rotateErr error
	created   int
	rotated   []int
}

func (f *fakeBackups) Enabled() bool { return f.enabled }

func (f *fakeBackups) CreateAndUploadBackup(context.Context) (*reliability.BackupInfo, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &reliability.BackupInfo{Key: "frontier-backup-2026-10-16-033000.tar.gz"}, nil
}

func (f *fakeBackups) RotateOldBackups(_ context.Context, days int) (int, error) {
	f.rotated = append(f.rotated, days)
	return 2, f.rotateErr
}

func TestBackupJob(t *testing.T) {
	tests := []struct {
		name        string
		backups     *fakeBackups
		wantErr     bool
		wantCreated int
		wantRotated []int
	}{
		{name: "disabled is a no-op", backups: &fakeBackups{}},
		{
			name:        "uploads then rotates",
			backups:     &fakeBackups{enabled: true},
			wantCreated: 1,
			wantRotated: []int{14},
		},
		{
			name:    "upload failure skips rotation",
			backups: &fakeBackups{enabled: true, createErr: errors.New("denied")},
			wantErr: true,
		},
		{
			name:        "rotation failure is not fatal",
			backups:     &fakeBackups{enabled: true, rotateErr: errors.New("list failed")},
			wantCreated: 1,
			wantRotated: []int{14},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewBackupJob(tt.backups, 14).Run()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCreated, tt.backups.created)
			assert.Equal(t, tt.wantRotated, tt.backups.rotated)
		})
	}
}

type fakeEstimateCache struct{ err error }

func (f fakeEstimateCache) Purge(context.Context) (int64, error) { return 3, f.err }

type fakeDownloadCache struct {
	err    error
	maxAge time.Duration
}

func (f *fakeDownloadCache) PruneCache(maxAge time.Duration) (int, error) {
	f.maxAge = maxAge
	return 1, f.err
}

func TestPurgeCachesJob(t *testing.T) {
	downloads := &fakeDownloadCache{}
	require.NoError(t, NewPurgeCachesJob(fakeEstimateCache{}, downloads, 48*time.Hour).Run())
	assert.Equal(t, 48*time.Hour, downloads.maxAge)

	require.NoError(t, NewPurgeCachesJob(nil, nil, time.Hour).Run())

	err := NewPurgeCachesJob(
		fakeEstimateCache{err: errors.New("locked")},
		&fakeDownloadCache{err: errors.New("read-only")},
		time.Hour,
	).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
	assert.Contains(t, err.Error(), "read-only")
}

type fakePruner struct {
	keeps []int
	err   error
}

func (f *fakePruner) Prune(_ context.Context, keep int) (int64, error) {
	f.keeps = append(f.keeps, keep)
	return 0, f.err
}

func TestPruneRunsJob(t *testing.T) {
	pruner := &fakePruner{}
	keep := 200
	job := NewPruneRunsJob(pruner, func() int { return keep })

	require.NoError(t, job.Run())
	keep = 50
	require.NoError(t, job.Run())
	assert.Equal(t, []int{200, 50}, pruner.keeps)

	pruner.err = errors.New("disk I/O error")
	assert.Error(t, job.Run())
}
