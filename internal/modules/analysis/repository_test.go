package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/modules/optimization"
	testingpkg "github.com/aristath/frontier/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, database.NameHistory)
	t.Cleanup(cleanup)
	return NewRepository(db.Conn(), zerolog.Nop())
}

func storedReport(id string, at time.Time) *Report {
	return &Report{
		ID:      id,
		Kind:    KindMVO,
		Label:   "Max Sharpe",
		Request: DefaultRequest(),
		Weights: optimization.Weights{
			{Asset: "A", Weight: 0.4},
			{Asset: "B", Weight: 0.6},
		},
		CreatedAt: at,
	}
}

func TestRepository_SaveGetList(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, storedReport("run-1", base)))
	require.NoError(t, repo.Save(ctx, storedReport("run-2", base.Add(time.Hour))))

	got, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "Max Sharpe", got.Label)
	assert.Equal(t, 0.6, got.Weights[1].Weight)
	assert.Equal(t, 0.08, got.Request.TargetReturn)

	runs, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, base.Add(time.Hour), runs[0].CreatedAt)

	runs, err = repo.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRepository_Errors(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	assert.Error(t, repo.Save(ctx, storedReport("", time.Now())))

	require.NoError(t, repo.Save(ctx, storedReport("dup", time.Now())))
	assert.Error(t, repo.Save(ctx, storedReport("dup", time.Now())))
}

func TestRepository_Prune(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, repo.Save(ctx, storedReport(id, base.Add(time.Duration(i)*time.Hour))))
	}

	deleted, err := repo.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	runs, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "d", runs[0].ID)
	assert.Equal(t, "c", runs[1].ID)
}
