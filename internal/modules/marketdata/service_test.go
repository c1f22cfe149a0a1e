package marketdata

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher serves fixed CSV bodies keyed by source.
type stubFetcher struct {
	bodies map[string]string
	calls  int32
	fail   error
}

func (f *stubFetcher) Fetch(ctx context.Context, source string) (PriceTable, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.fail != nil {
		return PriceTable{}, f.fail
	}
	body, ok := f.bodies[source]
	if !ok {
		return PriceTable{}, errors.New("unknown source " + source)
	}
	return ParseCSV(strings.NewReader(body))
}

func testUniverse() *config.Universe {
	u, err := config.ParseUniverse([]byte(`
factors:
  name: msci_us_factors
  source: factors.csv
  columns: [USA LARGE VALUE, USA QUALITY]
benchmark:
  name: msci_usa
  label: MSCI USA
  source: bench.csv
  column: USA Standard (Large+Mid Cap)
`))
	if err != nil {
		panic(err)
	}
	return u
}

func newTestService(t *testing.T, fetcher TableFetcher) (*Service, *Repository, *events.Bus) {
	t.Helper()
	db, err := database.Open(t.TempDir(), database.NameMarket, database.ProfileStandard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	universe := testUniverse()
	repo := NewRepository(db.Conn(), zerolog.Nop())
	bus := events.NewBus(zerolog.Nop())
	loader := NewLoader(fetcher, universe, zerolog.Nop())
	return NewService(loader, repo, bus, universe, zerolog.Nop()), repo, bus
}

func TestLoader_SelectsColumns(t *testing.T) {
	fetcher := &stubFetcher{bodies: map[string]string{"factors.csv": factorCSV, "bench.csv": benchmarkCSV}}
	loader := NewLoader(fetcher, testUniverse(), zerolog.Nop())

	ds, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"USA LARGE VALUE", "USA QUALITY"}, ds.Factors.Columns)
	assert.Equal(t, []float64{1500, 3000}, ds.Factors.Values[0])
	assert.Equal(t, "MSCI USA", ds.BenchmarkLabel)
	assert.Equal(t, int32(2), fetcher.calls)
}

func TestLoader_EitherFailureFails(t *testing.T) {
	fetcher := &stubFetcher{bodies: map[string]string{"factors.csv": factorCSV}}
	_, err := NewLoader(fetcher, testUniverse(), zerolog.Nop()).Load(context.Background())
	assert.ErrorContains(t, err, "msci_usa")

	missingColumn := &stubFetcher{bodies: map[string]string{
		"factors.csv": "Date,Other\n2020-01-31,1\n2020-02-29,2\n2020-03-31,3\n",
		"bench.csv":   benchmarkCSV,
	}}
	_, err = NewLoader(missingColumn, testUniverse(), zerolog.Nop()).Load(context.Background())
	assert.ErrorContains(t, err, "USA LARGE VALUE")
}

func TestRepository_SaveLoadRoundTrip(t *testing.T) {
	_, repo, _ := newTestService(t, &stubFetcher{})
	ctx := context.Background()
	table := sampleTable()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, "factors", "f.csv", table, at))

	loaded, ok, err := repo.Load(ctx, "factors")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, table.Columns, loaded.Columns)
	assert.Equal(t, table.Values, loaded.Values)
	assert.Equal(t, table.Dates, loaded.Dates)

	info, err := repo.LastRefresh(ctx, "factors")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, 4, info.Rows)
	assert.Equal(t, 3, info.Columns)
	assert.True(t, at.Equal(info.RefreshedAt))

	// saving again replaces the series
	require.NoError(t, repo.Save(ctx, "factors", "f.csv", table.Head(3), at.Add(time.Hour)))
	loaded, _, err = repo.Load(ctx, "factors")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Len())

	_, ok, err = repo.Load(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	info, err = repo.LastRefresh(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestRepository_SaveAllIsAtomic(t *testing.T) {
	_, repo, _ := newTestService(t, &stubFetcher{})
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveAll(ctx, at,
		SeriesWrite{Series: "factors", Source: "f.csv", Table: sampleTable()},
		SeriesWrite{Series: "benchmark", Source: "b.csv", Table: sampleTable().Head(3)},
	))

	// a repeated date violates the primary key of the second series
	broken := sampleTable()
	broken.Dates[1] = broken.Dates[0]
	err := repo.SaveAll(ctx, at.Add(time.Hour),
		SeriesWrite{Series: "factors", Source: "f.csv", Table: sampleTable().Head(2)},
		SeriesWrite{Series: "benchmark", Source: "b.csv", Table: broken},
	)
	require.Error(t, err)

	tests := []struct {
		series string
		rows   int
	}{
		{series: "factors", rows: 4},
		{series: "benchmark", rows: 3},
	}
	for _, tt := range tests {
		t.Run(tt.series, func(t *testing.T) {
			loaded, ok, err := repo.Load(ctx, tt.series)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.rows, loaded.Len())

			info, err := repo.LastRefresh(ctx, tt.series)
			require.NoError(t, err)
			require.NotNil(t, info)
			assert.True(t, at.Equal(info.RefreshedAt))
		})
	}
}

func TestService_ConcurrentFirstDatasetDownloadsOnce(t *testing.T) {
	fetcher := &stubFetcher{bodies: map[string]string{"factors.csv": factorCSV, "bench.csv": benchmarkCSV}}
	svc, _, _ := newTestService(t, fetcher)
	ctx := context.Background()

	const callers = 8
	results := make([]*Dataset, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ds, err := svc.Dataset(ctx)
			assert.NoError(t, err)
			results[i] = ds
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&fetcher.calls))
	for _, ds := range results {
		assert.Same(t, results[0], ds)
	}
}

func TestService_DatasetDownloadsOnceThenServesStored(t *testing.T) {
	fetcher := &stubFetcher{bodies: map[string]string{"factors.csv": factorCSV, "bench.csv": benchmarkCSV}}
	svc, repo, bus := newTestService(t, fetcher)
	sub := bus.Subscribe(events.DataRefreshed)
	defer bus.Unsubscribe(sub)
	ctx := context.Background()

	ds, err := svc.Dataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, ds.Factors.Len())
	assert.Equal(t, int32(2), fetcher.calls)

	select {
	case ev := <-sub:
		assert.Equal(t, events.DataRefreshed, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a DataRefreshed event")
	}

	// a fresh service over the same database reads the stored prices
	loader := NewLoader(fetcher, testUniverse(), zerolog.Nop())
	second := NewService(loader, repo, nil, testUniverse(), zerolog.Nop())
	stored, err := second.Dataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, ds.Factors.Values, stored.Factors.Values)
	assert.Equal(t, int32(2), fetcher.calls)
	assert.False(t, stored.RefreshedAt.IsZero())
}

func TestService_RefreshFailureKeepsPreviousDataset(t *testing.T) {
	fetcher := &stubFetcher{bodies: map[string]string{"factors.csv": factorCSV, "bench.csv": benchmarkCSV}}
	svc, _, _ := newTestService(t, fetcher)
	ctx := context.Background()

	first, err := svc.Refresh(ctx)
	require.NoError(t, err)

	fetcher.fail = errors.New("network down")
	_, err = svc.Refresh(ctx)
	require.Error(t, err)

	current, err := svc.Dataset(ctx)
	require.NoError(t, err)
	assert.Same(t, first, current)
}

func TestService_PreviewAndStatus(t *testing.T) {
	fetcher := &stubFetcher{bodies: map[string]string{"factors.csv": factorCSV, "bench.csv": benchmarkCSV}}
	svc, _, _ := newTestService(t, fetcher)
	ctx := context.Background()

	preview, err := svc.Preview(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, preview.Factors, 4)
	assert.Equal(t, 4, preview.TotalRows)
	assert.Equal(t, 3500.0, preview.Benchmark[0].Values["USA Standard (Large+Mid Cap)"])

	preview, err = svc.Preview(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, preview.Factors, 2)

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.Equal(t, "msci_us_factors", status[0].Series)
}
