package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/frontier/internal/database"
	"github.com/rs/zerolog"
)

// Repository stores cleaned price tables in the market database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new price repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "prices").Logger(),
	}
}

// SeriesWrite is one series to store with SaveAll.
type SeriesWrite struct {
	Series string
	Source string
	Table  PriceTable
}

// Save replaces every row of a series and records the refresh.
func (r *Repository) Save(ctx context.Context, series, source string, table PriceTable, at time.Time) error {
	return r.SaveAll(ctx, at, SeriesWrite{Series: series, Source: source, Table: table})
}

// SaveAll replaces several series in one transaction. Either every series
// is stored or none is.
func (r *Repository) SaveAll(ctx context.Context, at time.Time, writes ...SeriesWrite) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, w := range writes {
			if err := saveSeries(ctx, tx, w, at); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveSeries(ctx context.Context, tx *sql.Tx, w SeriesWrite, at time.Time) error {
	series, table := w.Series, w.Table
	if _, err := tx.ExecContext(ctx, "DELETE FROM prices WHERE series = ?", series); err != nil {
		return fmt.Errorf("failed to clear series %s: %w", series, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO prices (series, column_name, date, close, position)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, d := range table.Dates {
		date := d.Format("2006-01-02")
		for j, col := range table.Columns {
			if _, err := stmt.ExecContext(ctx, series, col, date, table.Values[i][j], j); err != nil {
				return fmt.Errorf("failed to insert %s/%s/%s: %w", series, col, date, err)
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refreshes (series, source, rows, columns, refreshed_at)
		VALUES (?, ?, ?, ?, ?)
	`, series, w.Source, table.Len(), len(table.Columns), at.Unix())
	if err != nil {
		return fmt.Errorf("failed to record refresh of %s: %w", series, err)
	}
	return nil
}

// Load rebuilds a series. A series never saved returns ok=false.
func (r *Repository) Load(ctx context.Context, series string) (PriceTable, bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT column_name, date, close, position
		FROM prices
		WHERE series = ?
		ORDER BY date ASC, position ASC
	`, series)
	if err != nil {
		return PriceTable{}, false, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var (
		dates     []string
		byDate    = make(map[string]map[int]float64)
		positions = make(map[int]string)
	)
	for rows.Next() {
		var (
			col, date string
			close     float64
			pos       int
		)
		if err := rows.Scan(&col, &date, &close, &pos); err != nil {
			return PriceTable{}, false, fmt.Errorf("failed to scan price: %w", err)
		}
		if _, ok := byDate[date]; !ok {
			byDate[date] = make(map[int]float64)
			dates = append(dates, date)
		}
		byDate[date][pos] = close
		positions[pos] = col
	}
	if err := rows.Err(); err != nil {
		return PriceTable{}, false, fmt.Errorf("error iterating prices: %w", err)
	}
	if len(dates) == 0 {
		return PriceTable{}, false, nil
	}

	table := PriceTable{Columns: make([]string, len(positions))}
	for pos, col := range positions {
		if pos < 0 || pos >= len(positions) {
			return PriceTable{}, false, fmt.Errorf("series %s has a gap in column positions", series)
		}
		table.Columns[pos] = col
	}

	for _, date := range dates {
		cells := byDate[date]
		if len(cells) != len(table.Columns) {
			r.log.Warn().Str("series", series).Str("date", date).Msg("Skipping incomplete stored row")
			continue
		}
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			return PriceTable{}, false, fmt.Errorf("invalid stored date %q: %w", date, err)
		}
		values := make([]float64, len(table.Columns))
		for pos, v := range cells {
			values[pos] = v
		}
		table.Dates = append(table.Dates, t)
		table.Values = append(table.Values, values)
	}

	return table, true, nil
}

// RefreshInfo describes the latest refresh of a series.
type RefreshInfo struct {
	Series      string    `json:"series"`
	Source      string    `json:"source"`
	Rows        int       `json:"rows"`
	Columns     int       `json:"columns"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// LastRefresh returns the most recent refresh of a series.
func (r *Repository) LastRefresh(ctx context.Context, series string) (*RefreshInfo, error) {
	var (
		info RefreshInfo
		at   int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT series, source, rows, columns, refreshed_at
		FROM refreshes
		WHERE series = ?
		ORDER BY refreshed_at DESC, id DESC
		LIMIT 1
	`, series).Scan(&info.Series, &info.Source, &info.Rows, &info.Columns, &at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last refresh: %w", err)
	}
	info.RefreshedAt = time.Unix(at, 0).UTC()
	return &info, nil
}
