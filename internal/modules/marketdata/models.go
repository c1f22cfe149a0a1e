// Package marketdata ingests, cleans and stores the factor and benchmark price series.
package marketdata

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinRows is the fewest dated rows a cleaned table may have.
// Two returns are needed for any dispersion statistic.
const MinRows = 3

var (
	// ErrEmptyFile is returned when a source has no header or data rows
	ErrEmptyFile = errors.New("price file is empty")
	// ErrInsufficientData is returned when fewer than MinRows rows survive cleaning
	ErrInsufficientData = errors.New("not enough price rows after cleaning")
)

// PriceTable holds closing levels, one row per date, ascending.
type PriceTable struct {
	Dates   []time.Time `json:"dates"`
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"` // Values[row][column]
}

// Dataset pairs the factor indices with the benchmark index.
type Dataset struct {
	Factors        PriceTable `json:"factors"`
	Benchmark      PriceTable `json:"benchmark"`
	BenchmarkLabel string     `json:"benchmark_label"`
	RefreshedAt    time.Time  `json:"refreshed_at"`
}

// Len returns the number of rows
func (t PriceTable) Len() int {
	return len(t.Dates)
}

// ColumnIndex returns the position of name, or -1.
func (t PriceTable) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of a single column's values.
func (t PriceTable) Column(name string) ([]float64, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found (available: %s)", name, strings.Join(t.Columns, ", "))
	}
	out := make([]float64, len(t.Values))
	for i, row := range t.Values {
		out[i] = row[idx]
	}
	return out, nil
}

// Select returns a table restricted to the named columns in the given order.
// An empty selection returns the table unchanged.
func (t PriceTable) Select(columns []string) (PriceTable, error) {
	if len(columns) == 0 {
		return t, nil
	}

	indices := make([]int, len(columns))
	for i, name := range columns {
		idx := t.ColumnIndex(name)
		if idx < 0 {
			return PriceTable{}, fmt.Errorf("column %q not found (available: %s)", name, strings.Join(t.Columns, ", "))
		}
		indices[i] = idx
	}

	out := PriceTable{
		Dates:   append([]time.Time(nil), t.Dates...),
		Columns: append([]string(nil), columns...),
		Values:  make([][]float64, len(t.Values)),
	}
	for r, row := range t.Values {
		selected := make([]float64, len(indices))
		for i, idx := range indices {
			selected[i] = row[idx]
		}
		out.Values[r] = selected
	}
	return out, nil
}

// Head returns the first n rows.
func (t PriceTable) Head(n int) PriceTable {
	if n < 0 || n > t.Len() {
		n = t.Len()
	}
	return PriceTable{
		Dates:   t.Dates[:n],
		Columns: t.Columns,
		Values:  t.Values[:n],
	}
}

// Validate checks the table shape.
func (t PriceTable) Validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("price table has no columns")
	}
	if len(t.Values) != len(t.Dates) {
		return fmt.Errorf("price table has %d dates but %d rows", len(t.Dates), len(t.Values))
	}
	for i, row := range t.Values {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(t.Columns))
		}
	}
	if t.Len() < MinRows {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientData, t.Len(), MinRows)
	}
	for i := 1; i < len(t.Dates); i++ {
		if !t.Dates[i].After(t.Dates[i-1]) {
			return fmt.Errorf("dates are not strictly ascending at row %d", i)
		}
	}
	return nil
}

// PreviewRow is one dated row of a preview.
type PreviewRow struct {
	Date   string             `json:"date"`
	Values map[string]float64 `json:"values"`
}

// Preview is the head of the factor and benchmark tables.
type Preview struct {
	Columns        []string     `json:"columns"`
	Factors        []PreviewRow `json:"factors"`
	Benchmark      []PreviewRow `json:"benchmark"`
	BenchmarkLabel string       `json:"benchmark_label"`
	TotalRows      int          `json:"total_rows"`
	RefreshedAt    time.Time    `json:"refreshed_at"`
}

// NewPreview takes the first n rows of both tables (DefaultPreviewRows when n <= 0).
func NewPreview(ds *Dataset, n int) *Preview {
	if n <= 0 {
		n = DefaultPreviewRows
	}
	return &Preview{
		Columns:        ds.Factors.Columns,
		Factors:        previewRows(ds.Factors, n),
		Benchmark:      previewRows(ds.Benchmark, n),
		BenchmarkLabel: ds.BenchmarkLabel,
		TotalRows:      ds.Factors.Len(),
		RefreshedAt:    ds.RefreshedAt,
	}
}

func previewRows(t PriceTable, n int) []PreviewRow {
	head := t.Head(n)
	rows := make([]PreviewRow, head.Len())
	for i, d := range head.Dates {
		values := make(map[string]float64, len(head.Columns))
		for j, c := range head.Columns {
			values[c] = head.Values[i][j]
		}
		rows[i] = PreviewRow{Date: d.Format("2006-01-02"), Values: values}
	}
	return rows
}
