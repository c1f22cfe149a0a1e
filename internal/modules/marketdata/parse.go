package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Layouts accepted for the date column besides Excel serial numbers.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
	"1-2-06",
	"Jan 02, 2006",
	"Jan 2, 2006",
	"02 Jan 2006",
	"2 Jan 2006",
}

// ParseXLSX reads the first sheet of a workbook. The first row holds the
// column names, the first column holds the dates.
func ParseXLSX(r io.Reader) (PriceTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return PriceTable{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return PriceTable{}, ErrEmptyFile
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return PriceTable{}, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}

	return buildTable(rows)
}

// ParseCSV reads the same layout as ParseXLSX from comma separated text.
func ParseCSV(r io.Reader) (PriceTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return PriceTable{}, fmt.Errorf("failed to read csv: %w", err)
	}

	return buildTable(rows)
}

// ParsePrice strips thousands separators and parses a float.
// Blank or unparsable cells are NaN.
func ParsePrice(cell string) float64 {
	s := strings.TrimSpace(strings.ReplaceAll(cell, ",", ""))
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// ParseDate accepts Excel serial numbers and the common textual layouts.
func ParseDate(cell string) (time.Time, error) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		// 2958465 is 9999-12-31, the largest date Excel represents
		if serial >= 1 && serial <= 2958465 {
			t, err := excelize.ExcelDateToTime(serial, false)
			if err != nil {
				return time.Time{}, err
			}
			return truncateDay(t), nil
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type datedRow struct {
	date   time.Time
	values []float64
}

// buildTable applies the cleaning rules: thousands separators are removed,
// rows with any missing value or an unreadable date are dropped, duplicate
// dates keep the last occurrence and the result is sorted by date.
func buildTable(rows [][]string) (PriceTable, error) {
	if len(rows) < 2 {
		return PriceTable{}, ErrEmptyFile
	}

	header := rows[0]
	if len(header) < 2 {
		return PriceTable{}, fmt.Errorf("header needs a date column and at least one price column")
	}
	columns := make([]string, len(header)-1)
	for i, name := range header[1:] {
		columns[i] = strings.TrimSpace(name)
		if columns[i] == "" {
			columns[i] = fmt.Sprintf("column_%d", i+1)
		}
	}

	byDate := make(map[time.Time]int)
	var kept []datedRow

	for _, raw := range rows[1:] {
		if len(raw) == 0 {
			continue
		}
		date, err := ParseDate(raw[0])
		if err != nil {
			continue
		}

		values := make([]float64, len(columns))
		complete := true
		for j := range columns {
			v := math.NaN()
			if j+1 < len(raw) {
				v = ParsePrice(raw[j+1])
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				complete = false
				break
			}
			values[j] = v
		}
		if !complete {
			continue
		}

		if idx, dup := byDate[date]; dup {
			kept[idx].values = values
			continue
		}
		byDate[date] = len(kept)
		kept = append(kept, datedRow{date: date, values: values})
	}

	if len(kept) == 0 {
		return PriceTable{}, ErrEmptyFile
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].date.Before(kept[j].date) })

	table := PriceTable{
		Dates:   make([]time.Time, len(kept)),
		Columns: columns,
		Values:  make([][]float64, len(kept)),
	}
	for i, row := range kept {
		table.Dates[i] = row.date
		table.Values[i] = row.values
	}

	if table.Len() < MinRows {
		return PriceTable{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientData, table.Len(), MinRows)
	}
	return table, nil
}
