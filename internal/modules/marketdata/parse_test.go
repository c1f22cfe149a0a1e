package marketdata

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParsePrice(t *testing.T) {
	testCases := []struct {
		cell     string
		expected float64
		isNaN    bool
	}{
		{"1234.5", 1234.5, false},
		{"1,234.5", 1234.5, false},
		{" 2,001,000 ", 2001000, false},
		{"-3.25", -3.25, false},
		{"", 0, true},
		{"n/a", 0, true},
		{"-", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.cell, func(t *testing.T) {
			got := ParsePrice(tc.cell)
			if tc.isNaN {
				assert.True(t, math.IsNaN(got))
			} else {
				assert.InDelta(t, tc.expected, got, 1e-12)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	testCases := []struct {
		cell     string
		expected time.Time
	}{
		{"2020-12-31", date(2020, 12, 31)},
		{"2020-12-31 00:00:00", date(2020, 12, 31)},
		{"12/31/2020", date(2020, 12, 31)},
		{"1/31/2021", date(2021, 1, 31)},
		{"Dec 31, 2020", date(2020, 12, 31)},
		{"44196", date(2020, 12, 31)}, // Excel serial
	}

	for _, tc := range testCases {
		t.Run(tc.cell, func(t *testing.T) {
			got, err := ParseDate(tc.cell)
			require.NoError(t, err)
			assert.True(t, tc.expected.Equal(got), "got %s", got)
		})
	}

	_, err := ParseDate("Source: MSCI")
	assert.Error(t, err)
	_, err = ParseDate("")
	assert.Error(t, err)
}

func TestParseCSV_Cleaning(t *testing.T) {
	input := strings.Join([]string{
		"Date,USA QUALITY,USA LARGE VALUE",
		"2020-03-31,\"2,900.10\",1500",
		"2020-01-31,\"3,000.50\",1600",
		"2020-02-29,,1550", // missing value, dropped
		"2020-04-30,3100,1580",
		"2020-04-30,3105,1585", // duplicate date, last wins
		"Source: MSCI,,",       // footer, dropped
		"2020-05-31,3150.25",   // short row, dropped
		"2020-06-30,\"3,200\",\"1,620\"",
	}, "\n")

	table, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"USA QUALITY", "USA LARGE VALUE"}, table.Columns)
	require.Equal(t, 4, table.Len())
	assert.Equal(t, []time.Time{
		date(2020, 1, 31), date(2020, 3, 31), date(2020, 4, 30), date(2020, 6, 30),
	}, table.Dates)
	assert.Equal(t, []float64{3000.5, 1600}, table.Values[0])
	assert.Equal(t, []float64{2900.1, 1500}, table.Values[1])
	assert.Equal(t, []float64{3105, 1585}, table.Values[2])
	assert.Equal(t, []float64{3200, 1620}, table.Values[3])
	assert.NoError(t, table.Validate())
}

func TestParseCSV_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		input  string
		target error
	}{
		{"empty", "", ErrEmptyFile},
		{"header only", "Date,A\n", ErrEmptyFile},
		{"all rows dirty", "Date,A\n2020-01-31,\n2020-02-29,x\n", ErrEmptyFile},
		{"too few rows", "Date,A\n2020-01-31,1\n2020-02-29,2\n", ErrInsufficientData},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tc.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.target), "got %v", err)
		})
	}

	_, err := ParseCSV(strings.NewReader("Date\n2020-01-31\n"))
	assert.Error(t, err)
}

func buildWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Date", "USA LARGE GROWTH", "USA MINIMUM VOLATILITY"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{date(2021, 1, 29), 5000.25, "3,010.5"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"2021-02-26", "5,100", 3020.0}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]interface{}{date(2021, 3, 31), 5050.0, 3055.75}))
	require.NoError(t, f.SetSheetRow(sheet, "A5", &[]interface{}{date(2021, 4, 30), nil, 3060.0}))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseXLSX(t *testing.T) {
	table, err := ParseXLSX(bytes.NewReader(buildWorkbook(t)))
	require.NoError(t, err)

	assert.Equal(t, []string{"USA LARGE GROWTH", "USA MINIMUM VOLATILITY"}, table.Columns)
	require.Equal(t, 3, table.Len())
	assert.True(t, date(2021, 1, 29).Equal(table.Dates[0]))
	assert.True(t, date(2021, 2, 26).Equal(table.Dates[1]))
	assert.Equal(t, []float64{5000.25, 3010.5}, table.Values[0])
	assert.Equal(t, []float64{5100, 3020}, table.Values[1])
}

func TestParseXLSX_NotAWorkbook(t *testing.T) {
	_, err := ParseXLSX(strings.NewReader("definitely not a zip"))
	assert.Error(t, err)
}
