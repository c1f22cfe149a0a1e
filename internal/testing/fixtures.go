package testing

import (
	"time"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/modules/marketdata"
)

// Factor names used by the fixtures, as they appear in the MSCI workbook.
const (
	LargeValue  = "USA LARGE VALUE"
	LargeGrowth = "USA LARGE GROWTH"
	Quality     = "USA QUALITY"
	MinVol      = "USA MINIMUM VOLATILITY"
	Benchmark   = "USA Standard (Large+Mid Cap)"
)

// FixtureMonths returns n month-end dates starting January 2020.
func FixtureMonths(n int) []time.Time {
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = time.Date(2020, time.Month(i+2), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	}
	return dates
}

// NewFactorPrices returns 25 monthly closes of the four factor indices.
// Annualised mean historical returns are roughly 10.7%, 10.8%, 6.6% and 4.4%.
func NewFactorPrices() marketdata.PriceTable {
	values := [][]float64{
		{100.0, 100.0, 100.0, 100.0},
		{102.95, 104.54, 101.29, 98.51},
		{106.58, 105.68, 99.66, 97.61},
		{108.59, 103.03, 96.98, 98.33},
		{107.8, 99.4, 95.89, 100.49},
		{105.29, 98.22, 97.7, 102.88},
		{103.48, 100.89, 101.69, 104.05},
		{104.15, 106.19, 105.55, 103.44},
		{107.25, 110.96, 106.85, 101.9},
		{111.01, 112.08, 105.09, 101.0},
		{113.05, 109.22, 102.27, 101.77},
		{112.18, 105.39, 101.17, 104.03},
		{109.55, 104.21, 103.14, 106.5},
		{107.7, 107.12, 107.37, 107.68},
		{108.45, 112.77, 111.41, 107.02},
		{111.72, 117.79, 112.72, 105.42},
		{115.63, 118.89, 110.81, 104.51},
		{117.7, 115.8, 107.85, 105.35},
		{116.74, 111.76, 106.74, 107.7},
		{113.99, 110.58, 108.88, 110.24},
		{112.11, 113.74, 113.37, 111.42},
		{112.95, 119.76, 117.6, 110.7},
		{116.38, 125.03, 118.92, 109.04},
		{120.43, 126.11, 116.86, 108.13},
		{122.53, 122.77, 113.74, 109.03},
	}
	return marketdata.PriceTable{
		Dates:   FixtureMonths(len(values)),
		Columns: []string{LargeValue, LargeGrowth, Quality, MinVol},
		Values:  values,
	}
}

// NewBenchmarkPrices returns the matching MSCI USA closes.
func NewBenchmarkPrices() marketdata.PriceTable {
	closes := []float64{100.0, 103.54, 105.31, 104.37, 101.99, 100.55, 101.61, 104.91, 108.61,
		110.41, 109.38, 106.88, 105.4, 106.56, 110.05, 113.91, 115.74, 114.61, 111.98, 110.48,
		111.75, 115.44, 119.46, 121.32, 120.09}
	values := make([][]float64, len(closes))
	for i, c := range closes {
		values[i] = []float64{c}
	}
	return marketdata.PriceTable{
		Dates:   FixtureMonths(len(closes)),
		Columns: []string{Benchmark},
		Values:  values,
	}
}

// NewDataset pairs the factor and benchmark fixtures.
func NewDataset() *marketdata.Dataset {
	return &marketdata.Dataset{
		Factors:        NewFactorPrices(),
		Benchmark:      NewBenchmarkPrices(),
		BenchmarkLabel: "MSCI USA",
		RefreshedAt:    time.Date(2022, 2, 1, 6, 0, 0, 0, time.UTC),
	}
}

// NewUniverse returns the default universe pointed at local fixture files.
func NewUniverse() *config.Universe {
	return &config.Universe{
		Frequency:  12,
		MandateUSD: 100_000_000,
		Factors: config.Source{
			Name:    "msci_us_factors",
			Source:  "factors.csv",
			Columns: []string{LargeValue, LargeGrowth, Quality, MinVol},
		},
		Benchmark: config.Source{
			Name:   "msci_usa",
			Label:  "MSCI USA",
			Source: "benchmark.csv",
			Column: Benchmark,
		},
	}
}
