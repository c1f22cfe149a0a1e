package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed universe.yaml
var defaultUniverse []byte

// Universe describes where the factor and benchmark prices come from.
type Universe struct {
	Frequency  int     `yaml:"frequency"`   // Return periods per year (12 for monthly closes)
	MandateUSD float64 `yaml:"mandate_usd"` // Portfolio size used for dollar allocations
	Factors    Source  `yaml:"factors"`
	Benchmark  Source  `yaml:"benchmark"`
}

// Source is a single price file.
type Source struct {
	Name    string   `yaml:"name"`
	Label   string   `yaml:"label,omitempty"`
	Source  string   `yaml:"source"`            // http(s) URL or local path
	Columns []string `yaml:"columns,omitempty"` // Subset to keep; empty keeps every column
	Column  string   `yaml:"column,omitempty"`  // Single column, benchmark only
}

// Selected returns the columns to keep from the source file.
func (s Source) Selected() []string {
	if s.Column != "" {
		return []string{s.Column}
	}
	return s.Columns
}

// DefaultUniverse returns the embedded MSCI factor universe.
func DefaultUniverse() *Universe {
	u, err := ParseUniverse(defaultUniverse)
	if err != nil {
		panic(fmt.Sprintf("embedded universe is invalid: %v", err))
	}
	return u
}

// LoadUniverse reads a universe file, or the embedded default when path is empty.
func LoadUniverse(path string) (*Universe, error) {
	if path == "" {
		return DefaultUniverse(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe file: %w", err)
	}
	u, err := ParseUniverse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse universe file %s: %w", path, err)
	}
	return u, nil
}

// ParseUniverse decodes YAML and fills defaults.
func ParseUniverse(data []byte) (*Universe, error) {
	var u Universe
	if err := yaml.Unmarshal(data, &u); err != nil {
		return nil, err
	}
	if u.Frequency == 0 {
		u.Frequency = 12
	}
	if u.MandateUSD == 0 {
		u.MandateUSD = 100_000_000
	}
	if u.Factors.Name == "" {
		u.Factors.Name = "factors"
	}
	if u.Benchmark.Name == "" {
		u.Benchmark.Name = "benchmark"
	}
	if u.Benchmark.Label == "" {
		u.Benchmark.Label = u.Benchmark.Column
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return &u, nil
}

// Validate checks the universe is usable.
func (u *Universe) Validate() error {
	if u.Frequency <= 0 {
		return fmt.Errorf("frequency must be positive, got %d", u.Frequency)
	}
	if u.MandateUSD <= 0 {
		return fmt.Errorf("mandate must be positive")
	}
	if u.Factors.Source == "" {
		return fmt.Errorf("factors source is required")
	}
	if u.Benchmark.Source == "" {
		return fmt.Errorf("benchmark source is required")
	}
	if u.Benchmark.Column == "" {
		return fmt.Errorf("benchmark column is required")
	}
	if u.Factors.Name == u.Benchmark.Name {
		return fmt.Errorf("factors and benchmark must have distinct names")
	}
	return nil
}
