package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FRONTIER_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("FRONTIER_PORT", "")
	t.Setenv("FRONTIER_UNIVERSE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "data"), cfg.DataDir)
	assert.Equal(t, 8501, cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.False(t, cfg.Backup.Enabled)
	assert.Equal(t, 12, cfg.Universe.Frequency)
	assert.Equal(t, "USA Standard (Large+Mid Cap)", cfg.Universe.Benchmark.Column)

	info, err := os.Stat(cfg.DataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FRONTIER_DATA_DIR", t.TempDir())
	t.Setenv("FRONTIER_PORT", "9090")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("FRONTIER_CACHE_TTL", "90m")
	t.Setenv("FRONTIER_BACKUP_RETENTION_DAYS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 90*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 30, cfg.Backup.RetentionDays)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Port: 8501, Universe: DefaultUniverse(), Backup: &BackupConfig{}}
	}

	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Port = 0 }, true},
		{"missing universe", func(c *Config) { c.Universe = nil }, true},
		{"sample covariance", func(c *Config) { c.Covariance = "sample" }, false},
		{"unknown covariance", func(c *Config) { c.Covariance = "shrunk" }, true},
		{"backup without bucket", func(c *Config) { c.Backup.Enabled = true }, true},
		{"backup without credentials", func(c *Config) {
			c.Backup.Enabled = true
			c.Backup.Bucket = "frontier"
		}, true},
		{"backup complete", func(c *Config) {
			c.Backup = &BackupConfig{Enabled: true, Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s"}
		}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultUniverse(t *testing.T) {
	u := DefaultUniverse()

	assert.Equal(t, 100_000_000.0, u.MandateUSD)
	assert.ElementsMatch(t, []string{
		"USA LARGE VALUE", "USA LARGE GROWTH", "USA QUALITY", "USA MINIMUM VOLATILITY",
	}, u.Factors.Columns)
	assert.Equal(t, "MSCI USA", u.Benchmark.Label)
	assert.Equal(t, []string{"USA Standard (Large+Mid Cap)"}, u.Benchmark.Selected())
}

func TestParseUniverse_FillsDefaults(t *testing.T) {
	u, err := ParseUniverse([]byte(`
factors:
  source: ./prices.csv
benchmark:
  source: ./bench.csv
  column: Index
`))
	require.NoError(t, err)

	assert.Equal(t, 12, u.Frequency)
	assert.Equal(t, "factors", u.Factors.Name)
	assert.Equal(t, "benchmark", u.Benchmark.Name)
	assert.Equal(t, "Index", u.Benchmark.Label)
	assert.Empty(t, u.Factors.Selected())
}

func TestParseUniverse_Errors(t *testing.T) {
	testCases := map[string]string{
		"missing factors": "benchmark: {source: b.csv, column: X}",
		"missing column":  "factors: {source: a.csv}\nbenchmark: {source: b.csv}",
		"negative freq":   "frequency: -1\nfactors: {source: a.csv}\nbenchmark: {source: b.csv, column: X}",
		"same names":      "factors: {name: x, source: a.csv}\nbenchmark: {name: x, source: b.csv, column: X}",
		"malformed yaml":  "factors: [",
	}
	for name, doc := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseUniverse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadUniverse_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
frequency: 52
factors: {source: f.csv, columns: [A, B]}
benchmark: {source: b.csv, column: M, label: Market}
`), 0644))

	u, err := LoadUniverse(path)
	require.NoError(t, err)
	assert.Equal(t, 52, u.Frequency)
	assert.Equal(t, []string{"A", "B"}, u.Factors.Selected())

	_, err = LoadUniverse(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
