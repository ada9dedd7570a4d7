package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "backfill_missing", cfg.Store.ConflictPolicy)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "cninfo", cfg.Source.Primary)
	assert.Equal(t, "eastmoney", cfg.Source.Secondary)
	assert.Equal(t, 30, cfg.Source.Cninfo.PageSize)
	assert.InDelta(t, 82.0, cfg.Reconcile.Threshold, 0.001)
	assert.Equal(t, "pattern", cfg.Extract.Strategy)
	assert.Equal(t, 30, cfg.Extract.TimeoutSecs)
	assert.Equal(t, 10, cfg.Extract.MaxPages)
	assert.Equal(t, 8000, cfg.Extract.MaxChars)
	assert.Equal(t, 500, cfg.Profile.DelayMs)
	assert.Equal(t, 1, cfg.Pipeline.MaxBatches)
	assert.Equal(t, 1, cfg.Pipeline.EnrichWorkers)
	assert.Equal(t, 270, cfg.Pipeline.BackfillDays)
	assert.Equal(t, 3, cfg.Pipeline.MaxEnrichAttempts)
	assert.Equal(t, []string{"重大资产重组", "发行股份购买资产", "购买资产", "重组"}, cfg.Pipeline.Keywords.Core)
	assert.Equal(t, []string{"预案", "草案"}, cfg.Pipeline.Keywords.Modifier)
	assert.Empty(t, cfg.Pipeline.Keywords.Any)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.InDelta(t, 0.5, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.Equal(t, 500, cfg.Monitoring.BacklogThreshold)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/mna
  conflict_policy: do_nothing
log:
  level: debug
  format: console
server:
  port: 9090
pipeline:
  enrich_workers: 4
  keywords:
    any: [收购, 并购]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "do_nothing", cfg.Store.ConflictPolicy)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Pipeline.EnrichWorkers)
	assert.Equal(t, []string{"收购", "并购"}, cfg.Pipeline.Keywords.Any)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Extract.MaxPages)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("MNA_STORE_DRIVER", "postgres")
	t.Setenv("MNA_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("MNA_SERVER_PORT", "3000")
	t.Setenv("MNA_RECONCILE_THRESHOLD", "90")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.InDelta(t, 90.0, cfg.Reconcile.Threshold, 0.001)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = "mna.db"
	cfg.Store.ConflictPolicy = "backfill_missing"
	cfg.Reconcile.Threshold = 82
	cfg.Extract.Strategy = "pattern"
	cfg.Extract.MaxPages = 10
	cfg.Extract.TimeoutSecs = 30
	cfg.Pipeline.BatchSize = 20
	cfg.Pipeline.MaxBatches = 1
	cfg.Pipeline.EnrichWorkers = 1
	cfg.Pipeline.MaxEnrichAttempts = 3
	cfg.Pipeline.BackfillDays = 270
	cfg.Server.Port = 8080
	return cfg
}

func TestValidatePipeline_Defaults(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("pipeline"))
}

func TestValidatePipeline_MissingModelKeyIsNotAnError(t *testing.T) {
	cfg := validDefaults()
	cfg.Extract.Strategy = "anthropic"
	assert.NoError(t, cfg.Validate("pipeline"))
}

func TestValidatePipeline_Postgres(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("pipeline")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/mna"
	assert.NoError(t, cfg.Validate("pipeline"))
}

func TestValidatePipeline_Bounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Pipeline.EnrichWorkers = 0
	cfg.Pipeline.MaxBatches = 0
	cfg.Store.ConflictPolicy = "overwrite"
	cfg.Extract.Strategy = "magic"

	err := cfg.Validate("pipeline")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enrich_workers must be between 1 and 16")
	assert.Contains(t, err.Error(), "max_batches must be >= 1")
	assert.Contains(t, err.Error(), "conflict_policy must be do_nothing or backfill_missing")
	assert.Contains(t, err.Error(), "extract.strategy")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateThreshold(t *testing.T) {
	cfg := validDefaults()
	cfg.Reconcile.Threshold = 120

	err := cfg.Validate("lookup")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reconcile.threshold")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
