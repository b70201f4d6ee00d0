package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ta-core/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, ":9095", cfg.Server.Addr)
	assert.Equal(t, []int{60, 300}, cfg.Engine.TFs)
	assert.Equal(t, 30*time.Second, cfg.Redis.PELInterval)
	assert.Equal(t, "config:indicators", cfg.Redis.ConfigChannel)
	require.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	t.Setenv("TACORE_TEST_REDIS_PASS", "s3cret")
	path := writeConfig(t, `
log:
  level: debug
server:
  addr: ":8080"
redis:
  addr: "redis:6379"
  password: "${TACORE_TEST_REDIS_PASS}"
  pel_interval: 5s
engine:
  tfs: [60, 180]
  indicators: ["SMA:9", "RSI:14"]
  timeframes:
    - tf: 900
      indicators: ["EMA:50"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "s3cret", cfg.Redis.Password)
	assert.Equal(t, 5*time.Second, cfg.Redis.PELInterval)
	assert.Equal(t, 60*time.Second, cfg.Redis.PELMinIdle, "unset keys keep defaults")
	assert.Equal(t, []int{60, 180}, cfg.Engine.TFs)

	tfcs, err := cfg.TFIndicatorConfigs()
	require.NoError(t, err)
	require.Len(t, tfcs, 3)
	assert.Equal(t, 60, tfcs[0].TF)
	assert.Len(t, tfcs[0].Indicators, 2)
	assert.Equal(t, 900, tfcs[2].TF)
	require.Len(t, tfcs[2].Indicators, 1)
	assert.Equal(t, "EMA", tfcs[2].Indicators[0].Type)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TACORE_SERVER_ADDR", ":7000")
	t.Setenv("TACORE_REDIS_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfigMissing))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"defaults", func(c *Config) {}, nil},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, core.ErrConfigInvalid},
		{"no addr", func(c *Config) { c.Server.Addr = "" }, core.ErrConfigMissing},
		{"redis without addr", func(c *Config) { c.Redis.Addr = "" }, core.ErrConfigMissing},
		{"redis disabled without addr", func(c *Config) { c.Redis.Enabled = false; c.Redis.Addr = "" }, nil},
		{"bad instrument", func(c *Config) { c.Redis.Instruments = []string{"INFY"} }, core.ErrConfigInvalid},
		{"good instrument", func(c *Config) { c.Redis.Instruments = []string{"NSE:INFY"} }, nil},
		{"negative depth", func(c *Config) { c.SQLite.BackfillDepth = -1 }, core.ErrConfigInvalid},
		{"zero ring", func(c *Config) { c.Engine.RingSize = 0 }, core.ErrConfigInvalid},
		{"no tfs", func(c *Config) { c.Engine.TFs = nil }, core.ErrConfigMissing},
		{"bad tf", func(c *Config) { c.Engine.TFs = []int{0} }, core.ErrConfigInvalid},
		{"unknown indicator", func(c *Config) { c.Engine.Indicators = []string{"NOPE:3"} }, core.ErrUnknownIndicator},
		{"duplicate indicator", func(c *Config) { c.Engine.Indicators = []string{"SMA:9", "SMA:9"} }, core.ErrConfigInvalid},
		{"no indicators", func(c *Config) { c.Engine.Indicators = nil }, core.ErrConfigMissing},
		{"duplicate timeframe", func(c *Config) {
			c.Engine.Timeframes = []TimeframeConfig{{TF: 60, Indicators: []string{"SMA:3"}}, {TF: 60, Indicators: []string{"SMA:4"}}}
		}, core.ErrConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestParseSpecList_CommaJoined(t *testing.T) {
	cfgs, err := parseSpecList([]string{"SMA:20,RSI:14", "EMA:9"})
	require.NoError(t, err)
	require.Len(t, cfgs, 3)
	assert.Equal(t, "RSI", cfgs[1].Type)
}
