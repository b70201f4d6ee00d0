package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"ta-core/internal/core"
	"ta-core/internal/indicator"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes environment overrides: redis.addr -> TACORE_REDIS_ADDR.
const EnvPrefix = "TACORE"

type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Server  ServerConfig  `mapstructure:"server"`
	Redis   RedisConfig   `mapstructure:"redis"`
	SQLite  SQLiteConfig  `mapstructure:"sqlite"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Gateway GatewayConfig `mapstructure:"gateway"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Addr          string        `mapstructure:"addr"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	ConsumerGroup string        `mapstructure:"consumer_group"`
	ConsumerName  string        `mapstructure:"consumer_name"`
	PELInterval   time.Duration `mapstructure:"pel_interval"`
	PELMinIdle    time.Duration `mapstructure:"pel_min_idle"`
	ConfigChannel string        `mapstructure:"config_channel"`
	MaxFailures   int           `mapstructure:"max_failures"`
	ResetTimeout  time.Duration `mapstructure:"reset_timeout"`

	// Instruments ("EXCHANGE:SYMBOL") pins the consumed bar streams; empty
	// means discover bar:{tf}s:* streams at startup.
	Instruments []string `mapstructure:"instruments"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"` // empty disables the bar store

	// BackfillDepth multiplies each TF's longest warm-up to get the number
	// of stored bars replayed per instrument at startup.
	BackfillDepth int `mapstructure:"backfill_depth"`

	// PersistBars stores every consumed closed bar for the next backfill.
	PersistBars bool `mapstructure:"persist_bars"`
}

// EngineConfig lists timeframes and the indicator specs computed on each.
// Timeframes entries replace the default list for their TF.
type EngineConfig struct {
	TFs        []int             `mapstructure:"tfs"`
	Indicators []string          `mapstructure:"indicators"`
	Timeframes []TimeframeConfig `mapstructure:"timeframes"`
	RingSize   int               `mapstructure:"ring_size"`
	OutBuffer  int               `mapstructure:"out_buffer"`
}

type TimeframeConfig struct {
	TF         int      `mapstructure:"tf"`
	Indicators []string `mapstructure:"indicators"`
}

type GatewayConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	ReplaySize int  `mapstructure:"replay_size"`
	SendQueue  int  `mapstructure:"send_queue"`
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Server: ServerConfig{
			Addr:            ":9095",
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:       true,
			Addr:          "localhost:6379",
			ConsumerGroup: "tacore",
			PELInterval:   30 * time.Second,
			PELMinIdle:    60 * time.Second,
			ConfigChannel: "config:indicators",
			MaxFailures:   5,
			ResetTimeout:  10 * time.Second,
		},
		SQLite: SQLiteConfig{
			Path:          "data/bars.db",
			BackfillDepth: 3,
			PersistBars:   true,
		},
		Engine: EngineConfig{
			TFs:        []int{60, 300},
			Indicators: []string{"SMA:20", "EMA:21", "RSI:14", "MACD:12:26:9", "BBANDS:20:2", "ATR:14"},
			RingSize:   4096,
			OutBuffer:  1024,
		},
		Gateway: GatewayConfig{
			Enabled:    true,
			ReplaySize: 500,
			SendQueue:  256,
		},
	}
}

// Load reads a .env file if present, then the YAML file at path (optional:
// an empty path means defaults plus environment), then TACORE_* environment
// overrides. String values of the form ${VAR} are expanded.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("reading config: %w", err))
		}
	}

	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unmarshaling config: %w", err))
	}
	return cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override keys
// that the file does not mention.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.consumer_group", d.Redis.ConsumerGroup)
	v.SetDefault("redis.consumer_name", d.Redis.ConsumerName)
	v.SetDefault("redis.pel_interval", d.Redis.PELInterval)
	v.SetDefault("redis.pel_min_idle", d.Redis.PELMinIdle)
	v.SetDefault("redis.config_channel", d.Redis.ConfigChannel)
	v.SetDefault("redis.max_failures", d.Redis.MaxFailures)
	v.SetDefault("redis.reset_timeout", d.Redis.ResetTimeout)
	v.SetDefault("redis.instruments", d.Redis.Instruments)

	v.SetDefault("sqlite.path", d.SQLite.Path)
	v.SetDefault("sqlite.backfill_depth", d.SQLite.BackfillDepth)
	v.SetDefault("sqlite.persist_bars", d.SQLite.PersistBars)

	v.SetDefault("engine.tfs", d.Engine.TFs)
	v.SetDefault("engine.indicators", d.Engine.Indicators)
	v.SetDefault("engine.ring_size", d.Engine.RingSize)
	v.SetDefault("engine.out_buffer", d.Engine.OutBuffer)

	v.SetDefault("gateway.enabled", d.Gateway.Enabled)
	v.SetDefault("gateway.replay_size", d.Gateway.ReplaySize)
	v.SetDefault("gateway.send_queue", d.Gateway.SendQueue)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("log.level: %w", err))
	}
	if c.Server.Addr == "" {
		return core.WrapError(core.ErrConfigMissing, errors.New("server.addr is required"))
	}
	if c.Server.ShutdownTimeout < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("server.shutdown_timeout cannot be negative, got %s", c.Server.ShutdownTimeout))
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return core.WrapError(core.ErrConfigMissing, errors.New("redis.addr required when redis is enabled"))
		}
		for _, inst := range c.Redis.Instruments {
			if ex, sym, ok := strings.Cut(inst, ":"); !ok || ex == "" || sym == "" {
				return core.WrapError(core.ErrConfigInvalid,
					fmt.Errorf("redis.instruments entry %q must be EXCHANGE:SYMBOL", inst))
			}
		}
		if c.Redis.MaxFailures < 1 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("redis.max_failures must be at least 1, got %d", c.Redis.MaxFailures))
		}
	}

	if c.SQLite.BackfillDepth < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("sqlite.backfill_depth cannot be negative, got %d", c.SQLite.BackfillDepth))
	}
	if c.Engine.RingSize < 1 || c.Engine.OutBuffer < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("engine.ring_size and engine.out_buffer must be positive, got %d and %d", c.Engine.RingSize, c.Engine.OutBuffer))
	}
	if c.Gateway.ReplaySize < 0 || c.Gateway.SendQueue < 0 {
		return core.WrapError(core.ErrConfigInvalid, errors.New("gateway sizes cannot be negative"))
	}

	if _, err := c.TFIndicatorConfigs(); err != nil {
		return err
	}
	return nil
}

// TFIndicatorConfigs expands the engine section into per-TF indicator
// configs: every TF in engine.tfs gets engine.indicators unless a
// timeframes entry names its own list. A timeframes entry for a TF not in
// engine.tfs adds that TF.
func (c *Config) TFIndicatorConfigs() ([]indicator.TFIndicatorConfig, error) {
	defaults, err := parseSpecList(c.Engine.Indicators)
	if err != nil {
		return nil, err
	}

	overrides := make(map[int][]indicator.IndicatorConfig, len(c.Engine.Timeframes))
	var extra []int
	listed := make(map[int]bool, len(c.Engine.TFs))
	for _, tf := range c.Engine.TFs {
		listed[tf] = true
	}
	for _, t := range c.Engine.Timeframes {
		specs, err := parseSpecList(t.Indicators)
		if err != nil {
			return nil, fmt.Errorf("engine.timeframes tf=%d: %w", t.TF, err)
		}
		if _, dup := overrides[t.TF]; dup {
			return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("engine.timeframes lists tf=%d twice", t.TF))
		}
		overrides[t.TF] = specs
		if !listed[t.TF] {
			extra = append(extra, t.TF)
		}
	}

	tfs := append(append([]int(nil), c.Engine.TFs...), extra...)
	if len(tfs) == 0 {
		return nil, core.WrapError(core.ErrConfigMissing, errors.New("engine.tfs is empty"))
	}

	out := make([]indicator.TFIndicatorConfig, 0, len(tfs))
	for _, tf := range tfs {
		inds, ok := overrides[tf]
		if !ok {
			inds = defaults
		}
		if len(inds) == 0 {
			return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("no indicators configured for tf=%d", tf))
		}
		out = append(out, indicator.TFIndicatorConfig{TF: tf, Indicators: inds})
	}

	if err := indicator.ValidateConfigs(out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseSpecList accepts both list entries and comma-joined entries, so an
// environment override like "SMA:20,RSI:14" works.
func parseSpecList(specs []string) ([]indicator.IndicatorConfig, error) {
	out := make([]indicator.IndicatorConfig, 0, len(specs))
	for _, s := range specs {
		cfgs, err := indicator.ParseSpecs(s)
		if err != nil {
			return nil, err
		}
		out = append(out, cfgs...)
	}
	return out, nil
}
