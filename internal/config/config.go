package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"btcwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// MonitorConfig 描述监控的交易对、窗口大小与两档阈值。
type MonitorConfig struct {
	Pair               string  `mapstructure:"pair"`
	WindowSize         int     `mapstructure:"window_size"`
	ShortThresholdPct  float64 `mapstructure:"short_threshold_pct"`
	MediumThresholdPct float64 `mapstructure:"medium_threshold_pct"`
}

// ExchangeConfig captures Bybit connectivity.
type ExchangeConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Category       string        `mapstructure:"category"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// SchedulerConfig governs sampling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RedisConfig 描述 redis stream 告警通道。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the audit log.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MetricsConfig controls the prometheus endpoint. Empty ListenAddr disables it.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Channel names accepted in alerting.channels.
const (
	ChannelTelegram = "telegram"
	ChannelRedis    = "redis"
)

// Load builds configuration from file, environment, and defaults. A .env
// file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("BTCWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindLegacyEnv keeps the TELEGRAM_TOKEN / CHAT_ID variables working next
// to the prefixed ones.
func bindLegacyEnv(v *viper.Viper) error {
	if err := v.BindEnv("alerting.telegram.bot_token", "BTCWATCH_ALERTING_TELEGRAM_BOT_TOKEN", "TELEGRAM_TOKEN"); err != nil {
		return fmt.Errorf("bind telegram token env: %w", err)
	}
	if err := v.BindEnv("alerting.telegram.chat_id", "BTCWATCH_ALERTING_TELEGRAM_CHAT_ID", "CHAT_ID"); err != nil {
		return fmt.Errorf("bind telegram chat env: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "btcwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("monitor.pair", "BTC/USDT")
	v.SetDefault("monitor.window_size", 5)
	v.SetDefault("monitor.short_threshold_pct", 0.3)
	v.SetDefault("monitor.medium_threshold_pct", 1.0)

	v.SetDefault("exchange.base_url", "https://api.bybit.com")
	v.SetDefault("exchange.category", "spot")
	v.SetDefault("exchange.request_timeout", "10s")
	v.SetDefault("exchange.user_agent", "btcwatch/1.0")

	v.SetDefault("scheduler.interval", "60s")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x62746377))

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.channels", []string{ChannelTelegram})
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.request_timeout", "10s")
	v.SetDefault("alerting.redis.addr", "localhost:6379")
	v.SetDefault("alerting.redis.stream", "btcwatch:alerts")
	v.SetDefault("alerting.redis.password", "")
	v.SetDefault("alerting.redis.db", 0)
	v.SetDefault("alerting.redis.max_len", 10000)

	v.SetDefault("metrics.listen_addr", "")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Monitor.Pair) == "" {
		return fmt.Errorf("monitor.pair must be set")
	}
	if c.Monitor.WindowSize < 2 {
		return fmt.Errorf("monitor.window_size must be at least 2")
	}
	if c.Monitor.ShortThresholdPct <= 0 {
		return fmt.Errorf("monitor.short_threshold_pct must be greater than zero")
	}
	if c.Monitor.MediumThresholdPct <= 0 {
		return fmt.Errorf("monitor.medium_threshold_pct must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	for _, ch := range c.Alerting.Channels {
		switch strings.ToLower(strings.TrimSpace(ch)) {
		case ChannelTelegram, ChannelRedis:
		default:
			return fmt.Errorf("unknown alerting channel %q", ch)
		}
	}
	return nil
}

// ValidateChannels checks the credentials of every configured channel. It
// is only needed by commands that deliver alerts.
func (c *Config) ValidateChannels() error {
	for _, ch := range c.Alerting.Channels {
		switch strings.ToLower(strings.TrimSpace(ch)) {
		case ChannelTelegram:
			if c.Alerting.Telegram.BotToken == "" {
				return fmt.Errorf("alerting.telegram.bot_token 必须配置 (或设置 TELEGRAM_TOKEN)")
			}
			if c.Alerting.Telegram.ChatID == "" {
				return fmt.Errorf("alerting.telegram.chat_id 必须配置 (或设置 CHAT_ID)")
			}
		case ChannelRedis:
			if c.Alerting.Redis.Addr == "" || c.Alerting.Redis.Stream == "" {
				return fmt.Errorf("alerting.redis.addr 与 alerting.redis.stream 必须配置")
			}
		default:
			return fmt.Errorf("unknown alerting channel %q", ch)
		}
	}
	return nil
}

// Thresholds converts the configured percentages to decimals.
func (m MonitorConfig) Thresholds() (short, medium decimal.Decimal) {
	return decimal.NewFromFloat(m.ShortThresholdPct), decimal.NewFromFloat(m.MediumThresholdPct)
}

// MediumSpan is the wall-clock distance covered by a full window, used to
// label the medium horizon.
func (c *Config) MediumSpan() time.Duration {
	return time.Duration(c.Monitor.WindowSize) * c.Scheduler.Interval
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
