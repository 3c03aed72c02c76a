package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"upgrade-alerts/internal/logging"
)

// ErrMissingBotToken is returned when the Telegram transport has no credential.
var ErrMissingBotToken = errors.New("telegram.bot_token must be configured")

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Networks  NetworksConfig  `mapstructure:"networks"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Chains    ChainsConfig    `mapstructure:"chains"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Server    ServerConfig    `mapstructure:"server"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// FeedConfig describes the upstream upgrade schedule API.
type FeedConfig struct {
	URL            string        `mapstructure:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// NetworksConfig restricts which networks are tracked.
type NetworksConfig struct {
	// AllowList empty means every network in the feed is tracked.
	AllowList []string `mapstructure:"allow_list"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Cron            string        `mapstructure:"cron"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig defines alert policy and fan-out.
type AlertingConfig struct {
	NotifyChanges       bool `mapstructure:"notify_changes"`
	RearmOnPostpone     bool `mapstructure:"rearm_on_postpone"`
	DispatchConcurrency int  `mapstructure:"dispatch_concurrency"`
}

// TelegramConfig 描述 Telegram 机器人参数。
type TelegramConfig struct {
	BotToken    string        `mapstructure:"bot_token"`
	APIBase     string        `mapstructure:"api_base"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// StorageConfig selects the subscription backend.
type StorageConfig struct {
	Driver      string        `mapstructure:"driver"`
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ChainsConfig maps networks to EVM JSON-RPC endpoints used for block height lookups.
type ChainsConfig struct {
	RPC            map[string]string `mapstructure:"rpc"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
}

// NATSConfig enables publishing alert events to NATS.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// ServerConfig controls the status/metrics HTTP listener.
type ServerConfig struct {
	ListenAddr   string        `mapstructure:"listen_addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("UPGRADEWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "upgradewatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("feed.url", "https://polkachu.com/api/v2/chain_upgrades")
	v.SetDefault("feed.request_timeout", "10s")
	v.SetDefault("feed.user_agent", "upgradewatcher/1.0")

	v.SetDefault("networks.allow_list", []string{})

	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.cron", "")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("alerting.notify_changes", true)
	v.SetDefault("alerting.rearm_on_postpone", false)
	v.SetDefault("alerting.dispatch_concurrency", 8)

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.poll_timeout", "10s")
	v.SetDefault("telegram.send_timeout", "10s")

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.path", "data/subscriptions.json")
	v.SetDefault("storage.busy_timeout", "5s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("chains.request_timeout", "5s")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "upgrades.alerts")

	v.SetDefault("server.listen_addr", "")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
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
	if strings.TrimSpace(c.Feed.URL) == "" {
		return fmt.Errorf("feed.url must be configured")
	}
	if c.Feed.RequestTimeout <= 0 {
		return fmt.Errorf("feed.request_timeout must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 && strings.TrimSpace(c.Scheduler.Cron) == "" {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Alerting.DispatchConcurrency < 0 {
		return fmt.Errorf("alerting.dispatch_concurrency cannot be negative")
	}
	switch strings.ToLower(c.Storage.Driver) {
	case "", "file", "sqlite", "sqlite3", "memory", "none":
	case "postgres", "postgresql":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres storage driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	return nil
}

// ValidateTransport checks what the long-running commands need to deliver messages.
func (c *Config) ValidateTransport() error {
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		return ErrMissingBotToken
	}
	return nil
}
