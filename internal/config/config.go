package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`

	Oracle       OracleConfig       `mapstructure:"oracle"`
	SwapExecutor SwapExecutorConfig `mapstructure:"swap_executor"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	DCA          DCAConfig          `mapstructure:"dca"`
	Events       EventsConfig       `mapstructure:"events"`
	PriceFeed    PriceFeedConfig    `mapstructure:"price_feed"`
	Retention    RetentionConfig    `mapstructure:"retention"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type OracleConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SwapExecutorConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	DryRun  bool          `mapstructure:"dry_run"`
}

type SchedulerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	MaxCandidates int           `mapstructure:"max_candidates"`
	ExpirySweep   string        `mapstructure:"expiry_sweep"`
	// ClaimTimeout must comfortably exceed the swap executor timeout:
	// a claim released while its dispatch is still in flight would
	// re-open the order to a second worker.
	ClaimTimeout time.Duration `mapstructure:"claim_timeout"`
	ClaimSweep   string        `mapstructure:"claim_sweep"`
}

type DCAConfig struct {
	MaxRetryWindow time.Duration `mapstructure:"max_retry_window"`
}

type EventsConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type PriceFeedConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
	ProximityPct float64       `mapstructure:"proximity_pct"`
}

type RetentionConfig struct {
	ExecutionAudit time.Duration `mapstructure:"execution_audit"`
	Sweep          string        `mapstructure:"sweep"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")

	v.SetDefault("oracle.base_url", "http://localhost:9040")
	v.SetDefault("oracle.timeout", "5s")
	v.SetDefault("swap_executor.base_url", "http://localhost:9041")
	v.SetDefault("swap_executor.timeout", "30s")
	v.SetDefault("swap_executor.dry_run", true)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.tick_interval", "10s")
	v.SetDefault("scheduler.max_candidates", 200)
	v.SetDefault("scheduler.expiry_sweep", "@every 30s")
	v.SetDefault("scheduler.claim_timeout", "5m")
	v.SetDefault("scheduler.claim_sweep", "@every 1m")

	v.SetDefault("dca.max_retry_window", "6h")

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.brokers", []string{"localhost:9092"})
	v.SetDefault("events.topic", "order-events")

	v.SetDefault("price_feed.enabled", false)
	v.SetDefault("price_feed.url", "")
	v.SetDefault("price_feed.stale_after", "30s")
	v.SetDefault("price_feed.proximity_pct", 5.0)

	v.SetDefault("retention.execution_audit", "720h")
	v.SetDefault("retention.sweep", "@every 1h")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
