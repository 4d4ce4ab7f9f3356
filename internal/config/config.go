package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

const (
	SideRequest  = "request"
	SideResponse = "response"
)

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig      `mapstructure:"http"`
	MySQL      DatabaseConfig  `mapstructure:"mysql"`
	ClickHouse DatabaseConfig  `mapstructure:"clickhouse"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	Log        LogConfig       `mapstructure:"log"`
	Network    NetworkConfig   `mapstructure:"network"`
	Transfer   TransferConfig  `mapstructure:"transfer"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	Cache      CacheConfig     `mapstructure:"cache"`
	Admin      AdminConfig     `mapstructure:"admin"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type NetworkConfig struct {
	Side string `mapstructure:"side"` // request | response
}

type TransferConfig struct {
	ExportDir  string          `mapstructure:"export_dir"`
	ImportDir  string          `mapstructure:"import_dir"`
	BatchSize  int             `mapstructure:"batch_size"`
	StaleAfter time.Duration   `mapstructure:"stale_after"`
	Intervals  IntervalsConfig `mapstructure:"intervals"`
	Retry      RetryConfig     `mapstructure:"retry"`
}

type IntervalsConfig struct {
	Export   time.Duration `mapstructure:"export"`
	Import   time.Duration `mapstructure:"import"`
	Snapshot time.Duration `mapstructure:"snapshot"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

type TierConfig struct {
	Minute int64 `mapstructure:"minute"`
	Hour   int64 `mapstructure:"hour"`
	Day    int64 `mapstructure:"day"`
}

type RateLimitConfig struct {
	Profiles           map[string]TierConfig `mapstructure:"profiles"`
	WarningThreshold   float64               `mapstructure:"warning_threshold"`
	SoftBlockThreshold float64               `mapstructure:"soft_block_threshold"`
	GracePeriod        time.Duration         `mapstructure:"grace_period"`
	BreakerThreshold   int                   `mapstructure:"breaker_threshold"`
	BreakerOpenFor     time.Duration         `mapstructure:"breaker_open_for"`
}

type CacheConfig struct {
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (SYNCGW_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		// a missing file keeps the defaults; a broken one is an error
		if err := v.MergeInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("merge config %s: %w", path, err)
		}
	}

	// env override (SYNCGW_*), nested keys use "_" (SYNCGW_NETWORK_SIDE)
	v.SetEnvPrefix("SYNCGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the workers cannot run with.
func (c Config) Validate() error {
	switch c.Network.Side {
	case SideRequest, SideResponse:
	default:
		return fmt.Errorf("network.side must be %q or %q, got %q", SideRequest, SideResponse, c.Network.Side)
	}
	if c.Transfer.BatchSize <= 0 {
		return fmt.Errorf("transfer.batch_size must be positive")
	}
	if strings.TrimSpace(c.Transfer.ExportDir) == "" || strings.TrimSpace(c.Transfer.ImportDir) == "" {
		return fmt.Errorf("transfer.export_dir and transfer.import_dir are required")
	}
	if len(c.RateLimit.Profiles) == 0 {
		return fmt.Errorf("rate_limit.profiles is empty")
	}
	for name, t := range c.RateLimit.Profiles {
		if t.Minute <= 0 || t.Hour <= 0 || t.Day <= 0 {
			return fmt.Errorf("rate_limit.profiles.%s: limits must be positive", name)
		}
	}
	return nil
}
