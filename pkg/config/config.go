package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from environment variables or config files.
type Config struct {
	AppEnv          string        `mapstructure:"APP_ENV" validate:"required,oneof=development staging production test"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"required"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"required,oneof=json console"`

	StoreDriver  string        `mapstructure:"STORE_DRIVER" validate:"required,oneof=postgres badger"`
	DatabaseURL  string        `mapstructure:"DATABASE_URL" validate:"required_if=StoreDriver postgres,omitempty,url|uri"`
	BadgerPath   string        `mapstructure:"BADGER_PATH"`
	StoreTimeout time.Duration `mapstructure:"STORE_TIMEOUT" validate:"required"`
	TxMaxRetries int           `mapstructure:"TX_MAX_RETRIES" validate:"gte=0,lte=50"`

	// ProjectionMaxDepth caps traversal depth of outline projections.
	ProjectionMaxDepth int `mapstructure:"PROJECTION_MAX_DEPTH" validate:"gte=1,lte=100000"`

	JWTSecret string `mapstructure:"JWT_SECRET" validate:"required_if=AppEnv production"`
	// RateLimitRPS is requests per second per client IP. Zero disables it.
	RateLimitRPS float64 `mapstructure:"RATE_LIMIT_RPS" validate:"gte=0"`

	RedisAddr        string        `mapstructure:"REDIS_ADDR" validate:"required,hostname_port"`
	RedisPassword    string        `mapstructure:"REDIS_PASSWORD"`
	AsynqConcurrency int           `mapstructure:"ASYNQ_CONCURRENCY" validate:"gte=1,lte=1000"`
	AuditInterval    time.Duration `mapstructure:"AUDIT_INTERVAL"`

	OTelStdout bool `mapstructure:"OTEL_STDOUT"`

	GoMaxProcs int `mapstructure:"GOMAXPROCS" validate:"gte=0,lte=4096"`
}

var (
	cfg      *Config
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Load initializes configuration using Viper. It loads from .env if present,
// applies defaults, binds env vars, and validates the result.
func Load() (*Config, error) {
	// Load .env if present (non-fatal)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", "0.0.0.0:8080")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("TX_MAX_RETRIES", 8)
	v.SetDefault("PROJECTION_MAX_DEPTH", 512)
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("ASYNQ_CONCURRENCY", 10)
	v.SetDefault("AUDIT_INTERVAL", "0s")
	v.SetDefault("OTEL_STDOUT", false)
	v.SetDefault("GOMAXPROCS", 0)

	// Optional config file
	_ = v.ReadInConfig()

	keys := []string{
		"APP_ENV",
		"HTTP_ADDR",
		"SHUTDOWN_TIMEOUT",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"STORE_DRIVER",
		"DATABASE_URL",
		"BADGER_PATH",
		"STORE_TIMEOUT",
		"TX_MAX_RETRIES",
		"PROJECTION_MAX_DEPTH",
		"JWT_SECRET",
		"RATE_LIMIT_RPS",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"ASYNQ_CONCURRENCY",
		"AUDIT_INTERVAL",
		"OTEL_STDOUT",
		"GOMAXPROCS",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	// Durations may arrive as plain strings from the environment.
	for key, dst := range map[string]*time.Duration{
		"SHUTDOWN_TIMEOUT": &c.ShutdownTimeout,
		"STORE_TIMEOUT":    &c.StoreTimeout,
		"AUDIT_INTERVAL":   &c.AuditInterval,
	} {
		if s := v.GetString(key); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.GoMaxProcs > 0 {
		runtime.GOMAXPROCS(c.GoMaxProcs)
	}

	cfg = &c
	return cfg, nil
}

// MustLoad loads configuration or exits the process on failure.
func MustLoad() *Config {
	c, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return c
}

// Get returns the loaded configuration. Panics if not loaded.
func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call config.Load or config.MustLoad first")
	}
	return cfg
}

// IsDevelopment reports whether verbose store logging should be enabled.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "test"
}
