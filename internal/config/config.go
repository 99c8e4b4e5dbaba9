package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading service.
type Config struct {
	AppName            string
	AppEnv             string
	AppPort            string
	DatabaseURL        string
	RedisURL           string
	SandboxURL         string
	SandboxRunTimeout  time.Duration
	SandboxMaxRetries  int
	SandboxRetryDelay  time.Duration
	SandboxMaxInflight int
	TestCaseBatchSize  int
	JobCacheTTL        time.Duration
	TriggerRateLimit   int
	TriggerRateWindow  time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SKORA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "SKORA Grading API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("sandbox.url", "https://emkc.org/api/v2/piston")
	v.SetDefault("sandbox.run_timeout_ms", 10000)
	v.SetDefault("sandbox.max_retries", 2)
	v.SetDefault("sandbox.retry_delay_ms", 500)
	v.SetDefault("sandbox.max_inflight", 20)
	v.SetDefault("testcase.batch_size", 5)
	v.SetDefault("job.cache_ttl", "3s")
	v.SetDefault("trigger.rate_limit", 10)
	v.SetDefault("trigger.rate_window", "1m")

	cacheTTL, err := time.ParseDuration(v.GetString("job.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid job cache ttl: %w", err)
	}

	rateWindow, err := time.ParseDuration(v.GetString("trigger.rate_window"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid trigger rate window: %w", err)
	}

	cfg := Config{
		AppName:            v.GetString("app.name"),
		AppEnv:             v.GetString("app.env"),
		AppPort:            v.GetString("app.port"),
		DatabaseURL:        v.GetString("database.url"),
		RedisURL:           v.GetString("redis.url"),
		SandboxURL:         strings.TrimRight(v.GetString("sandbox.url"), "/"),
		SandboxRunTimeout:  time.Duration(v.GetInt("sandbox.run_timeout_ms")) * time.Millisecond,
		SandboxMaxRetries:  v.GetInt("sandbox.max_retries"),
		SandboxRetryDelay:  time.Duration(v.GetInt("sandbox.retry_delay_ms")) * time.Millisecond,
		SandboxMaxInflight: v.GetInt("sandbox.max_inflight"),
		TestCaseBatchSize:  v.GetInt("testcase.batch_size"),
		JobCacheTTL:        cacheTTL,
		TriggerRateLimit:   v.GetInt("trigger.rate_limit"),
		TriggerRateWindow:  rateWindow,
	}

	if cfg.SandboxURL == "" {
		return Config{}, fmt.Errorf("sandbox url must be provided")
	}

	if cfg.SandboxRunTimeout <= 0 {
		cfg.SandboxRunTimeout = 10 * time.Second
	}

	if cfg.SandboxMaxRetries < 0 {
		cfg.SandboxMaxRetries = 2
	}

	if cfg.SandboxRetryDelay <= 0 {
		cfg.SandboxRetryDelay = 500 * time.Millisecond
	}

	if cfg.SandboxMaxInflight <= 0 {
		cfg.SandboxMaxInflight = 20
	}

	if cfg.TestCaseBatchSize <= 0 {
		cfg.TestCaseBatchSize = 5
	}

	return cfg, nil
}
