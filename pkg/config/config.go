package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the api, worker and cli processes.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	PostgresURL      string `mapstructure:"POSTGRES_URL"`
	PostgresHost     string `mapstructure:"POSTGRES_HOST"`
	PostgresPort     string `mapstructure:"POSTGRES_PORT"`
	PostgresUser     string `mapstructure:"POSTGRES_USER"`
	PostgresPassword string `mapstructure:"POSTGRES_PASSWORD"`
	PostgresDB       string `mapstructure:"POSTGRES_DB"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	WorkerConcurrency     int `mapstructure:"WORKER_CONCURRENCY"`
	TaskTimeoutSeconds    int `mapstructure:"TASK_TIMEOUT_SECONDS"`
	TaskMaxAttempts       int `mapstructure:"TASK_MAX_ATTEMPTS"`
	TaskPollIntervalMS    int `mapstructure:"TASK_POLL_INTERVAL_MS"`
	TaskVisibilitySeconds int `mapstructure:"TASK_VISIBILITY_SECONDS"`

	CrawlConcurrency         int     `mapstructure:"CRAWL_CONCURRENCY"`
	CrawlTimeoutSeconds      int     `mapstructure:"CRAWL_TIMEOUT_SECONDS"`
	ProbeTimeoutSeconds      int     `mapstructure:"PROBE_TIMEOUT_SECONDS"`
	DispatchJitterMS         int     `mapstructure:"DISPATCH_JITTER_MS"`
	FinalizeDelayMS          int     `mapstructure:"FINALIZE_DELAY_MS"`
	MaxRedirects             int     `mapstructure:"MAX_REDIRECTS"`
	MaxPageBytes             int64   `mapstructure:"MAX_PAGE_BYTES"`
	ExternalLinksPerPage     int     `mapstructure:"EXTERNAL_LINKS_PER_PAGE"`
	ExternalValidationSample int     `mapstructure:"EXTERNAL_VALIDATION_SAMPLE"`
	LinkValidationWorkers    int     `mapstructure:"LINK_VALIDATION_WORKERS"`
	DefaultPagesLimit        int     `mapstructure:"DEFAULT_PAGES_LIMIT"`
	DefaultCrawlDepth        int     `mapstructure:"DEFAULT_CRAWL_DEPTH"`
	MaxPagesLimit            int     `mapstructure:"MAX_PAGES_LIMIT"`
	MaxCrawlDepth            int     `mapstructure:"MAX_CRAWL_DEPTH"`
	HostRateLimit            float64 `mapstructure:"HOST_RATE_LIMIT"`
	UserAgent                string  `mapstructure:"USER_AGENT"`
	ProxyURLs                string  `mapstructure:"PROXY_URLS"`

	PerfProbeEnabled        bool `mapstructure:"PERF_PROBE_ENABLED"`
	PerfSamplePages         int  `mapstructure:"PERF_SAMPLE_PAGES"`
	PerfProbeTimeoutSeconds int  `mapstructure:"PERF_PROBE_TIMEOUT_SECONDS"`

	ScoreWeightOnpage      float64 `mapstructure:"SCORE_WEIGHT_ONPAGE"`
	ScoreWeightContent     float64 `mapstructure:"SCORE_WEIGHT_CONTENT"`
	ScoreWeightTechnical   float64 `mapstructure:"SCORE_WEIGHT_TECHNICAL"`
	ScoreWeightLinks       float64 `mapstructure:"SCORE_WEIGHT_LINKS"`
	ScoreWeightPerformance float64 `mapstructure:"SCORE_WEIGHT_PERFORMANCE"`
	ScoreWeightSecurity    float64 `mapstructure:"SCORE_WEIGHT_SECURITY"`

	GradeAMin int `mapstructure:"GRADE_A_MIN"`
	GradeBMin int `mapstructure:"GRADE_B_MIN"`
	GradeCMin int `mapstructure:"GRADE_C_MIN"`
	GradeDMin int `mapstructure:"GRADE_D_MIN"`
}

var defaults = map[string]any{
	"SERVER_PORT": "8080",
	"LOG_LEVEL":   "info",

	"POSTGRES_URL":      "",
	"POSTGRES_HOST":     "localhost",
	"POSTGRES_PORT":     "5432",
	"POSTGRES_USER":     "user",
	"POSTGRES_PASSWORD": "password",
	"POSTGRES_DB":       "seoaudit",

	"REDIS_ADDR":     "localhost:6379",
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"WORKER_CONCURRENCY":      10,
	"TASK_TIMEOUT_SECONDS":    90,
	"TASK_MAX_ATTEMPTS":       2,
	"TASK_POLL_INTERVAL_MS":   250,
	"TASK_VISIBILITY_SECONDS": 120,

	"CRAWL_CONCURRENCY":          3,
	"CRAWL_TIMEOUT_SECONDS":      20,
	"PROBE_TIMEOUT_SECONDS":      10,
	"DISPATCH_JITTER_MS":         1500,
	"FINALIZE_DELAY_MS":          3000,
	"MAX_REDIRECTS":              5,
	"MAX_PAGE_BYTES":             5 * 1024 * 1024,
	"EXTERNAL_LINKS_PER_PAGE":    25,
	"EXTERNAL_VALIDATION_SAMPLE": 50,
	"LINK_VALIDATION_WORKERS":    8,
	"DEFAULT_PAGES_LIMIT":        100,
	"DEFAULT_CRAWL_DEPTH":        3,
	"MAX_PAGES_LIMIT":            1000,
	"MAX_CRAWL_DEPTH":            10,
	"HOST_RATE_LIMIT":            5.0,
	"USER_AGENT":                 "SEOAuditBot/1.0 (+https://example.com/bot)",
	"PROXY_URLS":                 "",

	"PERF_PROBE_ENABLED":         false,
	"PERF_SAMPLE_PAGES":          3,
	"PERF_PROBE_TIMEOUT_SECONDS": 45,

	"SCORE_WEIGHT_ONPAGE":      0.25,
	"SCORE_WEIGHT_CONTENT":     0.15,
	"SCORE_WEIGHT_TECHNICAL":   0.20,
	"SCORE_WEIGHT_LINKS":       0.10,
	"SCORE_WEIGHT_PERFORMANCE": 0.20,
	"SCORE_WEIGHT_SECURITY":    0.10,

	"GRADE_A_MIN": 90,
	"GRADE_B_MIN": 80,
	"GRADE_C_MIN": 70,
	"GRADE_D_MIN": 60,
}

// Load reads configuration from a .env file and the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// The .env file is optional; production is configured through the environment.
	_ = v.ReadInConfig()

	// Every key needs a default, otherwise Unmarshal never sees env-only values.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration with every key at its default value.
func Default() *Config {
	cfg := &Config{}
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	_ = v.Unmarshal(cfg)
	return cfg
}

// PostgresDSN returns POSTGRES_URL when set and builds a DSN from the parts otherwise.
func (c *Config) PostgresDSN() string {
	if c.PostgresURL != "" {
		return c.PostgresURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDB)
}

// Proxies splits PROXY_URLS on commas.
func (c *Config) Proxies() []string {
	var out []string
	for _, p := range strings.Split(c.ProxyURLs, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}

func (c *Config) TaskPollInterval() time.Duration {
	return time.Duration(c.TaskPollIntervalMS) * time.Millisecond
}

func (c *Config) TaskVisibility() time.Duration {
	return time.Duration(c.TaskVisibilitySeconds) * time.Second
}

func (c *Config) CrawlTimeout() time.Duration {
	return time.Duration(c.CrawlTimeoutSeconds) * time.Second
}

func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

func (c *Config) DispatchJitter() time.Duration {
	return time.Duration(c.DispatchJitterMS) * time.Millisecond
}

func (c *Config) FinalizeDelay() time.Duration {
	return time.Duration(c.FinalizeDelayMS) * time.Millisecond
}

func (c *Config) PerfProbeTimeout() time.Duration {
	return time.Duration(c.PerfProbeTimeoutSeconds) * time.Second
}
