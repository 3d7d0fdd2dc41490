package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by Validate errors.
var ErrInvalid = errors.New("invalid config")

// Config describes runtime settings. Values come from defaults, then an
// optional YAML file, then environment variables; the CLI applies its flags last.
type Config struct {
	// checker
	Input            string        `yaml:"input" env:"INPUT_FILE" envDefault:"configs.txt"`
	Output           string        `yaml:"output" env:"OUTPUT_FILE" envDefault:"results.csv"`
	Concurrency      int           `yaml:"concurrency" env:"CONCURRENCY" envDefault:"1000"`
	Timeout          time.Duration `yaml:"timeout" env:"PROBE_TIMEOUT" envDefault:"3s"`
	Policy           string        `yaml:"policy" env:"POLICY" envDefault:"chunk"`
	RateLimit        float64       `yaml:"rate_limit" env:"RATE_LIMIT" envDefault:"0"`
	RateBurst        int           `yaml:"rate_burst" env:"RATE_BURST" envDefault:"1"`
	UpstreamProxy    string        `yaml:"upstream_proxy" env:"UPSTREAM_PROXY"`
	BreakerThreshold uint32        `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD" envDefault:"0"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown" env:"BREAKER_COOLDOWN" envDefault:"30s"`
	MetricsFile      string        `yaml:"metrics_file" env:"METRICS_FILE"`

	// storage
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	TasksFile   string `yaml:"tasks_file" env:"TASKS_FILE" envDefault:"runs.json"`

	// web server
	Port           string  `yaml:"port" env:"PORT" envDefault:"8080"`
	MaxLinks       int     `yaml:"max_links" env:"MAX_LINKS" envDefault:"5000"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" envDefault:"20"`

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" envDefault:"text"`
}

func Default() *Config {
	return &Config{
		Input:           "configs.txt",
		Output:          "results.csv",
		Concurrency:     1000,
		Timeout:         3 * time.Second,
		Policy:          "chunk",
		RateBurst:       1,
		BreakerCooldown: 30 * time.Second,
		TasksFile:       "runs.json",
		Port:            "8080",
		MaxLinks:        5000,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load builds the configuration. path names an optional YAML file; when empty
// CONFIG_FILE is consulted. A named file that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	strs := map[string]*string{
		"INPUT_FILE":     &c.Input,
		"OUTPUT_FILE":    &c.Output,
		"POLICY":         &c.Policy,
		"UPSTREAM_PROXY": &c.UpstreamProxy,
		"METRICS_FILE":   &c.MetricsFile,
		"DATABASE_URL":   &c.DatabaseURL,
		"TASKS_FILE":     &c.TasksFile,
		"PORT":           &c.Port,
		"LOG_LEVEL":      &c.LogLevel,
		"LOG_FORMAT":     &c.LogFormat,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CONCURRENCY":      &c.Concurrency,
		"RATE_BURST":       &c.RateBurst,
		"MAX_LINKS":        &c.MaxLinks,
		"RATE_LIMIT_BURST": &c.RateLimitBurst,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			value, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			*dst = value
		}
	}

	floats := map[string]*float64{
		"RATE_LIMIT":     &c.RateLimit,
		"RATE_LIMIT_RPS": &c.RateLimitRPS,
	}
	for key, dst := range floats {
		if v := os.Getenv(key); v != "" {
			value, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"PROBE_TIMEOUT":    &c.Timeout,
		"BREAKER_COOLDOWN": &c.BreakerCooldown,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			dur, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			*dst = dur
		}
	}

	if v := os.Getenv("BREAKER_THRESHOLD"); v != "" {
		value, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("parse BREAKER_THRESHOLD: %w", err)
		}
		c.BreakerThreshold = uint32(value)
	}
	return nil
}

// Validate checks values that would otherwise surface mid-run.
func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive, got %d", ErrInvalid, c.Concurrency)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalid, c.Timeout)
	}
	if c.Policy != "chunk" && c.Policy != "window" {
		return fmt.Errorf("%w: unknown policy %q", ErrInvalid, c.Policy)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must not be negative", ErrInvalid)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.LogFormat)
	}
	return nil
}
