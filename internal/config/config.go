// Package config loads the server configuration from an optional YAML file
// and command-line flags.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cwbudde/adaptivexp/internal/opt"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds everything the serve command needs.
type Config struct {
	Addr             string          `yaml:"addr"`
	LogLevel         string          `yaml:"log_level"`
	StrictObjectives bool            `yaml:"strict_objectives"`
	ShutdownTimeout  time.Duration   `yaml:"shutdown_timeout"`
	TraceDir         string          `yaml:"trace_dir"` // empty disables the trial trace
	Optimizer        OptimizerConfig `yaml:"optimizer"`
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
	CORS             CORSConfig      `yaml:"cors"`
}

// OptimizerConfig selects and tunes the optimizer backend.
type OptimizerConfig struct {
	Backend       string `yaml:"backend"` // random, mayfly
	Seed          int64  `yaml:"seed"`
	MaxIterations int    `yaml:"max_iterations"`
	Population    int    `yaml:"population"`
}

// RateLimitConfig throttles requests per client address. RPS <= 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Addr:            ":8000",
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		Optimizer: OptimizerConfig{
			Backend:       opt.BackendMayfly,
			Seed:          42,
			MaxIterations: 100,
			Population:    opt.MinPopulation,
		},
		RateLimit: RateLimitConfig{
			RPS:   50,
			Burst: 100,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

// Load reads the YAML file at path on top of the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// AddFlags binds the overridable fields to fs. Flag defaults are the
// current values of c, so call it after Load.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "HTTP listen address")
	fs.BoolVar(&c.StrictObjectives, "strict-objectives", c.StrictObjectives, "Reject trial results that omit the primary objective")
	fs.StringVar(&c.TraceDir, "trace-dir", c.TraceDir, "Directory for per-experiment trial traces (empty disables)")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "Graceful shutdown timeout")
	fs.StringVar(&c.Optimizer.Backend, "optimizer", c.Optimizer.Backend, "Optimizer backend: random, mayfly")
	fs.Int64Var(&c.Optimizer.Seed, "seed", c.Optimizer.Seed, "Random seed")
	fs.IntVar(&c.Optimizer.MaxIterations, "iters", c.Optimizer.MaxIterations, "Max swarm iterations (mayfly)")
	fs.IntVar(&c.Optimizer.Population, "pop", c.Optimizer.Population, "Swarm population size (mayfly)")
	fs.Float64Var(&c.RateLimit.RPS, "rate-limit", c.RateLimit.RPS, "Requests per second per client (0 disables)")
	fs.IntVar(&c.RateLimit.Burst, "rate-burst", c.RateLimit.Burst, "Request burst per client")
	fs.StringSliceVar(&c.CORS.AllowedOrigins, "cors-origin", c.CORS.AllowedOrigins, "Allowed CORS origins")
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return &FieldError{Field: "log_level", Reason: "must be debug, info, warn, or error"}
	}
	if c.Addr == "" {
		return &FieldError{Field: "addr", Reason: "cannot be empty"}
	}
	if c.ShutdownTimeout <= 0 {
		return &FieldError{Field: "shutdown_timeout", Reason: "must be positive"}
	}

	switch c.Optimizer.Backend {
	case opt.BackendRandom:
	case opt.BackendMayfly:
		if c.Optimizer.MaxIterations <= 0 {
			return &FieldError{Field: "optimizer.max_iterations", Reason: "must be positive"}
		}
		if c.Optimizer.Population < opt.MinPopulation {
			return &FieldError{Field: "optimizer.population", Reason: fmt.Sprintf("must be at least %d", opt.MinPopulation)}
		}
	default:
		return &FieldError{Field: "optimizer.backend", Reason: "must be random or mayfly"}
	}

	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		return &FieldError{Field: "rate_limit.burst", Reason: "must be positive when rate limiting is enabled"}
	}
	return nil
}

// OptimizerFactory builds the factory for the configured backend.
func (c *Config) OptimizerFactory() (opt.Factory, error) {
	o := c.Optimizer
	return opt.NewFactory(o.Backend, o.Seed, o.MaxIterations, o.Population)
}

// FieldError describes an invalid configuration field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return "invalid config: " + e.Field + " " + e.Reason
}
