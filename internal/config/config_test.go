package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
addr: ":9090"
log_level: debug
strict_objectives: true
shutdown_timeout: 3s
trace_dir: /var/lib/adaptivexp
optimizer:
  backend: random
  seed: 7
rate_limit:
  rps: 0
cors:
  allowed_origins: ["https://lab.example.com"]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.StrictObjectives)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/var/lib/adaptivexp", cfg.TraceDir)
	assert.Equal(t, "random", cfg.Optimizer.Backend)
	assert.Equal(t, int64(7), cfg.Optimizer.Seed)
	// Unset fields keep their defaults
	assert.Equal(t, 100, cfg.Optimizer.MaxIterations)
	assert.Equal(t, []string{"https://lab.example.com"}, cfg.CORS.AllowedOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: [unclosed"), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestAddFlagsOverrideFile(t *testing.T) {
	cfg := Default()
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	cfg.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{"--addr", ":7000", "--optimizer", "random", "--cors-origin", "a,b", "--trace-dir", "traces"}))
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, "random", cfg.Optimizer.Backend)
	assert.Equal(t, []string{"a", "b"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "traces", cfg.TraceDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"addr", func(c *Config) { c.Addr = "" }, "addr"},
		{"backend", func(c *Config) { c.Optimizer.Backend = "bayes" }, "optimizer.backend"},
		{"population", func(c *Config) { c.Optimizer.Population = 5 }, "optimizer.population"},
		{"iterations", func(c *Config) { c.Optimizer.MaxIterations = 0 }, "optimizer.max_iterations"},
		{"burst", func(c *Config) { c.RateLimit.Burst = 0 }, "rate_limit.burst"},
		{"shutdown", func(c *Config) { c.ShutdownTimeout = 0 }, "shutdown_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			var ferr *FieldError
			require.ErrorAs(t, err, &ferr)
			assert.Equal(t, tt.field, ferr.Field)
		})
	}
}

func TestOptimizerFactory(t *testing.T) {
	cfg := Default()
	cfg.Optimizer.Backend = "random"

	factory, err := cfg.OptimizerFactory()
	require.NoError(t, err)
	_, err = factory("e", nil)
	assert.NoError(t, err)
}
