package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/adaptivexp/internal/config"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	config.Default().AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestResolveConfig_Defaults(t *testing.T) {
	cfg, err := resolveConfig("", serveFlags(t))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestResolveConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
strict_objectives: true
shutdown_timeout: 3s
optimizer:
  backend: random
  seed: 7
cors:
  allowed_origins: ["http://a.example"]
`), 0644))

	cfg, err := resolveConfig(path, serveFlags(t, "--seed=11", "--cors-origin=http://b.example,http://c.example"))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.True(t, cfg.StrictObjectives)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "random", cfg.Optimizer.Backend)
	assert.Equal(t, int64(11), cfg.Optimizer.Seed)
	assert.Equal(t, []string{"http://b.example", "http://c.example"}, cfg.CORS.AllowedOrigins)
}

func TestResolveConfig_Invalid(t *testing.T) {
	_, err := resolveConfig("", serveFlags(t, "--optimizer=annealing"))
	assert.Error(t, err)

	_, err = resolveConfig(filepath.Join(t.TempDir(), "missing.yaml"), serveFlags(t))
	assert.Error(t, err)
}
