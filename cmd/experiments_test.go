package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/adaptivexp/internal/opt"
	"github.com/cwbudde/adaptivexp/internal/server"
	"github.com/cwbudde/adaptivexp/internal/store"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const specYAML = `name: tradeoff
parameters:
  - name: lr
    type: range
    bounds: [0.001, 0.1]
  - name: act
    type: choice
    values: [relu, tanh]
objectives:
  - name: cost
    minimize: true
  - name: accuracy
`

func startServer(t *testing.T) {
	t.Helper()
	st := store.New(func(name string, params []opt.Parameter) (opt.Optimizer, error) {
		return opt.NewRandom(params, 3)
	})
	srv := httptest.NewServer(server.NewServer("localhost:0", st, server.Options{}).Handler())
	t.Cleanup(srv.Close)

	prev := serverURL
	serverURL = srv.URL
	t.Cleanup(func() { serverURL = prev })
}

func runCommand(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	t.Cleanup(func() { cmd.SetOut(nil) })

	err := cmd.RunE(cmd, args)
	return out.String(), err
}

func TestReadSpec(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "spec.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(specYAML), 0644))
	spec, err := readSpec(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "tradeoff", spec.Name)
	require.Len(t, spec.Parameters, 2)
	assert.Equal(t, opt.Range, spec.Parameters[0].Type)
	assert.Equal(t, []float64{0.001, 0.1}, spec.Parameters[0].Bounds)
	assert.True(t, spec.Objectives[0].Minimize)
	assert.False(t, spec.Objectives[1].Minimize)

	jsonPath := filepath.Join(dir, "spec.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"name": "j", "objectives": [{"name": "o"}]}`), 0644))
	spec, err = readSpec(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "j", spec.Name)

	_, err = readSpec(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestExperimentsCommands(t *testing.T) {
	startServer(t)

	out, err := runCommand(t, expListCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "No experiments found")

	path := filepath.Join(t.TempDir(), "spec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(specYAML), 0644))
	specPath = path

	out, err = runCommand(t, expCreateCmd)
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	out, err = runCommand(t, expNextCmd, id)
	require.NoError(t, err)
	var trial server.TrialResponse
	require.NoError(t, json.Unmarshal([]byte(out), &trial))
	assert.Equal(t, 0, trial.TrialID)
	assert.Contains(t, trial.Parameters, "lr")

	valuesArg = `{"cost": 1, "accuracy": 0.9}`
	metadataArg = `{"run": "a"}`
	out, err = runCommand(t, expCompleteCmd, id, "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Trial 0 completed")

	out, err = runCommand(t, expListCmd)
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Trials: 1 (1 completed)")

	out, err = runCommand(t, expParetoCmd, id)
	require.NoError(t, err)
	assert.Contains(t, out, `"trial_id": 0`)

	_, err = runCommand(t, expCompleteCmd, id, "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_found")

	_, err = runCommand(t, expCompleteCmd, id, "abc")
	assert.Error(t, err)

	out, err = runCommand(t, expDeleteCmd, id)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")

	_, err = runCommand(t, expNextCmd, id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_found")
}

func TestExperimentsTraceCommand(t *testing.T) {
	dir := t.TempDir()
	writer, err := store.NewTraceWriter(dir, "exp-1")
	require.NoError(t, err)
	require.NoError(t, writer.Write(store.TraceEntry{
		ExperimentID: "exp-1",
		TrialID:      4,
		Parameters:   opt.Assignment{"lr": 0.01},
		Objectives:   map[string]float64{"loss": 0.2},
		Feedback:     -0.2,
	}))
	require.NoError(t, writer.Close())

	prev := traceDirArg
	traceDirArg = dir
	defer func() { traceDirArg = prev }()

	out, err := runCommand(t, expTraceCmd, "exp-1")
	require.NoError(t, err)
	assert.Contains(t, out, "1 completed trial(s)")
	assert.Contains(t, out, "Trial 4")
	assert.Contains(t, out, "feedback=-0.2")
	assert.Contains(t, out, "loss:0.2")

	_, err = runCommand(t, expTraceCmd, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestExperimentsCommands_ServerDown(t *testing.T) {
	prev := serverURL
	serverURL = "http://127.0.0.1:1"
	defer func() { serverURL = prev }()

	_, err := runCommand(t, expListCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}
