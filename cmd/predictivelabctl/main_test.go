package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictivelab/internal/config"
	"predictivelab/internal/model"
	"predictivelab/internal/stats"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PREDICTIVELAB_STORE", "")
	t.Setenv("PREDICTIVELAB_DB_PATH", "")
	t.Setenv("PREDICTIVELAB_LOG_LEVEL", "")

	full := append([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "--log-file", filepath.Join(t.TempDir(), "lab.log")}, args...)
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(full)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommandPrintsSummary(t *testing.T) {
	out, err := execute(t, "run", "--store", "memory", "--preset", "recovery", "--seconds", "2", "--seed", "3", "--perturb-at", "0.5")
	require.NoError(t, err)
	assert.Contains(t, out, "preset=recovery mode=healthy seed=3 ticks=120")
	assert.Contains(t, out, "controls precision=82 noise=27 load=31")
	assert.Contains(t, out, "perturbation t=0.5")
	assert.Contains(t, out, "occupancy ")
	assert.Contains(t, out, "final_state=")
}

func TestRunCommandRejectsDtAboveMax(t *testing.T) {
	_, err := execute(t, "run", "--store", "memory", "--seconds", "10", "--dt", "0.1", "--perturb-at", "2,6,8")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dt must be in")
}

func TestRunCommandJSONWithManualControls(t *testing.T) {
	out, err := execute(t, "run", "--store", "memory", "--seconds", "0.5", "--seed", "1",
		"--precision", "10", "--noise", "90", "--load", "95", "--mode", "depressed", "--json")
	require.NoError(t, err)

	var run model.RunRecord
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Equal(t, "custom", run.Preset)
	assert.Equal(t, model.ModeDepressed, run.Mode)
	assert.Equal(t, model.Controls{Precision: 10, Noise: 90, Load: 95}, run.Controls)
}

func TestRunCommandRejectsPartialControls(t *testing.T) {
	_, err := execute(t, "run", "--store", "memory", "--precision", "10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be given together")
}

func TestRunCommandRejectsUnknownPreset(t *testing.T) {
	_, err := execute(t, "run", "--store", "memory", "--preset", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown preset")
}

func TestSweepCommand(t *testing.T) {
	out, err := execute(t, "sweep", "--store", "memory", "--seconds", "0.5", "--seed", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "preset=baseline "))
	assert.True(t, strings.HasPrefix(lines[1], "preset=overload "))
	assert.True(t, strings.HasPrefix(lines[2], "preset=recovery "))
}

func TestPresetsCommandIncludesConfiguredPresets(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "lab.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("presets:\n  - name: calm\n    mode: healthy\n    precision: 90\n    noise: 5\n    load: 5\n"), 0o644))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", cfgPath, "--log-file", filepath.Join(t.TempDir(), "lab.log"), "presets", "--json"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	var items []struct {
		Name string `json:"name"`
		Mode string `json:"mode"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &items))
	require.Len(t, items, 4)
	assert.Equal(t, "baseline", items[0].Name)
	assert.Equal(t, "calm", items[3].Name)
}

func TestRunsCommandEmptyStore(t *testing.T) {
	out, err := execute(t, "runs", "--store", "memory")
	require.NoError(t, err)
	assert.Equal(t, "no runs found\n", out)

	_, err = execute(t, "runs", "--store", "memory", "--limit", "0")
	require.Error(t, err)
}

func TestTraceAndExportNeedARun(t *testing.T) {
	_, err := execute(t, "trace", "--store", "memory", "--latest")
	require.Error(t, err)

	_, err = execute(t, "export", "--store", "memory")
	require.EqualError(t, err, "export requires --run-id or --latest")

	_, err = execute(t, "export", "--store", "memory", "--run-id", "x", "--latest")
	require.EqualError(t, err, "use either --run-id or --latest, not both")
}

func TestInvalidStoreFlag(t *testing.T) {
	_, err := execute(t, "runs", "--store", "redis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store kind")
}

func TestLiveCommandWithDuration(t *testing.T) {
	out, err := execute(t, "live", "--store", "memory", "--duration", "100ms", "--seed", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "ticks=")
	assert.NotContains(t, out, "recorded run_id")
}

func TestPlotTrace(t *testing.T) {
	samples := []model.SignalSample{
		{Tick: 1, Time: 0.5, Signals: model.Signals{Error: 0.6, Confidence: 0.2}},
		{Tick: 2, Time: 1.0, Signals: model.Signals{Error: 0.3, Confidence: 0.5}},
		{Tick: 3, Time: 1.5, Signals: model.Signals{Error: 0.2, Confidence: 0.7}},
	}
	plot := plotTrace(samples, 40)
	assert.Contains(t, plot, "confidence / error over 1.5s")
	assert.Equal(t, "trace too short to plot", plotTrace(samples[:1], 40))
}

func TestTraceFromExportedDirectory(t *testing.T) {
	samples := []model.SignalSample{
		{Tick: 1, Time: 0.5, Regime: "transitional", Signals: model.Signals{Error: 0.6, Confidence: 0.2}},
		{Tick: 2, Time: 1.0, Regime: "transitional", Signals: model.Signals{Error: 0.3, Confidence: 0.5}},
	}
	dir, err := stats.WriteRunArtifacts(t.TempDir(), model.RunRecord{ID: "exported-run", Ticks: 2}, samples)
	require.NoError(t, err)

	out, err := execute(t, "trace", "--from", dir)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "tick=2 t=1.000 "))

	_, err = execute(t, "trace", "--from", dir, "--latest")
	require.Error(t, err)
	_, err = execute(t, "trace", "--from", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestConfigInitWritesLoadableFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "lab.yaml")

	out, err := execute(t, "--config", cfgPath, "--store", "sqlite", "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+cfgPath)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Kind)
	assert.Equal(t, config.Default().Lab, cfg.Lab)

	_, err = execute(t, "--config", cfgPath, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "--config", cfgPath, "config", "init", "--force")
	require.NoError(t, err)
}
