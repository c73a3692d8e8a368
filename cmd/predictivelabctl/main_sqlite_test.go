//go:build sqlite

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictivelab/internal/model"
)

func TestSQLiteRunThenInspect(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "lab.db")
	outDir := filepath.Join(t.TempDir(), "exports")

	out, err := execute(t, "run", "--store", "sqlite", "--db-path", dbPath, "--preset", "overload", "--seconds", "1", "--seed", "8", "--json")
	require.NoError(t, err)
	var run model.RunRecord
	require.NoError(t, json.Unmarshal([]byte(out), &run))

	out, err = execute(t, "runs", "--store", "sqlite", "--db-path", dbPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "run_id="+run.ID))

	out, err = execute(t, "trace", "--store", "sqlite", "--db-path", dbPath, "--latest", "--csv")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), run.Ticks+1)

	out, err = execute(t, "export", "--store", "sqlite", "--db-path", dbPath, "--run-id", run.ID, "--out", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "exported run_id="+run.ID)
	_, err = os.Stat(filepath.Join(outDir, run.ID, "signals.csv"))
	require.NoError(t, err)
}
