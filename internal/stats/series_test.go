package stats

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"predictivelab/internal/model"
)

func TestWriteCSVHeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, trace(0.25, 0.5)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "tick,time,precision,noise,load,error,confidence,balance,regime", lines[0])
	require.Equal(t, "1,0.1,0,0,0,0.25,0.75,0.5,transitional", lines[1])
}

func TestReadCSVParsesWrittenSeries(t *testing.T) {
	want := trace(0.1, 0.3, 0.7)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, want))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("series mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSVRejectsShortHeader(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("tick,error\n1,0.2\n"))
	require.Error(t, err)
}

func TestWriteAndReadRunArtifacts(t *testing.T) {
	run := model.RunRecord{ID: "run-1", Preset: "baseline", Mode: model.ModeHealthy, Ticks: 3}
	samples := trace(0.2, 0.3, 0.25)

	dir, err := WriteRunArtifacts(t.TempDir(), run, samples)
	require.NoError(t, err)
	require.Equal(t, "run-1", filepath.Base(dir))

	gotRun, gotSamples, err := ReadRunArtifacts(dir)
	require.NoError(t, err)
	require.Equal(t, run.ID, gotRun.ID)
	require.Equal(t, run.Ticks, gotRun.Ticks)
	if diff := cmp.Diff(samples, gotSamples); diff != "" {
		t.Fatalf("samples mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteRunArtifactsRequiresID(t *testing.T) {
	_, err := WriteRunArtifacts(t.TempDir(), model.RunRecord{}, nil)
	require.Error(t, err)
}
