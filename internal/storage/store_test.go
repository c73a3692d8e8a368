package storage

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"predictivelab/internal/model"
)

func sampleRun(id, createdAt string) model.RunRecord {
	return Stamp(model.RunRecord{
		ID:           id,
		CreatedAtUTC: createdAt,
		Preset:       "recovery",
		Mode:         model.ModeHealthy,
		Controls:     model.Controls{Precision: 82, Noise: 27, Load: 31},
		Seed:         9,
		Ticks:        600,
		Dt:           1.0 / 60,
		Summary: model.RunSummary{
			MeanError:       0.12,
			RegimeOccupancy: map[string]float64{"transitional": 0.25, "adaptive, low error": 0.75},
		},
		Final:      model.Signals{Error: 0.1, Confidence: 0.8, Balance: 0.6},
		FinalState: "adaptive, low error",
	})
}

// exerciseStore runs the shared contract against any backend.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	older := sampleRun("run-a", "2026-01-01T00:00:00Z")
	newer := sampleRun("run-b", "2026-02-01T00:00:00Z")
	for _, run := range []model.RunRecord{older, newer} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}

	loaded, ok, err := store.GetRun(ctx, older.ID)
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(older, loaded); diff != "" {
		t.Fatalf("run mismatch (-want +got):\n%s", diff)
	}

	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing run, ok=%v err=%v", ok, err)
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != newer.ID || runs[1].ID != older.ID {
		t.Fatalf("expected newest first, got %+v", runs)
	}
	limited, err := store.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("list runs limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != newer.ID {
		t.Fatalf("unexpected limited list: %+v", limited)
	}

	trace := []model.SignalSample{
		{Tick: 1, Time: 1.0 / 60, Regime: "transitional", Signals: model.Signals{Error: 0.3, Confidence: 0.1}},
		{Tick: 2, Time: 2.0 / 60, Regime: "transitional", Signals: model.Signals{Error: 0.28, Confidence: 0.12}},
	}
	if err := store.SaveTrace(ctx, older.ID, trace); err != nil {
		t.Fatalf("save trace: %v", err)
	}
	gotTrace, ok, err := store.GetTrace(ctx, older.ID)
	if err != nil || !ok {
		t.Fatalf("get trace: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(trace, gotTrace); diff != "" {
		t.Fatalf("trace mismatch (-want +got):\n%s", diff)
	}
	if _, ok, err := store.GetTrace(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing trace, ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreContract(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveRun(context.Background(), sampleRun("x", "2026-01-01T00:00:00Z")); err == nil {
		t.Fatal("expected error before init")
	}
}

func TestDecodeRunRejectsVersionMismatch(t *testing.T) {
	run := sampleRun("v", "2026-01-01T00:00:00Z")
	run.CodecVersion = 99
	payload, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeRun(payload); err != ErrVersionMismatch {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}
