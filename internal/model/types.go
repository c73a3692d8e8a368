package model

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidMode = errors.New("invalid mode")

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type Mode string

const (
	ModeHealthy   Mode = "healthy"
	ModeDepressed Mode = "depressed"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.TrimSpace(strings.ToLower(raw))) {
	case ModeHealthy:
		return ModeHealthy, nil
	case ModeDepressed:
		return ModeDepressed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
}

// Controls are the three user-facing sliders, each an integer in [0,100].
type Controls struct {
	Precision int `json:"precision" yaml:"precision"`
	Noise     int `json:"noise" yaml:"noise"`
	Load      int `json:"load" yaml:"load"`
}

// Clamped returns a copy with every control forced into [0,100].
func (c Controls) Clamped() Controls {
	return Controls{
		Precision: clampControl(c.Precision),
		Noise:     clampControl(c.Noise),
		Load:      clampControl(c.Load),
	}
}

func clampControl(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

type ControlKind string

const (
	ControlPrecision ControlKind = "precision"
	ControlNoise     ControlKind = "noise"
	ControlLoad      ControlKind = "load"
)

// Signals is the per-tick snapshot handed to renderers. Every field is in [0,1].
type Signals struct {
	Precision  float64 `json:"precision"`
	Noise      float64 `json:"noise"`
	Load       float64 `json:"load"`
	Error      float64 `json:"error"`
	Confidence float64 `json:"confidence"`
	Balance    float64 `json:"balance"`
}

// Pointer tracks the last known pointer position in widget coordinates.
type Pointer struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Known    bool    `json:"known"`
	Active   bool    `json:"active"`
	Strength float64 `json:"strength"`
}

type RunRecord struct {
	VersionedRecord
	ID           string     `json:"id"`
	CreatedAtUTC string     `json:"created_at_utc"`
	Preset       string     `json:"preset"`
	Mode         Mode       `json:"mode"`
	Controls     Controls   `json:"controls"`
	Seed         int64      `json:"seed"`
	Ticks        int        `json:"ticks"`
	Dt           float64    `json:"dt"`
	Perturbs     []float64  `json:"perturbs,omitempty"`
	Summary      RunSummary `json:"summary"`
	Final        Signals    `json:"final"`
	FinalState   string     `json:"final_state"`
}

type RunSummary struct {
	MeanError       float64            `json:"mean_error"`
	PeakError       float64            `json:"peak_error"`
	MeanConfidence  float64            `json:"mean_confidence"`
	MeanBalance     float64            `json:"mean_balance"`
	FinalBalance    float64            `json:"final_balance"`
	RegimeOccupancy map[string]float64 `json:"regime_occupancy,omitempty"`
	RecoverySeconds []float64          `json:"recovery_seconds,omitempty"`
}

// SignalSample is one persisted tick of a run trace.
type SignalSample struct {
	Tick   int     `json:"tick"`
	Time   float64 `json:"time"`
	Regime string  `json:"regime"`
	Signals
}
