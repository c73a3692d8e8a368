package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictivelab/internal/model"
)

func trace(errors ...float64) []model.SignalSample {
	samples := make([]model.SignalSample, len(errors))
	for i, e := range errors {
		regime := "transitional"
		if e < 0.2 {
			regime = "adaptive, low error"
		}
		samples[i] = model.SignalSample{
			Tick:    i + 1,
			Time:    float64(i+1) * 0.1,
			Regime:  regime,
			Signals: model.Signals{Error: e, Confidence: 1 - e, Balance: 0.5},
		}
	}
	return samples
}

func TestSummarizeEmpty(t *testing.T) {
	require.Equal(t, model.RunSummary{}, Summarize(nil, []float64{1}))
}

func TestSummarizeAggregates(t *testing.T) {
	samples := trace(0.1, 0.3, 0.5, 0.1)
	samples[3].Balance = 0.9

	summary := Summarize(samples, nil)
	assert.InDelta(t, 0.25, summary.MeanError, 1e-12)
	assert.InDelta(t, 0.5, summary.PeakError, 1e-12)
	assert.InDelta(t, 0.75, summary.MeanConfidence, 1e-12)
	assert.InDelta(t, 0.6, summary.MeanBalance, 1e-12)
	assert.InDelta(t, 0.9, summary.FinalBalance, 1e-12)
	assert.InDelta(t, 0.5, summary.RegimeOccupancy["transitional"], 1e-12)
	assert.InDelta(t, 0.5, summary.RegimeOccupancy["adaptive, low error"], 1e-12)
	assert.Nil(t, summary.RecoverySeconds)
}

func TestSummarizeRecoveryAfterPeak(t *testing.T) {
	// shock lands at t=0.3; error climbs, peaks, then settles at t=0.8.
	samples := trace(0.1, 0.1, 0.1, 0.12, 0.6, 0.4, 0.2, 0.11, 0.1)

	summary := Summarize(samples, []float64{0.3})
	require.Len(t, summary.RecoverySeconds, 1)
	assert.InDelta(t, 0.5, summary.RecoverySeconds[0], 1e-9)
}

func TestSummarizeNotRecovered(t *testing.T) {
	samples := trace(0.1, 0.1, 0.6, 0.5, 0.45)

	summary := Summarize(samples, []float64{0.25, 10})
	require.Equal(t, []float64{NotRecovered, NotRecovered}, summary.RecoverySeconds)
}
