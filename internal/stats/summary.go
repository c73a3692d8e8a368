// Package stats condenses signal traces into run summaries and writes them out
// as CSV series and JSON artifacts.
package stats

import (
	"math"
	"sort"

	"predictivelab/internal/model"
)

// RecoveryTolerance is how close to its pre-shock level the error must fall
// before a perturbation counts as recovered.
const RecoveryTolerance = 0.02

// NotRecovered marks a perturbation whose error never settled inside the trace.
const NotRecovered = -1.0

// Summarize reduces a trace to averages, peaks, regime occupancy and the
// recovery time after each perturbation. perturbAt holds simulation times in
// seconds and may be empty.
func Summarize(samples []model.SignalSample, perturbAt []float64) model.RunSummary {
	if len(samples) == 0 {
		return model.RunSummary{}
	}

	var summary model.RunSummary
	occupancy := make(map[string]float64)
	errs := make([]float64, 0, len(samples))
	conf := make([]float64, 0, len(samples))
	balance := make([]float64, 0, len(samples))
	for _, sample := range samples {
		errs = append(errs, sample.Error)
		conf = append(conf, sample.Confidence)
		balance = append(balance, sample.Balance)
		occupancy[sample.Regime]++
	}
	for regime := range occupancy {
		occupancy[regime] /= float64(len(samples))
	}

	summary.MeanError = mean(errs)
	summary.PeakError = maxFloat(errs)
	summary.MeanConfidence = mean(conf)
	summary.MeanBalance = mean(balance)
	summary.FinalBalance = samples[len(samples)-1].Balance
	summary.RegimeOccupancy = occupancy
	summary.RecoverySeconds = recoveryTimes(samples, perturbAt)
	return summary
}

func recoveryTimes(samples []model.SignalSample, perturbAt []float64) []float64 {
	if len(perturbAt) == 0 {
		return nil
	}
	times := append([]float64(nil), perturbAt...)
	sort.Float64s(times)

	out := make([]float64, 0, len(times))
	for i, at := range times {
		until := math.Inf(1)
		if i+1 < len(times) {
			until = times[i+1]
		}
		out = append(out, recoveryAfter(samples, at, until))
	}
	return out
}

// recoveryAfter measures from at to the first sample, past the error peak of
// the window [at, until), whose error is back within RecoveryTolerance of the
// last pre-shock value.
func recoveryAfter(samples []model.SignalSample, at, until float64) float64 {
	start := sort.Search(len(samples), func(i int) bool { return samples[i].Time >= at })
	if start >= len(samples) {
		return NotRecovered
	}
	baseline := samples[start].Error
	if start > 0 {
		baseline = samples[start-1].Error
	}

	end := start
	peak := start
	for end < len(samples) && samples[end].Time < until {
		if samples[end].Error > samples[peak].Error {
			peak = end
		}
		end++
	}
	for i := peak; i < end; i++ {
		if samples[i].Error <= baseline+RecoveryTolerance {
			return samples[i].Time - at
		}
	}
	return NotRecovered
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func maxFloat(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	best := values[0]
	for _, v := range values[1:] {
		if v > best {
			best = v
		}
	}
	return best
}
