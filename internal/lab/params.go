package lab

import (
	"math"

	"predictivelab/internal/model"
)

// Params is the effective parameter set for a single integration step.
// It is derived fresh every tick and never cached.
type Params struct {
	PriorPrecision    float64
	Sigma             float64
	BaseLoad          float64
	Load              float64
	LearningRate      float64
	ActionGain        float64
	HomeoGain         float64
	RecoveryRate      float64
	SetpointAdaptRate float64
}

const (
	basePriorPrecision = 0.6
	priorPrecisionSpan = 30
	priorPrecisionExp  = 2.2

	baseSigma = 0.045
	sigmaSpan = 0.32
	sigmaExp  = 1.35

	baseLearningRate      = 3.2
	baseActionGain        = 1.55
	baseHomeoGain         = 1.1
	baseRecoveryRate      = 0.22
	baseSetpointAdaptRate = 0.06

	loadDynWeight = 0.85
)

// DeriveParams maps controls, mode and the dynamic load accumulator onto the
// gains used by Step. Load attenuation saturates at the clamp floors.
func DeriveParams(c model.Controls, mode model.Mode, loadDyn float64) Params {
	precisionNorm := clamp(float64(c.Precision)/100, 0, 1)
	noiseNorm := clamp(float64(c.Noise)/100, 0, 1)
	baseLoad := clamp(float64(c.Load)/100, 0, 1)

	p := Params{
		PriorPrecision:    basePriorPrecision + math.Pow(precisionNorm, priorPrecisionExp)*priorPrecisionSpan,
		Sigma:             baseSigma + math.Pow(noiseNorm, sigmaExp)*sigmaSpan,
		BaseLoad:          baseLoad,
		LearningRate:      baseLearningRate,
		ActionGain:        baseActionGain,
		HomeoGain:         baseHomeoGain,
		RecoveryRate:      baseRecoveryRate,
		SetpointAdaptRate: baseSetpointAdaptRate,
	}

	if mode == model.ModeDepressed {
		p.PriorPrecision *= 1.55
		p.Sigma *= 1.25
		p.LearningRate *= 0.78
		p.ActionGain *= 0.85
		p.RecoveryRate *= 0.65
		p.SetpointAdaptRate *= 0.75
	}

	p.Load = effectiveLoad(baseLoad, loadDyn)

	p.LearningRate *= clamp(1-p.Load*0.65, 0.2, 1)
	p.ActionGain *= clamp(1-p.Load*0.55, 0.35, 1)
	p.HomeoGain *= clamp(1-p.Load*0.35, 0.5, 1)
	p.RecoveryRate *= clamp(1-baseLoad*0.5, 0.35, 1)
	return p
}

func effectiveLoad(baseLoad, loadDyn float64) float64 {
	return clamp(baseLoad+loadDyn*loadDynWeight, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampUnit(v float64) float64 {
	return clamp(v, 0, 1)
}

func lerp(from, to, t float64) float64 {
	return from + (to-from)*t
}
