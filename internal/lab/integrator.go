package lab

import (
	"math"

	"predictivelab/internal/model"
	"predictivelab/internal/stochastic"
)

const (
	// MaxDt bounds a single Euler step.
	MaxDt = 0.05

	shockTimeConstant = 0.8
	latentNoiseScale  = 0.05

	errorSmoothingRate      = 3.2
	confidenceSmoothingRate = 2.0
	balanceSmoothingRate    = 2.4
)

var confidenceScale = math.Log1p(320)

// stepTrace carries the intermediate readouts of one step alongside the signals.
type stepTrace struct {
	params          Params
	sensoryError    float64
	effectiveAction float64
	errorRaw        float64
	confidenceRaw   float64
	balanceRaw      float64
	signals         model.Signals
}

// Step advances the state by dt seconds and returns the renderer signals.
func Step(s *State, c model.Controls, mode model.Mode, normal stochastic.Normal, dt float64) model.Signals {
	return advance(s, c, mode, normal, dt).signals
}

func advance(s *State, c model.Controls, mode model.Mode, normal stochastic.Normal, dt float64) stepTrace {
	p := DeriveParams(c, mode, s.LoadDyn)
	sensoryPrecision := 1 / math.Max(p.Sigma*p.Sigma, 1e-5)
	totalPrecision := sensoryPrecision + p.PriorPrecision

	s.ExternalShock *= math.Exp(-dt / shockTimeConstant)

	observation := s.X + normal.Next()*p.Sigma + s.ExternalShock
	sensoryError := observation - s.Mu
	priorError := s.Setpoint - s.Mu

	update := (sensoryPrecision*sensoryError + p.PriorPrecision*priorError) / math.Max(totalPrecision, 1e-6)
	s.Mu += dt * p.LearningRate * update

	action := p.ActionGain * (s.Mu - s.X)
	effectiveAction := action * clamp(1-p.Load*0.6, 0.3, 1)

	s.X += dt*(p.HomeoGain*(s.Setpoint-s.X)+effectiveAction) + normal.Next()*p.Sigma*latentNoiseScale

	s.Setpoint += dt * p.SetpointAdaptRate * (s.X - s.Setpoint) * clamp(1-p.Load*0.8, 0, 1)

	peMag := math.Abs(sensoryError)
	actionMag := math.Abs(effectiveAction)
	s.LoadDyn += dt*(clamp(peMag, 0, 2)*0.22+clamp(actionMag, 0, 2)*0.1) - dt*p.RecoveryRate*s.LoadDyn
	s.LoadDyn = clampUnit(s.LoadDyn)

	precisionWeight := clampUnit(p.PriorPrecision / math.Max(totalPrecision, 1e-6))
	confidenceRaw := clampUnit(math.Log1p(totalPrecision) / confidenceScale)
	errorRaw := clampUnit(peMag / 0.65)
	noiseNorm := clampUnit((p.Sigma - baseSigma) / sigmaSpan)
	// Recomputed from the post-update accumulator; differs from p.Load.
	load := effectiveLoad(p.BaseLoad, s.LoadDyn)
	balanceRaw := clampUnit(1 - load*0.92 - clamp(actionMag*0.22, 0, 1))

	s.ErrorEMA = clampUnit(lerp(s.ErrorEMA, errorRaw, clamp(dt*errorSmoothingRate, 0, 1)))
	s.ConfidenceEMA = clampUnit(lerp(s.ConfidenceEMA, confidenceRaw, clamp(dt*confidenceSmoothingRate, 0, 1)))
	s.BalanceEMA = clampUnit(lerp(s.BalanceEMA, balanceRaw, clamp(dt*balanceSmoothingRate, 0, 1)))

	return stepTrace{
		params:          p,
		sensoryError:    sensoryError,
		effectiveAction: effectiveAction,
		errorRaw:        errorRaw,
		confidenceRaw:   confidenceRaw,
		balanceRaw:      balanceRaw,
		signals: model.Signals{
			Precision:  precisionWeight,
			Noise:      noiseNorm,
			Load:       load,
			Error:      s.ErrorEMA,
			Confidence: s.ConfidenceEMA,
			Balance:    s.BalanceEMA,
		},
	}
}
