package lab

import (
	"math"

	"predictivelab/internal/model"
	"predictivelab/internal/stochastic"
)

const (
	// ButtonMultiplier scales a perturbation triggered from the perturb control.
	ButtonMultiplier = 1.0
	// PointerMultiplier scales a perturbation triggered by pressing on the widget.
	PointerMultiplier = 1.25

	minShock   = 0.22
	shockRange = 0.32

	pointerHoverStrength = 0.55
	pointerDecayPerFrame = 0.92
	pointerMinStrength   = 0.02
)

// Inject applies an instantaneous exogenous shock and returns its signed size.
// The direction follows the pointer's horizontal offset from centre when known.
func Inject(s *State, pointer model.Pointer, multiplier float64, uniform stochastic.Uniform) float64 {
	direction := shockDirection(pointer, uniform)
	magnitude := (minShock + uniform.Float64()*shockRange) * multiplier
	shock := direction * magnitude

	s.X += shock
	s.ExternalShock += shock * 0.45
	s.LoadDyn = clampUnit(s.LoadDyn + math.Abs(shock)*0.08)
	return shock
}

func shockDirection(pointer model.Pointer, uniform stochastic.Uniform) float64 {
	if pointer.Known && pointer.Width > 0 {
		if d := clamp((pointer.X/pointer.Width-0.5)*2, -1, 1); d != 0 {
			return d
		}
	}
	if uniform.Float64() < 0.5 {
		return -1
	}
	return 1
}

// MovePointer records a pointer position and raises its field strength.
func MovePointer(p *model.Pointer, x, y, width, height float64) {
	p.X = x
	p.Y = y
	p.Width = width
	p.Height = height
	p.Known = true
	p.Active = true
	p.Strength = math.Max(p.Strength, pointerHoverStrength)
}

// DecayPointer fades the pointer field; the fade is frame-rate independent.
func DecayPointer(p *model.Pointer, dt float64) {
	p.Strength *= math.Pow(pointerDecayPerFrame, dt*60)
}

// PointerInfluenceAt returns the pointer field at (x, y) with linear falloff to radius.
func PointerInfluenceAt(p model.Pointer, x, y, radius float64) float64 {
	if p.Strength < pointerMinStrength || radius <= 0 {
		return 0
	}
	distance := math.Hypot(x-p.X, y-p.Y)
	if distance > radius {
		return 0
	}
	return (1 - distance/radius) * p.Strength
}
