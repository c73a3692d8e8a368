package lab

import (
	"fmt"
	"math"

	"predictivelab/internal/model"
)

// Regime is a coarse reading of the current signals.
type Regime struct {
	Key  string
	Text string
}

var (
	RegimeStabilizedRigid = Regime{"stabilized but rigid", "Depressed-mode regime: stabilized but rigid priors limit updating."}
	RegimeRigidError      = Regime{"rigid with persistent error", "Depressed-mode regime: rigid priors with persistent prediction error."}
	RegimeDegraded        = Regime{"degraded regulation", "Depressed-mode regime: high load and noisy evidence degrade regulation."}
	RegimeAdaptive        = Regime{"adaptive, low error", "Adaptive regime: low error with stable regulation."}
	RegimeTransitional    = Regime{"transitional", "Transitional regime: moderate pressure with ongoing updating."}
	RegimeStrained        = Regime{"strained", "Strained regime: high load with unstable inference/regulation."}
)

// Regimes lists every regime in display order.
func Regimes() []Regime {
	return []Regime{
		RegimeAdaptive, RegimeTransitional, RegimeStrained,
		RegimeStabilizedRigid, RegimeRigidError, RegimeDegraded,
	}
}

func DescribeState(mode model.Mode, s model.Signals) Regime {
	if mode == model.ModeDepressed {
		switch {
		case s.Balance > 0.58 && s.Error < 0.55:
			return RegimeStabilizedRigid
		case s.Balance > 0.34:
			return RegimeRigidError
		default:
			return RegimeDegraded
		}
	}
	switch {
	case s.Balance > 0.62 && s.Error < 0.44:
		return RegimeAdaptive
	case s.Balance > 0.38:
		return RegimeTransitional
	default:
		return RegimeStrained
	}
}

const (
	GuideHighStress        = "High-stress regime: low sensory precision and/or high load amplify persistent prediction error."
	GuideHighPrecision     = "High prior-precision regime: top-down predictions dominate (stable when noise and load are low)."
	GuideIntermediate      = "Intermediate regime: tweak one variable at a time to inspect causal effects."
	GuideHealthyMode       = "Healthy mode selected: stronger recovery and more flexible updating."
	GuideDepressedMode     = "Depressed mode selected: higher prior precision with noisier evidence and slower recovery."
	GuidePerturbation      = "Perturbation injected: watch short-term error spike and subsequent recovery."
	GuideLocalPerturbation = "Local perturbation injected from canvas interaction."
)

// GuideForControls picks the guidance shown after a manual control change.
func GuideForControls(c model.Controls) string {
	if c.Noise > 66 || c.Load > 70 {
		return GuideHighStress
	}
	if c.Precision > 74 && c.Noise < 42 && c.Load < 50 {
		return GuideHighPrecision
	}
	return GuideIntermediate
}

func GuideForMode(mode model.Mode) string {
	if mode == model.ModeDepressed {
		return GuideDepressedMode
	}
	return GuideHealthyMode
}

// Percent formats a unit value as a rounded percentage.
func Percent(v float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(v*100)))
}
