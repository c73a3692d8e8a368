package lab

import "predictivelab/internal/stochastic"

// State is the latent state of the simulated system. It is mutated only
// inside Step, Inject and Reset.
type State struct {
	X             float64 `json:"x"`
	Mu            float64 `json:"mu"`
	Setpoint      float64 `json:"setpoint"`
	LoadDyn       float64 `json:"load_dyn"`
	ExternalShock float64 `json:"external_shock"`
	ErrorEMA      float64 `json:"error_ema"`
	ConfidenceEMA float64 `json:"confidence_ema"`
	BalanceEMA    float64 `json:"balance_ema"`
}

// Reset reseeds the body value and belief from two independent normal draws
// and zeroes everything else.
func (s *State) Reset(normal stochastic.Normal) {
	x := normal.Next() * 0.04
	*s = State{
		X:  x,
		Mu: x + normal.Next()*0.03,
	}
}
