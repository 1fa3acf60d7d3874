package market

// Signals are derived macro readings in [0,1], computed from bellwether
// short-horizon momentum at each snapshot. 0.5 is neutral.
type Signals struct {
	RiskOff   float64 `json:"risk_off"`
	RatesUp   float64 `json:"rates_up"`
	OilShock  float64 `json:"oil_shock"`
	SemiPulse float64 `json:"semi_pulse"`
}

// ComputeSignals derives macro signals from per-bellwether mom5 readings.
// Missing bellwethers contribute zero momentum, pulling the signal toward
// neutral rather than failing.
func ComputeSignals(mom5 map[string]float64) Signals {
	vix := mom5["^VIX"]
	spy := mom5["SPY"]
	qqq := mom5["QQQ"]
	tlt := mom5["TLT"]
	uup := mom5["UUP"]
	uso := mom5["USO"]
	smh := mom5["SMH"]

	return Signals{
		RiskOff:   clamp01(0.50 + 0.06*scale(vix) + 0.05*scale(uup) - 0.05*scale(spy) - 0.03*scale(qqq) + 0.03*scale(tlt)),
		RatesUp:   clamp01(0.50 + 0.08*scale(uup) - 0.08*scale(tlt)),
		OilShock:  clamp01(0.50 + 0.10*scale(uso) + 0.02*scale(vix)),
		SemiPulse: clamp01(0.50 + 0.10*scale(smh) - 0.03*scale(spy)),
	}
}

// scale maps a fractional momentum reading onto roughly [-3,3] so the
// signal coefficients operate on comparable magnitudes.
func scale(mom float64) float64 {
	v := mom * 100
	if v > 3 {
		return 3
	}
	if v < -3 {
		return -3
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
