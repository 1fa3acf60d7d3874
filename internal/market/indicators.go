package market

import "math"

// Indicators are per-symbol technical readings derived from the rolling
// close history at each snapshot.
type Indicators struct {
	Mom5       float64 `json:"mom5"`
	Mom20      float64 `json:"mom20"`
	Volatility float64 `json:"volatility"`
	ZScore     float64 `json:"zscore"`
	RSI        float64 `json:"rsi"`
}

// ComputeIndicators derives indicators from a close series. Readings whose
// lookback exceeds the available history are left at zero (RSI defaults
// to the neutral 50).
func ComputeIndicators(closes []float64) Indicators {
	ind := Indicators{RSI: 50}
	n := len(closes)
	if n < 2 {
		return ind
	}
	last := closes[n-1]

	if n >= 6 && closes[n-6] != 0 {
		ind.Mom5 = last/closes[n-6] - 1
	}
	if n >= 21 && closes[n-21] != 0 {
		ind.Mom20 = last/closes[n-21] - 1
	}

	returns := make([]float64, 0, 20)
	for i := n - 20; i < n; i++ {
		if i < 1 {
			continue
		}
		if closes[i-1] != 0 {
			returns = append(returns, closes[i]/closes[i-1]-1)
		}
	}
	ind.Volatility = stddev(returns)

	if n >= 20 {
		window := closes[n-20:]
		mean := meanOf(window)
		sd := stddev(window)
		if sd > 0 {
			ind.ZScore = (last - mean) / sd
		}
	}

	ind.RSI = rsi(closes, 14)
	return ind
}

// rsi computes the standard Wilder-style RSI over the given period using
// simple average gains/losses.
func rsi(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50
	}
	var gains, losses float64
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	if losses == 0 {
		if gains == 0 {
			return 50
		}
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := meanOf(xs)
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}
