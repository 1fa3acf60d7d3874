package graph

import (
	"math"
	"strings"
	"time"
)

// Correlation engine: pure functions over aligned numeric series. Callers
// are responsible for checking history length before calling; short input
// is reported through the ok return, never as an error.

// PctReturns converts a price series into simple percentage returns.
// Zero prices yield a zero return for that step rather than +/-Inf.
func PctReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (prices[i]-prev)/prev)
	}
	return returns
}

// Pearson computes the Pearson correlation of two equal-length series.
// Returns 0.0 when either series has zero variance. The result is clamped
// to [-1, 1] to absorb float drift.
func Pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA := sumA / float64(n)
	meanB := sumB / float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	r := cov / math.Sqrt(varA*varB)
	if math.IsNaN(r) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

// PriceCorrelation computes the Pearson correlation of percentage returns
// over the shared trailing window. ok is false when fewer than minReturns
// aligned returns exist; the pair is then not yet eligible, not an error.
func PriceCorrelation(pricesA, pricesB []float64, window, minReturns int) (float64, bool) {
	retA := PctReturns(pricesA)
	retB := PctReturns(pricesB)

	n := len(retA)
	if len(retB) < n {
		n = len(retB)
	}
	if n > window {
		n = window
	}
	if n < minReturns {
		return 0, false
	}

	return Pearson(retA[len(retA)-n:], retB[len(retB)-n:]), true
}

// IVCorrelation computes the Pearson correlation of raw implied-volatility
// levels (not differenced) over the trailing window. Captures volatility
// regime clustering rather than return comovement.
func IVCorrelation(ivA, ivB []float64, window int) (float64, bool) {
	n := len(ivA)
	if len(ivB) < n {
		n = len(ivB)
	}
	if n > window {
		n = window
	}
	if n < 5 {
		return 0, false
	}
	return Pearson(ivA[len(ivA)-n:], ivB[len(ivB)-n:]), true
}

// DeltaAlignment maps two option deltas to [0,1]: near 1 when both deltas
// are large with the same sign, near 0 when large with opposite signs, and
// near 0.5 when either delta carries little directional information.
func DeltaAlignment(deltaA, deltaB float64) float64 {
	signProduct := sign(deltaA) * sign(deltaB)
	minMag := math.Min(math.Abs(deltaA), math.Abs(deltaB))
	if minMag > 1 {
		minMag = 1
	}
	return (1 + signProduct*minMag) / 2
}

// VegaSimilarity returns 1.0 when the vega magnitudes match, decaying
// toward 0 as the smaller/larger ratio shrinks.
func VegaSimilarity(vegaA, vegaB float64) float64 {
	a := math.Abs(vegaA)
	b := math.Abs(vegaB)
	if a == 0 && b == 0 {
		return 1
	}
	if a == 0 || b == 0 {
		return 0
	}
	if a > b {
		return b / a
	}
	return a / b
}

// Option contract types for spread classification.
const (
	OptionCall = "call"
	OptionPut  = "put"
)

// SpreadClassification applies the deterministic spread rule table to two
// option contracts. Detected spreads score within [0.60, 0.90], higher for
// closer strikes/expirations; unrelated contracts return ("none", 0).
func SpreadClassification(typeA, typeB string, strikeA, strikeB float64, expA, expB time.Time) (string, float64) {
	typeA = strings.ToLower(typeA)
	typeB = strings.ToLower(typeB)
	sameType := typeA == typeB
	sameStrike := strikeA == strikeB
	sameExp := expA.Equal(expB)

	switch {
	case sameType && sameExp && !sameStrike:
		return "vertical_spread", spreadScore(strikeProximity(strikeA, strikeB))
	case sameType && sameStrike && !sameExp:
		return "horizontal_spread", spreadScore(expiryProximity(expA, expB))
	case sameType && !sameStrike && !sameExp:
		p := (strikeProximity(strikeA, strikeB) + expiryProximity(expA, expB)) / 2
		return "diagonal_spread", spreadScore(p)
	case !sameType && sameExp:
		return "collar", spreadScore(strikeProximity(strikeA, strikeB))
	default:
		return "none", 0
	}
}

// spreadScore maps a proximity in [0,1] onto the [0.60, 0.90] score band.
func spreadScore(proximity float64) float64 {
	if proximity < 0 {
		proximity = 0
	}
	if proximity > 1 {
		proximity = 1
	}
	return 0.60 + 0.30*proximity
}

func strikeProximity(a, b float64) float64 {
	hi := math.Max(math.Abs(a), math.Abs(b))
	if hi == 0 {
		return 1
	}
	return 1 - math.Min(1, math.Abs(a-b)/hi)
}

func expiryProximity(a, b time.Time) float64 {
	days := math.Abs(a.Sub(b).Hours()) / 24
	return 1 - math.Min(1, days/365)
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
