package graph

import (
	"math"
	"testing"
	"time"
)

// floatEquals compares two floats with tolerance
func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

// ============================================================================
// TEST: Pearson correlation
// ============================================================================

func TestPearson_PerfectPositive(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{2, 4, 6, 8, 10}

	r := Pearson(a, b)
	if !floatEquals(r, 1.0, 1e-9) {
		t.Errorf("Expected correlation 1.0, got %f", r)
	}
}

func TestPearson_PerfectNegative(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{10, 8, 6, 4, 2}

	r := Pearson(a, b)
	if !floatEquals(r, -1.0, 1e-9) {
		t.Errorf("Expected correlation -1.0, got %f", r)
	}
}

func TestPearson_Symmetric(t *testing.T) {
	a := []float64{0.01, -0.02, 0.015, 0.003, -0.007, 0.02}
	b := []float64{0.005, -0.01, 0.02, -0.004, 0.001, 0.012}

	if Pearson(a, b) != Pearson(b, a) {
		t.Errorf("Pearson should be symmetric: %f vs %f", Pearson(a, b), Pearson(b, a))
	}
}

func TestPearson_ZeroVariance(t *testing.T) {
	flat := []float64{5, 5, 5, 5, 5}
	moving := []float64{1, 2, 3, 4, 5}

	if r := Pearson(flat, moving); r != 0 {
		t.Errorf("Expected 0.0 for zero-variance input, got %f", r)
	}
	if r := Pearson(flat, flat); r != 0 {
		t.Errorf("Expected 0.0 when both sides are flat, got %f", r)
	}
}

func TestPearson_MismatchedLengths(t *testing.T) {
	if r := Pearson([]float64{1, 2, 3}, []float64{1, 2}); r != 0 {
		t.Errorf("Expected 0.0 for mismatched lengths, got %f", r)
	}
}

// ============================================================================
// TEST: Price correlation over returns
// ============================================================================

func TestPriceCorrelation_SymmetricAndBounded(t *testing.T) {
	pricesA := []float64{100, 101, 99, 102, 104, 103, 105, 104, 106, 108, 107, 109}
	pricesB := []float64{50, 50.6, 49.4, 51.2, 52, 51.7, 52.5, 52.3, 53, 54.1, 53.6, 54.5}

	ab, okAB := PriceCorrelation(pricesA, pricesB, 60, 10)
	ba, okBA := PriceCorrelation(pricesB, pricesA, 60, 10)

	if !okAB || !okBA {
		t.Fatal("Expected both directions to be eligible")
	}
	if ab != ba {
		t.Errorf("Expected symmetric correlation, got %f vs %f", ab, ba)
	}
	if ab < -1 || ab > 1 {
		t.Errorf("Correlation out of bounds: %f", ab)
	}
}

func TestPriceCorrelation_ShortHistoryNotEligible(t *testing.T) {
	short := []float64{100, 101, 102}
	if _, ok := PriceCorrelation(short, short, 60, 10); ok {
		t.Error("Expected short history to be ineligible")
	}
}

func TestPriceCorrelation_ZeroPriceStep(t *testing.T) {
	pricesA := []float64{100, 0, 100, 101, 102, 103, 104, 105, 106, 107, 108, 109}
	pricesB := []float64{50, 51, 52, 53, 54, 55, 56, 57, 58, 59, 60, 61}

	r, ok := PriceCorrelation(pricesA, pricesB, 60, 10)
	if !ok {
		t.Fatal("Expected eligibility despite a zero price")
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		t.Errorf("Expected finite correlation, got %f", r)
	}
}

// ============================================================================
// TEST: IV correlation
// ============================================================================

func TestIVCorrelation_MinimumObservations(t *testing.T) {
	ivA := []float64{0.3, 0.31, 0.29, 0.32}
	ivB := []float64{0.4, 0.41, 0.39, 0.42}

	if _, ok := IVCorrelation(ivA, ivB, 30); ok {
		t.Error("Expected fewer than 5 observations to be ineligible")
	}

	ivA = append(ivA, 0.33)
	ivB = append(ivB, 0.43)
	r, ok := IVCorrelation(ivA, ivB, 30)
	if !ok {
		t.Fatal("Expected 5 observations to be eligible")
	}
	if !floatEquals(r, 1.0, 1e-6) {
		t.Errorf("Expected near-perfect IV correlation, got %f", r)
	}
}

// ============================================================================
// TEST: Delta alignment
// ============================================================================

func TestDeltaAlignment(t *testing.T) {
	cases := []struct {
		name     string
		a, b     float64
		expected float64
	}{
		{"same sign large", 0.8, 0.9, (1 + 0.8) / 2},
		{"opposite sign large", 0.8, -0.9, (1 - 0.8) / 2},
		{"one near zero", 0.01, 0.9, (1 + 0.01) / 2},
		{"zero delta", 0, 0.5, 0.5},
	}
	for _, tc := range cases {
		got := DeltaAlignment(tc.a, tc.b)
		if !floatEquals(got, tc.expected, 1e-9) {
			t.Errorf("%s: expected %f, got %f", tc.name, tc.expected, got)
		}
		if got < 0 || got > 1 {
			t.Errorf("%s: alignment out of [0,1]: %f", tc.name, got)
		}
	}
}

// ============================================================================
// TEST: Vega similarity
// ============================================================================

func TestVegaSimilarity(t *testing.T) {
	if v := VegaSimilarity(0.2, 0.2); !floatEquals(v, 1.0, 1e-9) {
		t.Errorf("Equal vegas should give 1.0, got %f", v)
	}
	if v := VegaSimilarity(0.1, 0.4); !floatEquals(v, 0.25, 1e-9) {
		t.Errorf("Expected ratio 0.25, got %f", v)
	}
	if v := VegaSimilarity(0, 0.4); v != 0 {
		t.Errorf("One zero vega should give 0, got %f", v)
	}
	if v := VegaSimilarity(0, 0); v != 1 {
		t.Errorf("Both zero vegas should give 1, got %f", v)
	}
	if VegaSimilarity(0.1, 0.4) != VegaSimilarity(0.4, 0.1) {
		t.Error("Vega similarity should be symmetric")
	}
}

// ============================================================================
// TEST: Spread classification rule table
// ============================================================================

func TestSpreadClassification(t *testing.T) {
	exp1 := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)
	exp2 := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name           string
		typeA, typeB   string
		strikeA        float64
		strikeB        float64
		expA, expB     time.Time
		expectedLabel  string
	}{
		{"vertical", OptionCall, OptionCall, 180, 185, exp1, exp1, "vertical_spread"},
		{"horizontal", OptionPut, OptionPut, 180, 180, exp1, exp2, "horizontal_spread"},
		{"diagonal", OptionCall, OptionCall, 180, 190, exp1, exp2, "diagonal_spread"},
		{"collar", OptionCall, OptionPut, 180, 170, exp1, exp1, "collar"},
		{"unrelated", OptionCall, OptionCall, 180, 180, exp1, exp1, "none"},
	}
	for _, tc := range cases {
		label, score := SpreadClassification(tc.typeA, tc.typeB, tc.strikeA, tc.strikeB, tc.expA, tc.expB)
		if label != tc.expectedLabel {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.expectedLabel, label)
		}
		if label == "none" {
			if score != 0 {
				t.Errorf("%s: expected score 0, got %f", tc.name, score)
			}
			continue
		}
		if score < 0.60 || score > 0.90 {
			t.Errorf("%s: score %f outside [0.60, 0.90]", tc.name, score)
		}
	}
}

func TestSpreadClassification_CloserStrikesScoreHigher(t *testing.T) {
	exp := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)

	_, near := SpreadClassification(OptionCall, OptionCall, 180, 181, exp, exp)
	_, far := SpreadClassification(OptionCall, OptionCall, 180, 260, exp, exp)
	if near <= far {
		t.Errorf("Expected closer strikes to score higher: near=%f far=%f", near, far)
	}
}
