package think

import (
	"math"
	"strings"
	"testing"
)

func scoreEquals(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}

// ============================================================================
// TEST: Critic scoring
// ============================================================================

func TestCriticScore_BaseFollowsConfidence(t *testing.T) {
	p := &Proposal{Confidence: 0.5, Explanation: "up."}
	if got := CriticScore(p, 180); !scoreEquals(got, 0.22+0.48*0.5) {
		t.Errorf("Expected base 0.46, got %f", got)
	}
}

func TestCriticScore_LengthAndKeywordBonuses(t *testing.T) {
	long := strings.Repeat("steady accumulation across the basket ", 5) // > 180 chars, no keywords
	p := &Proposal{Confidence: 0.5, Explanation: long}
	if got := CriticScore(p, 180); !scoreEquals(got, 0.46+0.10) {
		t.Errorf("Expected length bonus only, got %f", got)
	}

	p.Explanation = "Buying because momentum is broadening."
	if got := CriticScore(p, 180); !scoreEquals(got, 0.46+0.10) {
		t.Errorf("Expected keyword bonus only, got %f", got)
	}

	// Multiple keywords earn the bonus once.
	p.Explanation = "Buying because momentum is broadening, however the risk is real; therefore size small."
	if got := CriticScore(p, 180); !scoreEquals(got, 0.46+0.10) {
		t.Errorf("Keyword bonus must not stack, got %f", got)
	}
}

func TestCriticScore_ConfiguredMinLength(t *testing.T) {
	p := &Proposal{Confidence: 0.5, Explanation: "steady accumulation this cycle"} // 30 chars, no keywords

	if got := CriticScore(p, 20); !scoreEquals(got, 0.46+0.10) {
		t.Errorf("Expected length bonus at configured minimum 20, got %f", got)
	}
	if got := CriticScore(p, 180); !scoreEquals(got, 0.46) {
		t.Errorf("Expected no length bonus at minimum 180, got %f", got)
	}
	// Zero falls back to the 180 default.
	if got := CriticScore(p, 0); !scoreEquals(got, 0.46) {
		t.Errorf("Expected default minimum for zero, got %f", got)
	}
}

func TestCriticScore_OvertradingPenalties(t *testing.T) {
	p := &Proposal{Confidence: 0.5}
	for i := 0; i < 10; i++ {
		p.Decisions = append(p.Decisions, Decision{Symbol: "S", Action: ActionBuy})
	}
	if got := CriticScore(p, 180); !scoreEquals(got, 0.46-0.06) {
		t.Errorf("Expected buy penalty, got %f", got)
	}

	for i := 0; i < 10; i++ {
		p.Decisions = append(p.Decisions, Decision{Symbol: "S", Action: ActionSell})
	}
	if got := CriticScore(p, 180); !scoreEquals(got, 0.46-0.06-0.04) {
		t.Errorf("Expected both penalties, got %f", got)
	}
}

func TestCriticScore_Bounds(t *testing.T) {
	high := &Proposal{
		Confidence:  1,
		Explanation: strings.Repeat("because the trend holds and breadth confirms it broadly ", 4),
	}
	if got := CriticScore(high, 180); got > 1 {
		t.Errorf("Score must not exceed 1, got %f", got)
	}
	if got := CriticScore(&Proposal{Confidence: 0}, 180); got < 0 || !scoreEquals(got, 0.22) {
		t.Errorf("Zero-confidence floor should be 0.22, got %f", got)
	}
}
