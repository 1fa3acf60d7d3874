package think

import (
	"testing"

	"kginvest/internal/market"
	"kginvest/internal/portfolio"
)

func fallbackContext() *DecisionContext {
	return &DecisionContext{
		Universe: []string{"AAPL", "MSFT", "NVDA", "XOM"},
		Indicators: map[string]market.Indicators{
			"AAPL": {Mom5: 0.04, Volatility: 0.01}, // score 0.02
			"NVDA": {Mom5: 0.08, Volatility: 0.01}, // score 0.06, best
			"MSFT": {Mom5: 0.01, Volatility: 0.02}, // score -0.03
			"XOM":  {Mom5: -0.05, Volatility: 0.01}, // score -0.07
		},
	}
}

// ============================================================================
// TEST: Rule-based fallback
// ============================================================================

func TestFallbackProposal_BuysTopMomentum(t *testing.T) {
	p := FallbackProposal(fallbackContext())

	actions := make(map[string]Decision)
	for _, d := range p.Decisions {
		actions[d.Symbol] = d
	}
	if len(actions) != 4 {
		t.Fatalf("Every universe symbol should be decided, got %d", len(actions))
	}
	if actions["NVDA"].Action != ActionBuy || actions["AAPL"].Action != ActionBuy {
		t.Errorf("Expected the top two positive scores bought, got %v", actions)
	}
	if actions["NVDA"].AllocationPct != fallbackBuyPct {
		t.Errorf("Expected buy allocation %.1f, got %f", fallbackBuyPct, actions["NVDA"].AllocationPct)
	}
	if actions["MSFT"].Action != ActionHold || actions["XOM"].Action != ActionHold {
		t.Errorf("Unheld negatives should hold, got %v", actions)
	}
	if p.Confidence != fallbackConfidence {
		t.Errorf("Expected fallback confidence %.2f, got %f", fallbackConfidence, p.Confidence)
	}
}

func TestFallbackProposal_RiskOffSuppressesBuys(t *testing.T) {
	dc := fallbackContext()
	dc.Signals = market.Signals{RiskOff: 0.75}

	p := FallbackProposal(dc)
	for _, d := range p.Decisions {
		if d.Action == ActionBuy {
			t.Errorf("Risk-off must suppress buys, got BUY %s", d.Symbol)
		}
	}
}

func TestFallbackProposal_TrimsLosersHeld(t *testing.T) {
	dc := fallbackContext()
	dc.Positions = []portfolio.Position{
		{Symbol: "XOM", Qty: 10, AvgCost: 100},
		{Symbol: "NVDA", Qty: 5, AvgCost: 100},
	}

	p := FallbackProposal(dc)
	actions := make(map[string]Decision)
	for _, d := range p.Decisions {
		actions[d.Symbol] = d
	}
	if actions["XOM"].Action != ActionSell {
		t.Errorf("Held negative-momentum symbol should be trimmed, got %+v", actions["XOM"])
	}
	if actions["XOM"].AllocationPct != fallbackSellPct {
		t.Errorf("Expected sell allocation %.1f, got %f", fallbackSellPct, actions["XOM"].AllocationPct)
	}
	if actions["NVDA"].Action != ActionBuy {
		t.Errorf("Held positive-momentum symbol is still a buy candidate, got %+v", actions["NVDA"])
	}
}

func TestFallbackProposal_NoPositiveScoresMeansNoBuys(t *testing.T) {
	dc := &DecisionContext{
		Universe: []string{"AAPL", "MSFT"},
		Indicators: map[string]market.Indicators{
			"AAPL": {Mom5: -0.02, Volatility: 0.01},
			"MSFT": {Mom5: 0.0, Volatility: 0.0},
		},
	}
	p := FallbackProposal(dc)
	for _, d := range p.Decisions {
		if d.Action != ActionHold {
			t.Errorf("Nothing should trade without positive scores or held losers, got %+v", d)
		}
	}
}
