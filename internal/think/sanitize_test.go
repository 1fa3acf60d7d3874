package think

import (
	"strings"
	"testing"
)

// ============================================================================
// TEST: Proposal sanitization
// ============================================================================

func TestSanitize_ClampsAllocation(t *testing.T) {
	p := &Proposal{
		Decisions: []Decision{
			{Symbol: "AAPL", Action: ActionBuy, AllocationPct: 95},
			{Symbol: "MSFT", Action: ActionSell, AllocationPct: -5},
		},
		Confidence: 0.5,
	}
	Sanitize(p, []string{"AAPL", "MSFT"})

	if p.Decisions[0].AllocationPct != 80 {
		t.Errorf("Expected allocation clamped to 80, got %f", p.Decisions[0].AllocationPct)
	}
	// A negative allocation clamps to zero, which demotes the sell to HOLD.
	if p.Decisions[1].Action != ActionHold || p.Decisions[1].AllocationPct != 0 {
		t.Errorf("Zero-allocation sell should become HOLD, got %+v", p.Decisions[1])
	}
}

func TestSanitize_DropsUnknownAndDuplicates(t *testing.T) {
	p := &Proposal{
		Decisions: []Decision{
			{Symbol: "AAPL", Action: ActionBuy, AllocationPct: 10},
			{Symbol: "ZZZZ", Action: ActionBuy, AllocationPct: 10},
			{Symbol: "AAPL", Action: ActionSell, AllocationPct: 50},
		},
	}
	Sanitize(p, []string{"AAPL"})

	if len(p.Decisions) != 1 {
		t.Fatalf("Expected 1 decision after dedupe and drop, got %d", len(p.Decisions))
	}
	if p.Decisions[0].Action != ActionBuy {
		t.Error("First occurrence should win over the duplicate")
	}
}

func TestSanitize_BackfillsHolds(t *testing.T) {
	p := &Proposal{
		Decisions: []Decision{{Symbol: "AAPL", Action: ActionBuy, AllocationPct: 10}},
	}
	universe := []string{"AAPL", "MSFT", "NVDA"}
	Sanitize(p, universe)

	if len(p.Decisions) != 3 {
		t.Fatalf("Expected every universe symbol decided, got %d", len(p.Decisions))
	}
	covered := make(map[string]string)
	for _, d := range p.Decisions {
		covered[d.Symbol] = d.Action
	}
	if covered["MSFT"] != ActionHold || covered["NVDA"] != ActionHold {
		t.Errorf("Skipped symbols should backfill as HOLD, got %v", covered)
	}
}

func TestSanitize_UnknownActionBecomesHold(t *testing.T) {
	p := &Proposal{
		Decisions: []Decision{{Symbol: "AAPL", Action: "SHORT", AllocationPct: 40}},
	}
	Sanitize(p, []string{"AAPL"})

	if p.Decisions[0].Action != ActionHold || p.Decisions[0].AllocationPct != 0 {
		t.Errorf("Unknown action should become HOLD with no allocation, got %+v", p.Decisions[0])
	}
}

func TestSanitize_TruncatesExplanationAndClampsConfidence(t *testing.T) {
	p := &Proposal{
		Explanation: strings.Repeat("x", 400),
		Confidence:  1.7,
	}
	Sanitize(p, nil)

	if len(p.Explanation) != 260 {
		t.Errorf("Expected explanation truncated to 260, got %d", len(p.Explanation))
	}
	if p.Confidence != 1 {
		t.Errorf("Expected confidence clamped to 1, got %f", p.Confidence)
	}

	p = &Proposal{Confidence: -0.2}
	Sanitize(p, nil)
	if p.Confidence != 0 {
		t.Errorf("Expected confidence clamped to 0, got %f", p.Confidence)
	}
}
