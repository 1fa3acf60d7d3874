package think

// Sanitization bounds.
const (
	maxAllocationPct = 80
	maxExplanation   = 260
)

// Sanitize normalizes a parsed proposal in place against the tradeable
// universe: allocation clamped to [0, 80], unknown symbols dropped,
// duplicate symbols collapsed to the first occurrence, universe symbols the
// committee skipped backfilled as HOLD, and the explanation truncated.
// Confidence is clamped to [0, 1].
func Sanitize(p *Proposal, universe []string) {
	known := make(map[string]bool, len(universe))
	for _, sym := range universe {
		known[sym] = true
	}

	seen := make(map[string]bool, len(p.Decisions))
	kept := p.Decisions[:0]
	for _, d := range p.Decisions {
		if !known[d.Symbol] || seen[d.Symbol] {
			continue
		}
		seen[d.Symbol] = true

		switch d.Action {
		case ActionBuy, ActionSell:
			if d.AllocationPct < 0 {
				d.AllocationPct = 0
			}
			if d.AllocationPct > maxAllocationPct {
				d.AllocationPct = maxAllocationPct
			}
			if d.AllocationPct == 0 {
				d.Action = ActionHold
			}
		default:
			d.Action = ActionHold
			d.AllocationPct = 0
		}
		kept = append(kept, d)
	}

	for _, sym := range universe {
		if !seen[sym] {
			kept = append(kept, Decision{Symbol: sym, Action: ActionHold})
		}
	}
	p.Decisions = kept

	if len(p.Explanation) > maxExplanation {
		p.Explanation = p.Explanation[:maxExplanation]
	}
	if p.Confidence < 0 {
		p.Confidence = 0
	}
	if p.Confidence > 1 {
		p.Confidence = 1
	}
}
