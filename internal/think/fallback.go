package think

import (
	"fmt"
	"sort"
	"strings"
)

// Fallback proposal tuning.
const (
	fallbackBuyPct     = 6.0
	fallbackSellPct    = 25.0
	fallbackBuyCount   = 2
	fallbackConfidence = 0.35
	riskOffThreshold   = 0.60
)

// FallbackProposal builds a rule-based proposal when the committee is
// unavailable: symbols ranked by momentum minus twice their volatility,
// with a risk-off tilt that suppresses new buys and trims losers held.
func FallbackProposal(dc *DecisionContext) *Proposal {
	type ranked struct {
		symbol string
		score  float64
	}
	scores := make([]ranked, 0, len(dc.Universe))
	for _, sym := range dc.Universe {
		ind := dc.Indicators[sym]
		scores = append(scores, ranked{sym, ind.Mom5 - 2*ind.Volatility})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].symbol < scores[j].symbol
	})

	held := make(map[string]bool, len(dc.Positions))
	for _, pos := range dc.Positions {
		held[pos.Symbol] = true
	}
	riskOff := dc.Signals.RiskOff >= riskOffThreshold

	decided := make(map[string]bool, len(dc.Universe))
	var decisions []Decision
	var notes []string

	if !riskOff {
		buys := 0
		for _, r := range scores {
			if buys >= fallbackBuyCount || r.score <= 0 {
				break
			}
			decisions = append(decisions, Decision{
				Symbol:        r.symbol,
				Action:        ActionBuy,
				AllocationPct: fallbackBuyPct,
				Rationale:     fmt.Sprintf("momentum score %.4f", r.score),
			})
			decided[r.symbol] = true
			buys++
			notes = append(notes, fmt.Sprintf("buying %s on positive risk-adjusted momentum", r.symbol))
		}
	} else {
		notes = append(notes, "risk-off reading suppresses new buys")
	}

	for _, r := range scores {
		if held[r.symbol] && !decided[r.symbol] && r.score < 0 {
			decisions = append(decisions, Decision{
				Symbol:        r.symbol,
				Action:        ActionSell,
				AllocationPct: fallbackSellPct,
				Rationale:     fmt.Sprintf("momentum score %.4f", r.score),
			})
			decided[r.symbol] = true
			notes = append(notes, fmt.Sprintf("trimming %s because momentum turned negative", r.symbol))
		}
	}

	for _, sym := range dc.Universe {
		if !decided[sym] {
			decisions = append(decisions, Decision{Symbol: sym, Action: ActionHold})
		}
	}

	explanation := "Rule-based committee stand-in: ranked the universe by five-period momentum minus twice realized volatility. "
	if len(notes) > 0 {
		explanation += strings.Join(notes, "; ") + "."
	} else {
		explanation += "No position cleared the action thresholds, so everything holds."
	}

	return &Proposal{
		Decisions:   decisions,
		Explanation: explanation,
		Confidence:  fallbackConfidence,
	}
}
