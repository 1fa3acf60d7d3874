package think

import (
	"fmt"
	"sort"
	"strings"

	"kginvest/internal/graph"
	"kginvest/internal/market"
	"kginvest/internal/portfolio"
)

// DecisionContext is everything the committee sees for one deliberation:
// the latest market snapshot, the relevant slice of the knowledge graph,
// and the current portfolio.
type DecisionContext struct {
	Prices     map[string]float64
	Indicators map[string]market.Indicators
	Signals    market.Signals
	Cash       float64
	Equity     float64
	Positions  []portfolio.Position
	Edges      []graph.Edge
	Recent     []portfolio.TradeRecord
	Universe   []string
}

// Prompt renders the context as the committee's user prompt. Sections are
// kept compact so small context models stay well inside their windows.
func (dc *DecisionContext) Prompt() string {
	var b strings.Builder

	fmt.Fprintf(&b, "PORTFOLIO: cash $%.2f, total equity $%.2f\n", dc.Cash, dc.Equity)
	if len(dc.Positions) == 0 {
		b.WriteString("POSITIONS: none\n")
	} else {
		b.WriteString("POSITIONS:\n")
		for _, pos := range dc.Positions {
			price := pos.LastPrice
			if v, ok := dc.Prices[pos.Symbol]; ok && v > 0 {
				price = v
			}
			fmt.Fprintf(&b, "  %s qty=%.4f avg_cost=%.2f value=%.2f\n",
				pos.Symbol, pos.Qty, pos.AvgCost, pos.Qty*price)
		}
	}

	fmt.Fprintf(&b, "SIGNALS: risk_off=%.2f rates_up=%.2f oil_shock=%.2f semi_pulse=%.2f\n",
		dc.Signals.RiskOff, dc.Signals.RatesUp, dc.Signals.OilShock, dc.Signals.SemiPulse)

	b.WriteString("UNIVERSE:\n")
	symbols := make([]string, len(dc.Universe))
	copy(symbols, dc.Universe)
	sort.Strings(symbols)
	for _, sym := range symbols {
		ind := dc.Indicators[sym]
		fmt.Fprintf(&b, "  %s price=%.2f mom5=%+.3f mom20=%+.3f vol=%.4f rsi=%.0f\n",
			sym, dc.Prices[sym], ind.Mom5, ind.Mom20, ind.Volatility, ind.RSI)
	}

	if len(dc.Edges) > 0 {
		b.WriteString("GRAPH RELATIONSHIPS (strongest first):\n")
		for _, e := range dc.Edges {
			fmt.Fprintf(&b, "  %s <-> %s weight=%.2f via %s (%d assessments)\n",
				e.NodeA, e.NodeB, e.Weight, e.TopChannel, e.AssessmentCount)
		}
	}

	if len(dc.Recent) > 0 {
		b.WriteString("RECENT TRADES:\n")
		for _, rec := range dc.Recent {
			fmt.Fprintf(&b, "  %s %s %.4f @ %.2f\n", rec.Side, rec.Symbol, rec.Qty, rec.Price)
		}
	}

	b.WriteString("\nDeliberate and respond with the JSON object only.")
	return b.String()
}

// DominantSignal names the strongest macro reading in the context, used for
// insight titling.
func (dc *DecisionContext) DominantSignal() string {
	type reading struct {
		name  string
		value float64
	}
	readings := []reading{
		{"risk_off", dc.Signals.RiskOff},
		{"rates_up", dc.Signals.RatesUp},
		{"oil_shock", dc.Signals.OilShock},
		{"semi_pulse", dc.Signals.SemiPulse},
	}
	best := readings[0]
	for _, r := range readings[1:] {
		if dist(r.value) > dist(best.value) {
			best = r
		}
	}
	return best.name
}

// dist measures how far a signal sits from its neutral 0.5.
func dist(v float64) float64 {
	if v < 0.5 {
		return 0.5 - v
	}
	return v - 0.5
}
