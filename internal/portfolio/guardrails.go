package portfolio

import (
	"fmt"
	"time"
)

// Intent is a proposed trade before guard-rail evaluation.
type Intent struct {
	Symbol string
	Side   Side
	Qty    float64
	Reason string
}

// Rejection records why an intent was dropped. Rule names the first
// guard-rail check that failed.
type Rejection struct {
	Intent Intent
	Rule   string
	Detail string
}

// Guard-rail rule names, in evaluation order.
const (
	RuleTradingWindow = "trading_window"
	RuleMinNotional   = "min_notional"
	RuleConcentration = "symbol_concentration"
	RuleCycleBuyCap   = "cycle_buy_cap"
	RuleCycleSellCap  = "cycle_sell_cap"
	RuleCashBuffer    = "cash_buffer"
)

// PolicyConfig holds guard-rail limits. Percentages are of total portfolio
// value (cash plus holdings) unless noted.
type PolicyConfig struct {
	MinNotional        float64 // Floor on qty*price per trade
	MaxSymbolWeightPct float64 // Post-buy cap on one symbol's market value
	MaxBuyPerCyclePct  float64 // Cumulative buy notional per decision cycle
	MaxSellPerCyclePct float64 // Cumulative sell notional per cycle, % of the position's value
	MinCashBufferPct   float64 // Post-buy cash floor
	TradeAnytime       bool    // Skip the market-hours gate
}

// DefaultPolicyConfig returns default guard-rail limits.
func DefaultPolicyConfig() *PolicyConfig {
	return &PolicyConfig{
		MinNotional:        25,
		MaxSymbolWeightPct: 14,
		MaxBuyPerCyclePct:  18,
		MaxSellPerCyclePct: 35,
		MinCashBufferPct:   12,
	}
}

// State is the portfolio snapshot guard rails evaluate against.
type State struct {
	Cash      float64
	Positions map[string]Position
}

// Policy applies the guard-rail rules to proposed intents. Evaluation is
// pure: it never mutates the ledger.
type Policy struct {
	config *PolicyConfig
	now    func() time.Time
}

// NewPolicy creates a guard-rail policy.
func NewPolicy(config *PolicyConfig) *Policy {
	if config == nil {
		config = DefaultPolicyConfig()
	}
	return &Policy{config: config, now: time.Now}
}

// Evaluate filters intents through the rules in order, short-circuiting
// per intent at the first violation. Rejecting one intent never affects
// another except through the stated cumulative cycle caps, which only
// approved intents consume.
func (p *Policy) Evaluate(intents []Intent, state State, prices map[string]float64) ([]Intent, []Rejection) {
	approved := make([]Intent, 0, len(intents))
	var rejected []Rejection

	totalValue := state.Cash
	for sym, pos := range state.Positions {
		totalValue += pos.Qty * priceFor(sym, pos, prices)
	}

	windowOpen := p.config.TradeAnytime || marketOpen(p.now())

	runningCash := state.Cash
	var cycleBuys float64
	cycleSells := make(map[string]float64)

	for _, intent := range intents {
		if !windowOpen {
			rejected = append(rejected, Rejection{intent, RuleTradingWindow, "outside trading hours"})
			continue
		}

		price, ok := prices[intent.Symbol]
		if !ok || price <= 0 {
			rejected = append(rejected, Rejection{intent, RuleMinNotional, "no price available"})
			continue
		}
		notional := intent.Qty * price

		if notional < p.config.MinNotional {
			rejected = append(rejected, Rejection{intent, RuleMinNotional,
				fmt.Sprintf("notional %.2f below floor %.2f", notional, p.config.MinNotional)})
			continue
		}

		switch intent.Side {
		case SideBuy:
			held := 0.0
			if pos, ok := state.Positions[intent.Symbol]; ok {
				held = pos.Qty * priceFor(intent.Symbol, pos, prices)
			}
			cap := p.config.MaxSymbolWeightPct / 100 * totalValue
			if held+notional > cap {
				rejected = append(rejected, Rejection{intent, RuleConcentration,
					fmt.Sprintf("would reach %.2f, cap %.2f", held+notional, cap)})
				continue
			}

			buyCap := p.config.MaxBuyPerCyclePct / 100 * totalValue
			if cycleBuys+notional > buyCap {
				rejected = append(rejected, Rejection{intent, RuleCycleBuyCap,
					fmt.Sprintf("cycle buys %.2f would exceed cap %.2f", cycleBuys+notional, buyCap)})
				continue
			}

			buffer := p.config.MinCashBufferPct / 100 * totalValue
			if runningCash-notional < buffer {
				rejected = append(rejected, Rejection{intent, RuleCashBuffer,
					fmt.Sprintf("post-trade cash %.2f below buffer %.2f", runningCash-notional, buffer)})
				continue
			}

			cycleBuys += notional
			runningCash -= notional
			approved = append(approved, intent)

		case SideSell:
			pos, ok := state.Positions[intent.Symbol]
			if !ok {
				rejected = append(rejected, Rejection{intent, RuleCycleSellCap, "no position held"})
				continue
			}
			posValue := pos.Qty * priceFor(intent.Symbol, pos, prices)
			sellCap := p.config.MaxSellPerCyclePct / 100 * posValue
			if cycleSells[intent.Symbol]+notional > sellCap {
				rejected = append(rejected, Rejection{intent, RuleCycleSellCap,
					fmt.Sprintf("cycle sells %.2f would exceed cap %.2f", cycleSells[intent.Symbol]+notional, sellCap)})
				continue
			}

			cycleSells[intent.Symbol] += notional
			runningCash += notional
			approved = append(approved, intent)

		default:
			rejected = append(rejected, Rejection{intent, RuleMinNotional, "unknown side"})
		}
	}

	return approved, rejected
}

func priceFor(symbol string, pos Position, prices map[string]float64) float64 {
	if v, ok := prices[symbol]; ok && v > 0 {
		return v
	}
	return pos.LastPrice
}

var marketLocation = loadMarketLocation()

func loadMarketLocation() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("ET", -5*3600)
	}
	return loc
}

// marketOpen reports whether t falls within regular US equity hours,
// 9:30 to 16:00 Eastern, Monday through Friday.
func marketOpen(t time.Time) bool {
	et := t.In(marketLocation)
	switch et.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minutes := et.Hour()*60 + et.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}
