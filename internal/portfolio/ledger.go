package portfolio

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Position is a held lot keyed by symbol. AvgCost is the weighted-average
// cost basis per unit; it never changes on sells.
type Position struct {
	Symbol    string
	Qty       float64
	AvgCost   float64
	LastPrice float64
}

// TradeRecord is an immutable append-only ledger entry. The current
// portfolio state is always reconstructible by replaying records from the
// starting cash balance.
type TradeRecord struct {
	ID        int64
	Timestamp time.Time
	Symbol    string
	Side      Side
	Qty       float64
	Price     float64
	Notional  float64
	CashAfter float64
	Reason    string
}

var (
	ErrInsufficientCash   = errors.New("insufficient cash")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidTrade       = errors.New("invalid trade")
)

// Positions below this quantity are treated as fully closed.
const dustQty = 1e-8

// Ledger tracks cash and positions for the paper portfolio. ApplyTrade is
// the only mutator; everything else is a read or a mark-to-market refresh.
type Ledger struct {
	mu          sync.RWMutex
	cash        float64
	positions   map[string]*Position
	lastTradeID int64
}

// NewLedger creates an empty ledger with the given starting cash.
func NewLedger(startCash float64) *Ledger {
	return &Ledger{
		cash:      startCash,
		positions: make(map[string]*Position),
	}
}

// NewLedgerWithState restores a ledger from persisted cash, positions and
// the highest trade ID issued so far.
func NewLedgerWithState(cash float64, positions []Position, lastTradeID int64) *Ledger {
	l := NewLedger(cash)
	for _, p := range positions {
		if p.Qty > dustQty {
			pos := p
			l.positions[p.Symbol] = &pos
		}
	}
	l.lastTradeID = lastTradeID
	return l
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

// GetPosition returns a copy of the position for symbol, if held.
func (l *Ledger) GetPosition(symbol string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Positions returns copies of all open positions, sorted by symbol.
func (l *Ledger) Positions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// MarkToMarket refreshes LastPrice on held positions. Quantities and cost
// bases are untouched; symbols missing from prices keep their prior mark.
func (l *Ledger) MarkToMarket(prices map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for sym, p := range l.positions {
		if price, ok := prices[sym]; ok && price > 0 {
			p.LastPrice = price
		}
	}
}

// HoldingsValue returns the market value of all positions at the given
// prices, falling back to each position's last mark.
func (l *Ledger) HoldingsValue(prices map[string]float64) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total float64
	for sym, p := range l.positions {
		price := p.LastPrice
		if v, ok := prices[sym]; ok && v > 0 {
			price = v
		}
		total += p.Qty * price
	}
	return total
}

// Equity returns cash plus the market value of all positions.
func (l *Ledger) Equity(prices map[string]float64) float64 {
	return l.Cash() + l.HoldingsValue(prices)
}

// UnrealizedPnL returns the aggregate gain over cost basis at last marks.
func (l *Ledger) UnrealizedPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total float64
	for _, p := range l.positions {
		if p.LastPrice > 0 {
			total += p.Qty * (p.LastPrice - p.AvgCost)
		}
	}
	return total
}

// ApplyTrade is the sole mutator of cash and positions. BUYs fail with
// ErrInsufficientCash rather than drive cash negative; SELLs fail with
// ErrInsufficientShares rather than create a short. Each success issues
// exactly one trade record with a strictly increasing ID.
func (l *Ledger) ApplyTrade(symbol string, side Side, qty, price float64, reason string) (TradeRecord, error) {
	if symbol == "" || qty <= 0 || price <= 0 {
		return TradeRecord{}, fmt.Errorf("%w: %s %s qty=%f price=%f", ErrInvalidTrade, side, symbol, qty, price)
	}
	if side != SideBuy && side != SideSell {
		return TradeRecord{}, fmt.Errorf("%w: side %q", ErrInvalidTrade, side)
	}
	notional := qty * price

	l.mu.Lock()
	defer l.mu.Unlock()

	switch side {
	case SideBuy:
		if notional > l.cash+1e-9 {
			return TradeRecord{}, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientCash, notional, l.cash)
		}
		l.cash -= notional
		p, ok := l.positions[symbol]
		if !ok {
			p = &Position{Symbol: symbol}
			l.positions[symbol] = p
		}
		newQty := p.Qty + qty
		p.AvgCost = (p.Qty*p.AvgCost + notional) / math.Max(dustQty, newQty)
		p.Qty = newQty
		p.LastPrice = price

	case SideSell:
		p, ok := l.positions[symbol]
		if !ok || qty > p.Qty+1e-9 {
			held := 0.0
			if ok {
				held = p.Qty
			}
			return TradeRecord{}, fmt.Errorf("%w: %s sell %f, held %f", ErrInsufficientShares, symbol, qty, held)
		}
		l.cash += notional
		p.Qty -= qty
		p.LastPrice = price
		if p.Qty <= dustQty {
			delete(l.positions, symbol)
		}
	}

	l.lastTradeID++
	record := TradeRecord{
		ID:        l.lastTradeID,
		Timestamp: time.Now().UTC(),
		Symbol:    symbol,
		Side:      side,
		Qty:       qty,
		Price:     price,
		Notional:  notional,
		CashAfter: l.cash,
		Reason:    reason,
	}
	return record, nil
}

// Replay rebuilds a ledger by applying trade records from a starting cash
// balance. A record that fails to apply stops the replay with an error,
// since the log itself should never contain an inconsistent sequence.
func Replay(startCash float64, records []TradeRecord) (*Ledger, error) {
	l := NewLedger(startCash)
	for _, r := range records {
		if _, err := l.ApplyTrade(r.Symbol, r.Side, r.Qty, r.Price, r.Reason); err != nil {
			return nil, fmt.Errorf("replay trade %d: %w", r.ID, err)
		}
	}
	return l, nil
}
