package portfolio

import (
	"errors"
	"math"
	"testing"
)

// floatEquals compares two floats with tolerance
func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

// ============================================================================
// TEST: Buy and sell accounting
// ============================================================================

func TestApplyTrade_BuyThenSell(t *testing.T) {
	l := NewLedger(10000)

	rec, err := l.ApplyTrade("AAPL", SideBuy, 10, 150, "entry")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !floatEquals(rec.Notional, 1500, 1e-9) {
		t.Errorf("Expected notional 1500, got %f", rec.Notional)
	}
	if !floatEquals(l.Cash(), 8500, 1e-9) {
		t.Errorf("Expected cash 8500, got %f", l.Cash())
	}

	pos, held := l.GetPosition("AAPL")
	if !held {
		t.Fatal("Position should exist after buy")
	}
	if !floatEquals(pos.Qty, 10, 1e-9) || !floatEquals(pos.AvgCost, 150, 1e-9) {
		t.Errorf("Expected qty 10 at avg 150, got %f at %f", pos.Qty, pos.AvgCost)
	}

	rec, err = l.ApplyTrade("AAPL", SideSell, 4, 160, "trim")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !floatEquals(l.Cash(), 8500+640, 1e-9) {
		t.Errorf("Expected cash 9140, got %f", l.Cash())
	}
	pos, _ = l.GetPosition("AAPL")
	if !floatEquals(pos.Qty, 6, 1e-9) {
		t.Errorf("Expected remaining qty 6, got %f", pos.Qty)
	}
	if !floatEquals(pos.AvgCost, 150, 1e-9) {
		t.Errorf("Avg cost must not change on sells, got %f", pos.AvgCost)
	}
}

func TestApplyTrade_WeightedAverageCost(t *testing.T) {
	l := NewLedger(10000)

	l.ApplyTrade("AAPL", SideBuy, 10, 100, "")
	l.ApplyTrade("AAPL", SideBuy, 10, 120, "")

	pos, _ := l.GetPosition("AAPL")
	if !floatEquals(pos.AvgCost, 110, 1e-9) {
		t.Errorf("Expected weighted avg cost 110, got %f", pos.AvgCost)
	}
	if !floatEquals(pos.Qty, 20, 1e-9) {
		t.Errorf("Expected qty 20, got %f", pos.Qty)
	}
}

// ============================================================================
// TEST: Overdraw and overshort protection
// ============================================================================

func TestApplyTrade_InsufficientCash(t *testing.T) {
	l := NewLedger(100)

	if _, err := l.ApplyTrade("AAPL", SideBuy, 10, 50, ""); !errors.Is(err, ErrInsufficientCash) {
		t.Errorf("Expected ErrInsufficientCash, got %v", err)
	}
	if !floatEquals(l.Cash(), 100, 1e-9) {
		t.Errorf("Failed buy must not touch cash, got %f", l.Cash())
	}
	if _, held := l.GetPosition("AAPL"); held {
		t.Error("Failed buy must not create a position")
	}
}

func TestApplyTrade_InsufficientShares(t *testing.T) {
	l := NewLedger(10000)
	l.ApplyTrade("AAPL", SideBuy, 5, 100, "")

	if _, err := l.ApplyTrade("AAPL", SideSell, 6, 100, ""); !errors.Is(err, ErrInsufficientShares) {
		t.Errorf("Expected ErrInsufficientShares, got %v", err)
	}
	if _, err := l.ApplyTrade("MSFT", SideSell, 1, 100, ""); !errors.Is(err, ErrInsufficientShares) {
		t.Errorf("Expected ErrInsufficientShares for unheld symbol, got %v", err)
	}

	pos, _ := l.GetPosition("AAPL")
	if !floatEquals(pos.Qty, 5, 1e-9) {
		t.Errorf("Failed sell must not touch the position, got qty %f", pos.Qty)
	}
}

func TestApplyTrade_InvalidInputs(t *testing.T) {
	l := NewLedger(10000)

	cases := []struct {
		symbol string
		side   Side
		qty    float64
		price  float64
	}{
		{"", SideBuy, 1, 100},
		{"AAPL", SideBuy, 0, 100},
		{"AAPL", SideBuy, -1, 100},
		{"AAPL", SideBuy, 1, 0},
		{"AAPL", Side("SHORT"), 1, 100},
	}
	for _, tc := range cases {
		if _, err := l.ApplyTrade(tc.symbol, tc.side, tc.qty, tc.price, ""); !errors.Is(err, ErrInvalidTrade) {
			t.Errorf("Expected ErrInvalidTrade for %+v, got %v", tc, err)
		}
	}
}

// ============================================================================
// TEST: Full exit closes the position
// ============================================================================

func TestApplyTrade_FullSellRemovesPosition(t *testing.T) {
	l := NewLedger(10000)
	l.ApplyTrade("AAPL", SideBuy, 10, 100, "")
	l.ApplyTrade("AAPL", SideSell, 10, 110, "")

	if _, held := l.GetPosition("AAPL"); held {
		t.Error("Fully sold position should be removed")
	}
	if !floatEquals(l.Cash(), 10000-1000+1100, 1e-9) {
		t.Errorf("Expected cash 10100, got %f", l.Cash())
	}
}

// ============================================================================
// TEST: Trade IDs and record integrity
// ============================================================================

func TestApplyTrade_MonotonicIDs(t *testing.T) {
	l := NewLedger(10000)

	r1, _ := l.ApplyTrade("AAPL", SideBuy, 1, 100, "")
	l.ApplyTrade("AAPL", SideSell, 2, 100, "") // fails, no ID issued
	r2, _ := l.ApplyTrade("MSFT", SideBuy, 1, 100, "")

	if r1.ID != 1 || r2.ID != 2 {
		t.Errorf("Expected IDs 1 and 2 with no gap for the failed trade, got %d and %d", r1.ID, r2.ID)
	}
	if !floatEquals(r2.CashAfter, l.Cash(), 1e-9) {
		t.Errorf("Record CashAfter should match ledger cash: %f vs %f", r2.CashAfter, l.Cash())
	}
}

// ============================================================================
// TEST: Replay reconstructs state
// ============================================================================

func TestReplay_MatchesLiveLedger(t *testing.T) {
	l := NewLedger(10000)
	var records []TradeRecord

	steps := []struct {
		symbol string
		side   Side
		qty    float64
		price  float64
	}{
		{"AAPL", SideBuy, 10, 100},
		{"MSFT", SideBuy, 5, 200},
		{"AAPL", SideBuy, 5, 120},
		{"AAPL", SideSell, 8, 130},
		{"MSFT", SideSell, 5, 190},
	}
	for _, s := range steps {
		rec, err := l.ApplyTrade(s.symbol, s.side, s.qty, s.price, "")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		records = append(records, rec)
	}

	replayed, err := Replay(10000, records)
	if err != nil {
		t.Fatalf("Unexpected replay error: %v", err)
	}

	if !floatEquals(replayed.Cash(), l.Cash(), 1e-9) {
		t.Errorf("Replayed cash %f differs from live %f", replayed.Cash(), l.Cash())
	}
	live := l.Positions()
	rep := replayed.Positions()
	if len(live) != len(rep) {
		t.Fatalf("Position counts differ: %d vs %d", len(live), len(rep))
	}
	for i := range live {
		if live[i].Symbol != rep[i].Symbol ||
			!floatEquals(live[i].Qty, rep[i].Qty, 1e-9) ||
			!floatEquals(live[i].AvgCost, rep[i].AvgCost, 1e-9) {
			t.Errorf("Position %s differs after replay: %+v vs %+v", live[i].Symbol, live[i], rep[i])
		}
	}
}

func TestReplay_InconsistentLogFails(t *testing.T) {
	records := []TradeRecord{
		{ID: 1, Symbol: "AAPL", Side: SideSell, Qty: 1, Price: 100},
	}
	if _, err := Replay(1000, records); err == nil {
		t.Error("Replaying a sell with nothing held should fail")
	}
}

// ============================================================================
// TEST: Valuation helpers
// ============================================================================

func TestEquityAndUnrealizedPnL(t *testing.T) {
	l := NewLedger(10000)
	l.ApplyTrade("AAPL", SideBuy, 10, 100, "")

	prices := map[string]float64{"AAPL": 120}
	if !floatEquals(l.Equity(prices), 9000+1200, 1e-9) {
		t.Errorf("Expected equity 10200, got %f", l.Equity(prices))
	}

	l.MarkToMarket(prices)
	if !floatEquals(l.UnrealizedPnL(), 200, 1e-9) {
		t.Errorf("Expected unrealized PnL 200, got %f", l.UnrealizedPnL())
	}
}
