package portfolio

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type capturePersister struct {
	records   []TradeRecord
	cash      float64
	positions []Position
	calls     int
	fail      bool
}

func (c *capturePersister) PersistTrades(ctx context.Context, records []TradeRecord, cash float64, positions []Position) error {
	c.calls++
	if c.fail {
		return errors.New("storage down")
	}
	c.records = records
	c.cash = cash
	c.positions = positions
	return nil
}

// ============================================================================
// TEST: Sells execute before buys
// ============================================================================

func TestExecute_SellsFirst(t *testing.T) {
	l := NewLedger(100)
	l.ApplyTrade("AAPL", SideBuy, 1, 100, "") // cash now 0
	e := NewExecutor(l, nil, zerolog.Nop())

	// The buy is only affordable with the sell's proceeds, so ordering
	// matters even though the buy comes first in the batch.
	intents := []Intent{
		{Symbol: "MSFT", Side: SideBuy, Qty: 1},
		{Symbol: "AAPL", Side: SideSell, Qty: 1},
	}
	prices := map[string]float64{"AAPL": 110, "MSFT": 100}

	applied, err := e.Execute(context.Background(), intents, prices)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("Expected both trades applied, got %d", len(applied))
	}
	if applied[0].Side != SideSell || applied[1].Side != SideBuy {
		t.Errorf("Expected sell before buy, got %s then %s", applied[0].Side, applied[1].Side)
	}
}

// ============================================================================
// TEST: Individual failures skip, batch continues
// ============================================================================

func TestExecute_SkipsFailingIntent(t *testing.T) {
	l := NewLedger(150)
	e := NewExecutor(l, nil, zerolog.Nop())

	intents := []Intent{
		{Symbol: "AAPL", Side: SideBuy, Qty: 1}, // $100, fine
		{Symbol: "MSFT", Side: SideBuy, Qty: 1}, // $100 > $50 left, skipped
		{Symbol: "NVDA", Side: SideBuy, Qty: 0.5}, // $50, fine
	}
	prices := map[string]float64{"AAPL": 100, "MSFT": 100, "NVDA": 100}

	applied, err := e.Execute(context.Background(), intents, prices)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("Expected 2 applied trades, got %d", len(applied))
	}
	if applied[0].Symbol != "AAPL" || applied[1].Symbol != "NVDA" {
		t.Errorf("Expected AAPL and NVDA applied, got %+v", applied)
	}
}

func TestExecute_SkipsMissingPrice(t *testing.T) {
	l := NewLedger(1000)
	e := NewExecutor(l, nil, zerolog.Nop())

	intents := []Intent{{Symbol: "AAPL", Side: SideBuy, Qty: 1}}
	applied, err := e.Execute(context.Background(), intents, map[string]float64{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(applied) != 0 {
		t.Error("Intent without a price should be skipped")
	}
}

// ============================================================================
// TEST: Batch persistence
// ============================================================================

func TestExecute_PersistsOnce(t *testing.T) {
	l := NewLedger(1000)
	p := &capturePersister{}
	e := NewExecutor(l, p, zerolog.Nop())

	intents := []Intent{
		{Symbol: "AAPL", Side: SideBuy, Qty: 1},
		{Symbol: "MSFT", Side: SideBuy, Qty: 2},
	}
	prices := map[string]float64{"AAPL": 100, "MSFT": 100}

	if _, err := e.Execute(context.Background(), intents, prices); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.calls != 1 {
		t.Errorf("Expected exactly one persist call per batch, got %d", p.calls)
	}
	if len(p.records) != 2 {
		t.Errorf("Expected 2 records persisted, got %d", len(p.records))
	}
	if !floatEquals(p.cash, 700, 1e-9) {
		t.Errorf("Expected persisted cash 700, got %f", p.cash)
	}
	if len(p.positions) != 2 {
		t.Errorf("Expected 2 persisted positions, got %d", len(p.positions))
	}
}

func TestExecute_PersistFailureSurfacedWithRecords(t *testing.T) {
	l := NewLedger(1000)
	p := &capturePersister{fail: true}
	e := NewExecutor(l, p, zerolog.Nop())

	intents := []Intent{{Symbol: "AAPL", Side: SideBuy, Qty: 1}}
	applied, err := e.Execute(context.Background(), intents, map[string]float64{"AAPL": 100})
	if err == nil {
		t.Fatal("Expected persist failure to surface")
	}
	if len(applied) != 1 {
		t.Error("Applied records should be returned even when persistence fails")
	}
}

func TestExecute_EmptyBatchSkipsPersist(t *testing.T) {
	l := NewLedger(1000)
	p := &capturePersister{}
	e := NewExecutor(l, p, zerolog.Nop())

	if _, err := e.Execute(context.Background(), nil, nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.calls != 0 {
		t.Error("Empty batch should not reach the persister")
	}
}
