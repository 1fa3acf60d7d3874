package logging

import (
	"context"
	"testing"
)

// ============================================================================
// TEST: Trace IDs
// ============================================================================

func TestGenerateTraceID(t *testing.T) {
	id := GenerateTraceID()
	if len(id) != 32 {
		t.Errorf("Expected 32 hex characters, got %d: %q", len(id), id)
	}
	if GenerateTraceID() == id {
		t.Error("Consecutive trace IDs should differ")
	}
}

// ============================================================================
// TEST: Logger through context
// ============================================================================

func TestNewContextFromContextRoundtrip(t *testing.T) {
	l := New(&Config{Level: "INFO", Output: "stdout", Component: "test"})
	ctx := NewContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Error("FromContext should return the logger stored with NewContext")
	}
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext with no stored logger should return the default")
	}
}

func TestWithTraceContext(t *testing.T) {
	ctx, l := WithTraceContext(context.Background())
	if l == nil {
		t.Fatal("WithTraceContext should return a logger")
	}
	if FromContext(ctx) != l {
		t.Error("The trace logger should be retrievable from the returned context")
	}
}

// ============================================================================
// TEST: Domain logger builders
// ============================================================================

func TestDomainContexts(t *testing.T) {
	if TradeContext("AAPL", "BUY", 2, 185.20) == nil {
		t.Error("TradeContext should return a logger")
	}
	if EdgeContext("AAPL", "SPY") == nil {
		t.Error("EdgeContext should return a logger")
	}
	if DatabaseContext("load", "trades") == nil {
		t.Error("DatabaseContext should return a logger")
	}
}
