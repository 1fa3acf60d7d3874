package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceContext adds a trace ID to the context and returns a logger with it
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := Default().WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// TradeContext creates a logger context for paper-trade operations
func TradeContext(symbol, side string, qty, price float64) *Logger {
	return Default().
		WithField("symbol", symbol).
		WithField("side", side).
		WithField("qty", qty).
		WithField("price", price).
		WithComponent("trade")
}

// EdgeContext creates a logger context for graph edge operations
func EdgeContext(nodeA, nodeB string) *Logger {
	return Default().
		WithField("node_a", nodeA).
		WithField("node_b", nodeB).
		WithComponent("graph")
}

// DatabaseContext creates a logger context for database operations
func DatabaseContext(operation, table string) *Logger {
	return Default().
		WithField("operation", operation).
		WithField("table", table).
		WithComponent("database")
}
