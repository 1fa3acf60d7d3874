package market

import (
	"context"
	"time"
)

// PriceSource is the external last-close data collaborator. It may return
// partial results on network trouble; callers skip missing symbols rather
// than fail the cycle.
type PriceSource interface {
	LastCloseMany(ctx context.Context, symbols []string) (map[string]float64, error)
}

// OptionQuote is one option contract observation from the chains
// collaborator.
type OptionQuote struct {
	Contract     string // e.g. AAPL_C180_0321
	Underlying   string
	Type         string // "call" or "put"
	Strike       float64
	Expiry       time.Time
	Price        float64
	IV           float64
	Delta        float64
	Vega         float64
	Volume       int64
	OpenInterest int64
}

// OptionsSource is the external option-chain collaborator.
type OptionsSource interface {
	Chains(ctx context.Context, underlyings []string) ([]OptionQuote, error)
}
