package portfolio

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
)

// TradePersister stores an executed batch together with the resulting
// portfolio state. Implementations should write the whole unit in a single
// transaction. A nil persister keeps the ledger purely in memory.
type TradePersister interface {
	PersistTrades(ctx context.Context, records []TradeRecord, cash float64, positions []Position) error
}

// Executor applies guard-rail-approved intents to the ledger. SELLs run
// before BUYs so freed cash is available within the same batch.
type Executor struct {
	ledger    *Ledger
	persister TradePersister
	logger    zerolog.Logger
}

// NewExecutor creates a trade executor.
func NewExecutor(ledger *Ledger, persister TradePersister, logger zerolog.Logger) *Executor {
	return &Executor{
		ledger:    ledger,
		persister: persister,
		logger:    logger.With().Str("component", "executor").Logger(),
	}
}

// Execute applies each approved intent through the ledger. An individual
// failure (cash consumed by an earlier intent in the batch, stale price)
// is logged and skipped; the batch continues. Returns the trade records
// that actually applied, which may be fewer than the intents.
func (e *Executor) Execute(ctx context.Context, approved []Intent, prices map[string]float64) ([]TradeRecord, error) {
	ordered := make([]Intent, len(approved))
	copy(ordered, approved)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Side == SideSell && ordered[j].Side != SideSell
	})

	applied := make([]TradeRecord, 0, len(ordered))
	for _, intent := range ordered {
		price, ok := prices[intent.Symbol]
		if !ok || price <= 0 {
			e.logger.Warn().
				Str("symbol", intent.Symbol).
				Str("side", string(intent.Side)).
				Msg("Skipping intent with no price")
			continue
		}

		var realizedBasis float64
		if intent.Side == SideSell {
			if pos, held := e.ledger.GetPosition(intent.Symbol); held {
				realizedBasis = pos.AvgCost
			}
		}

		record, err := e.ledger.ApplyTrade(intent.Symbol, intent.Side, intent.Qty, price, intent.Reason)
		if err != nil {
			e.logger.Warn().
				Err(err).
				Str("symbol", intent.Symbol).
				Str("side", string(intent.Side)).
				Float64("qty", intent.Qty).
				Msg("Trade failed, skipping")
			continue
		}

		evt := e.logger.Info().
			Int64("trade_id", record.ID).
			Str("symbol", record.Symbol).
			Str("side", string(record.Side)).
			Float64("qty", record.Qty).
			Float64("price", record.Price).
			Float64("notional", record.Notional).
			Float64("cash_after", record.CashAfter)
		if intent.Side == SideSell && realizedBasis > 0 {
			evt = evt.Float64("realized_pnl", record.Notional-record.Qty*realizedBasis)
		}
		evt.Msg("Trade applied")

		applied = append(applied, record)
	}

	if len(applied) > 0 && e.persister != nil {
		if err := e.persister.PersistTrades(ctx, applied, e.ledger.Cash(), e.ledger.Positions()); err != nil {
			e.logger.Error().Err(err).Int("trades", len(applied)).Msg("Failed to persist trade batch")
			return applied, err
		}
	}
	return applied, nil
}
