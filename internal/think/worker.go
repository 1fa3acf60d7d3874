package think

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"kginvest/internal/database"
	"kginvest/internal/graph"
	"kginvest/internal/logging"
	"kginvest/internal/market"
	"kginvest/internal/portfolio"
)

// Cycle states, visible through Stats.
const (
	StateIdle         = "IDLE"
	StateContext      = "BUILDING_CONTEXT"
	StateDeliberating = "DELIBERATING"
	StateScoring      = "SCORING"
	StateExecuting    = "EXECUTING"
)

// InsightStore persists committee deliberations.
type InsightStore interface {
	SaveInsight(ctx context.Context, insight *database.Insight) error
}

// EventRecorder receives audit-trail entries from worker cycles.
type EventRecorder interface {
	RecordEvent(ctx context.Context, actor, action, detail string) error
}

// WorkerConfig holds think worker configuration
type WorkerConfig struct {
	Interval       time.Duration
	AutoTrade      bool    // Execute starred proposals through the guard rails
	StarThreshold  float64 // Critic score needed to star a proposal
	ExplanationMin int     // Explanation length needed for the critic's length bonus
	GraphEdges     int     // Top edges included in the decision context
	RecentTrades   int     // Recent trades included in the decision context
	Universe       []string
}

// DefaultWorkerConfig returns default think worker configuration
func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		Interval:       5 * time.Minute,
		AutoTrade:      true,
		StarThreshold:  0.72,
		ExplanationMin: 180,
		GraphEdges:     12,
		RecentTrades:   8,
	}
}

// Stats is a snapshot of worker progress.
type Stats struct {
	State      string
	Cycles     int
	Starred    int
	Executed   int
	LastStatus string
	LastScore  float64
	LastError  string
	LastRunAt  time.Time
}

// Worker runs the decision loop: build context, deliberate (or fall back),
// sanitize, score, and push starred proposals through the guard rails.
type Worker struct {
	config    *WorkerConfig
	committee *Committee // nil when the LLM path is disabled
	history   *market.HistoryStore
	store     *graph.Store
	ledger    *portfolio.Ledger
	policy    *portfolio.Policy
	executor  *portfolio.Executor
	insights  InsightStore  // may be nil
	events    EventRecorder // may be nil
	logger    *logging.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	stats    Stats
	recent   []portfolio.TradeRecord
}

// NewWorker creates a think worker.
func NewWorker(
	config *WorkerConfig,
	committee *Committee,
	history *market.HistoryStore,
	store *graph.Store,
	ledger *portfolio.Ledger,
	policy *portfolio.Policy,
	executor *portfolio.Executor,
	insights InsightStore,
	events EventRecorder,
) *Worker {
	if config == nil {
		config = DefaultWorkerConfig()
	}
	return &Worker{
		config:    config,
		committee: committee,
		history:   history,
		store:     store,
		ledger:    ledger,
		policy:    policy,
		executor:  executor,
		insights:  insights,
		events:    events,
		logger:    logging.WithComponent("think"),
		stats:     Stats{State: StateIdle},
	}
}

// Start starts the think worker loop
func (w *Worker) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("think worker already running")
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("think worker starting", "interval", w.config.Interval.String(), "auto_trade", w.config.AutoTrade)

	w.wg.Add(1)
	go w.runLoop()
	return nil
}

// Stop stops the think worker loop
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("think worker not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("think worker stopped")
	return nil
}

// IsRunning returns whether the worker loop is active
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// GetStats returns a copy of the worker stats.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Worker) runLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runCycle()
		case <-w.stopChan:
			return
		}
	}
}

func (w *Worker) runCycle() {
	defer func() {
		if r := recover(); r != nil {
			w.setError(fmt.Sprintf("panic: %v", r))
			w.logger.Error("think cycle panic recovered", "panic", fmt.Sprintf("%v", r))
		}
		w.setState(StateIdle)
	}()

	traceID := uuid.New().String()
	log := w.logger.WithTraceID(traceID)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	ctx = logging.NewContext(ctx, log)

	if w.history.LastSnapshotAt().IsZero() {
		log.Debug("no market snapshot yet, skipping cycle")
		return
	}

	w.setState(StateContext)
	dc := w.buildContext()

	w.setState(StateDeliberating)
	proposal, raw, status := w.deliberate(ctx, dc, log)

	Sanitize(proposal, dc.Universe)

	w.setState(StateScoring)
	score := CriticScore(proposal, w.config.ExplanationMin)
	starred := score >= w.config.StarThreshold

	applied := 0
	if starred && status != database.InsightStatusFallback {
		if w.config.AutoTrade {
			w.setState(StateExecuting)
			status, applied = w.executeProposal(ctx, dc, proposal, log)
		} else {
			status = database.InsightStatusQueued
		}
	} else if status != database.InsightStatusFallback {
		status = database.InsightStatusRejected
	}

	w.recordInsight(ctx, traceID, status, starred, score, proposal, raw, dc)

	w.mu.Lock()
	w.stats.Cycles++
	if starred {
		w.stats.Starred++
	}
	w.stats.Executed += applied
	w.stats.LastStatus = status
	w.stats.LastScore = score
	w.stats.LastError = ""
	w.stats.LastRunAt = time.Now().UTC()
	w.mu.Unlock()

	log.Info("deliberation complete",
		"status", status, "starred", starred, "critic_score", score,
		"decisions", len(proposal.Decisions), "trades_applied", applied)
	if w.events != nil {
		_ = w.events.RecordEvent(ctx, "think", "deliberated",
			fmt.Sprintf("status=%s starred=%t score=%.3f signal=%s", status, starred, score, dc.DominantSignal()))
	}
}

// buildContext assembles the committee's view of the world.
func (w *Worker) buildContext() *DecisionContext {
	prices := w.history.LastPrices()
	w.ledger.MarkToMarket(prices)

	indicators := make(map[string]market.Indicators, len(w.config.Universe))
	for _, sym := range w.config.Universe {
		indicators[sym] = market.ComputeIndicators(w.history.Closes(sym))
	}
	bellMom := make(map[string]float64)
	for sym := range prices {
		if _, ok := indicators[sym]; !ok {
			bellMom[sym] = market.ComputeIndicators(w.history.Closes(sym)).Mom5
		}
	}
	signals := market.ComputeSignals(bellMom)

	positions := w.ledger.Positions()
	touching := make([]string, 0, len(positions)+len(w.config.Universe))
	for _, pos := range positions {
		touching = append(touching, pos.Symbol)
	}
	touching = append(touching, w.config.Universe...)

	return &DecisionContext{
		Prices:     prices,
		Indicators: indicators,
		Signals:    signals,
		Cash:       w.ledger.Cash(),
		Equity:     w.ledger.Equity(prices),
		Positions:  positions,
		Edges:      w.store.TopEdgesTouching(touching, w.config.GraphEdges),
		Recent:     w.recentTrades(),
		Universe:   w.config.Universe,
	}
}

func (w *Worker) rememberTrades(applied []portfolio.TradeRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recent = append(w.recent, applied...)
	if len(w.recent) > w.config.RecentTrades {
		w.recent = w.recent[len(w.recent)-w.config.RecentTrades:]
	}
}

func (w *Worker) recentTrades() []portfolio.TradeRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]portfolio.TradeRecord, len(w.recent))
	copy(out, w.recent)
	return out
}

// deliberate runs the committee path with fallback to the rule-based
// generator. The returned status is the provisional insight status; callers
// refine it after scoring.
func (w *Worker) deliberate(ctx context.Context, dc *DecisionContext, log *logging.Logger) (*Proposal, string, string) {
	if w.committee == nil {
		return FallbackProposal(dc), "", database.InsightStatusFallback
	}

	proposal, raw, err := w.committee.Deliberate(ctx, dc)
	if err != nil {
		if errors.Is(err, ErrBudgetExhausted) {
			log.Warn("llm budget exhausted, using fallback")
		} else {
			log.Warn("committee unavailable, using fallback", "error", err)
		}
		return FallbackProposal(dc), raw, database.InsightStatusFallback
	}
	return proposal, raw, ""
}

// executeProposal turns a starred proposal into intents and pushes them
// through guard rails and the executor.
func (w *Worker) executeProposal(ctx context.Context, dc *DecisionContext, p *Proposal, log *logging.Logger) (string, int) {
	intents := w.buildIntents(dc, p)
	if len(intents) == 0 {
		return database.InsightStatusQueued, 0
	}

	state := portfolio.State{Cash: dc.Cash, Positions: make(map[string]portfolio.Position, len(dc.Positions))}
	for _, pos := range dc.Positions {
		state.Positions[pos.Symbol] = pos
	}

	approved, rejected := w.policy.Evaluate(intents, state, dc.Prices)
	for _, rej := range rejected {
		log.Info("intent rejected by guard rail",
			"symbol", rej.Intent.Symbol, "side", string(rej.Intent.Side),
			"rule", rej.Rule, "detail", rej.Detail)
	}

	// Everything bounced on the trading window: park the proposal rather
	// than discard it.
	if len(approved) == 0 {
		allWindow := len(rejected) > 0
		for _, rej := range rejected {
			if rej.Rule != portfolio.RuleTradingWindow {
				allWindow = false
				break
			}
		}
		if allWindow {
			return database.InsightStatusQueued, 0
		}
		return database.InsightStatusRejected, 0
	}

	applied, err := w.executor.Execute(ctx, approved, dc.Prices)
	if err != nil {
		w.setError(err.Error())
		log.Error("trade batch persistence failed", "error", err)
	}
	if len(applied) == 0 {
		return database.InsightStatusRejected, 0
	}
	for _, rec := range applied {
		logging.TradeContext(rec.Symbol, string(rec.Side), rec.Qty, rec.Price).
			Info("committee trade applied", "trade_id", rec.ID)
	}
	w.rememberTrades(applied)
	return database.InsightStatusExecuted, len(applied)
}

// buildIntents converts decisions to sized intents. BUY allocation is a
// percent of total equity; SELL allocation a percent of the held quantity.
func (w *Worker) buildIntents(dc *DecisionContext, p *Proposal) []portfolio.Intent {
	var intents []portfolio.Intent
	for _, d := range p.Decisions {
		if d.AllocationPct <= 0 {
			continue
		}
		price, ok := dc.Prices[d.Symbol]
		if !ok || price <= 0 {
			continue
		}

		switch d.Action {
		case ActionBuy:
			notional := dc.Equity * d.AllocationPct / 100
			intents = append(intents, portfolio.Intent{
				Symbol: d.Symbol,
				Side:   portfolio.SideBuy,
				Qty:    notional / price,
				Reason: d.Rationale,
			})
		case ActionSell:
			pos, held := w.ledger.GetPosition(d.Symbol)
			if !held {
				continue
			}
			intents = append(intents, portfolio.Intent{
				Symbol: d.Symbol,
				Side:   portfolio.SideSell,
				Qty:    pos.Qty * d.AllocationPct / 100,
				Reason: d.Rationale,
			})
		}
	}
	return intents
}

func (w *Worker) recordInsight(ctx context.Context, traceID, status string, starred bool, score float64, p *Proposal, raw string, dc *DecisionContext) {
	if w.insights == nil {
		return
	}
	decisions, _ := json.Marshal(p.Decisions)
	insight := &database.Insight{
		TraceID:     traceID,
		Status:      status,
		Starred:     starred,
		Confidence:  p.Confidence,
		CriticScore: score,
		Explanation: fmt.Sprintf("[%s] %s", dc.DominantSignal(), p.Explanation),
		Agents:      p.Agents,
		Decisions:   decisions,
		RawResponse: raw,
	}
	if err := w.insights.SaveInsight(ctx, insight); err != nil {
		logging.FromContext(ctx).Error("insight save failed", "error", err)
	}
}

func (w *Worker) setState(state string) {
	w.mu.Lock()
	w.stats.State = state
	w.mu.Unlock()
}

func (w *Worker) setError(msg string) {
	w.mu.Lock()
	w.stats.LastError = msg
	w.mu.Unlock()
}
