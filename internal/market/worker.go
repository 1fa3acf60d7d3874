package market

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"kginvest/internal/logging"
)

// Snapshot is one persisted market observation: the universe's last
// closes plus derived indicators and macro signals.
type Snapshot struct {
	Timestamp  time.Time
	Prices     map[string]float64
	Indicators map[string]Indicators
	Signals    Signals
}

// SnapshotPersister stores one snapshot per cycle.
type SnapshotPersister interface {
	PersistSnapshot(ctx context.Context, snap Snapshot) error
}

// WorkerConfig holds market worker configuration
type WorkerConfig struct {
	Interval              time.Duration
	Investibles           []string
	Bellwethers           []string
	OptionSampleSize      int   // Underlyings whose chains are refreshed per cycle
	OptionsPerUnderlying  int   // Contracts kept per underlying
	OptionMinVolume       int64 // Liquidity floor
	OptionMinOpenInterest int64
}

// DefaultWorkerConfig returns default market worker configuration
func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		Interval:              3 * time.Minute,
		OptionSampleSize:      3,
		OptionsPerUnderlying:  4,
		OptionMinVolume:       50,
		OptionMinOpenInterest: 100,
	}
}

// Worker periodically snapshots the price universe into the history store
// and persists the result. Option chains are refreshed for a rotating
// sample of underlyings when a chains collaborator is configured.
type Worker struct {
	config    *WorkerConfig
	source    PriceSource
	options   OptionsSource // may be nil
	history   *HistoryStore
	persister SnapshotPersister
	logger    *logging.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWorker creates a market worker. options and persister may be nil.
func NewWorker(config *WorkerConfig, source PriceSource, options OptionsSource, history *HistoryStore, persister SnapshotPersister) *Worker {
	if config == nil {
		config = DefaultWorkerConfig()
	}
	return &Worker{
		config:    config,
		source:    source,
		options:   options,
		history:   history,
		persister: persister,
		logger:    logging.WithComponent("market"),
	}
}

// Start starts the market worker loop
func (w *Worker) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("market worker already running")
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("market worker starting", "interval", w.config.Interval.String())

	w.wg.Add(1)
	go w.runLoop()
	return nil
}

// Stop stops the market worker loop
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("market worker not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("market worker stopped")
	return nil
}

// IsRunning returns whether the worker loop is active
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) runLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	// Take a snapshot immediately on start
	w.runCycle()

	for {
		select {
		case <-ticker.C:
			w.runCycle()
		case <-w.stopChan:
			return
		}
	}
}

// runCycle fetches one snapshot. Any failure is logged and the loop
// carries on to the next tick.
func (w *Worker) runCycle() {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("market cycle panic recovered", "panic", fmt.Sprintf("%v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	universe := append(append([]string{}, w.config.Investibles...), w.config.Bellwethers...)
	prices, err := w.source.LastCloseMany(ctx, universe)
	if err != nil {
		w.logger.Warn("price fetch failed", "error", err)
		return
	}
	if len(prices) == 0 {
		w.logger.Warn("price fetch returned no symbols")
		return
	}
	if len(prices) < len(universe) {
		w.logger.Debug("partial price fetch", "got", len(prices), "wanted", len(universe))
	}

	now := time.Now().UTC()
	w.history.Append(now, prices)

	indicators := make(map[string]Indicators, len(prices))
	for sym := range prices {
		indicators[sym] = ComputeIndicators(w.history.Closes(sym))
	}
	bellMom := make(map[string]float64, len(w.config.Bellwethers))
	for _, sym := range w.config.Bellwethers {
		bellMom[sym] = indicators[sym].Mom5
	}
	signals := ComputeSignals(bellMom)

	if w.persister != nil {
		snap := Snapshot{Timestamp: now, Prices: prices, Indicators: indicators, Signals: signals}
		if err := w.persister.PersistSnapshot(ctx, snap); err != nil {
			w.logger.Error("snapshot persist failed", "error", err)
		}
	}

	w.refreshOptions(ctx)
}

// refreshOptions pulls chains for a rotating sample of underlyings and
// records the liquid contracts into the history store.
func (w *Worker) refreshOptions(ctx context.Context) {
	if w.options == nil || len(w.config.Investibles) == 0 {
		return
	}

	sample := sampleSymbols(w.config.Investibles, w.config.OptionSampleSize)
	quotes, err := w.options.Chains(ctx, sample)
	if err != nil {
		w.logger.Warn("option chain fetch failed", "underlyings", sample, "error", err)
		return
	}

	perUnderlying := make(map[string][]OptionQuote)
	for _, q := range quotes {
		if q.Volume < w.config.OptionMinVolume || q.OpenInterest < w.config.OptionMinOpenInterest {
			continue
		}
		perUnderlying[q.Underlying] = append(perUnderlying[q.Underlying], q)
	}

	kept := 0
	for _, contracts := range perUnderlying {
		sort.Slice(contracts, func(i, j int) bool {
			return contracts[i].Volume+contracts[i].OpenInterest > contracts[j].Volume+contracts[j].OpenInterest
		})
		if len(contracts) > w.config.OptionsPerUnderlying {
			contracts = contracts[:w.config.OptionsPerUnderlying]
		}
		for _, q := range contracts {
			w.history.AppendOption(q)
			kept++
		}
	}
	if kept > 0 {
		w.logger.Debug("option contracts refreshed", "underlyings", len(perUnderlying), "contracts", kept)
	}
}

func sampleSymbols(symbols []string, n int) []string {
	if n >= len(symbols) {
		out := make([]string, len(symbols))
		copy(out, symbols)
		return out
	}
	idx := rand.Perm(len(symbols))[:n]
	out := make([]string, 0, n)
	for _, i := range idx {
		out = append(out, symbols[i])
	}
	return out
}
