package dream

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"kginvest/internal/graph"
	"kginvest/internal/logging"
	"kginvest/internal/market"
)

// Cycle states, visible through Stats for observability.
const (
	StateIdle       = "IDLE"
	StateSampling   = "SAMPLING"
	StateFetching   = "FETCHING_HISTORY"
	StateAssessing  = "ASSESSING"
	StateCommitting = "COMMITTING"
)

// Assessment modes.
const (
	ModeInstrumentBellwether = "instrument_bellwether"
	ModeOptionBellwether     = "option_bellwether"
	ModeOptionOption         = "option_option"
)

// EventRecorder receives audit-trail entries from worker cycles.
type EventRecorder interface {
	RecordEvent(ctx context.Context, actor, action, detail string) error
}

// WorkerConfig holds dream worker configuration
type WorkerConfig struct {
	Interval          time.Duration
	Jitter            time.Duration // Random extra delay added per cycle
	MinHistory        int           // Snapshots required before a pair is eligible
	CorrelationWindow int
	IVWindow          int
	InstBellPct       int // Mode draw weights, summing to 100
	OptBellPct        int
	OptOptPct         int
}

// DefaultWorkerConfig returns default dream worker configuration
func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		Interval:          4 * time.Minute,
		Jitter:            30 * time.Second,
		MinHistory:        10,
		CorrelationWindow: 60,
		IVWindow:          30,
		InstBellPct:       60,
		OptBellPct:        20,
		OptOptPct:         20,
	}
}

// Stats is a snapshot of worker progress.
type Stats struct {
	State     string
	Cycles    int
	LastMode  string
	LastPair  string
	LastError string
	LastRunAt time.Time
}

// Worker evolves the knowledge graph: each cycle samples one node pair,
// measures it with the correlation engine, labels the edge and commits.
type Worker struct {
	config  *WorkerConfig
	store   *graph.Store
	labeler *graph.Labeler
	history *market.HistoryStore
	events  EventRecorder // may be nil
	logger  *logging.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	stats    Stats
}

// NewWorker creates a dream worker.
func NewWorker(config *WorkerConfig, store *graph.Store, labeler *graph.Labeler, history *market.HistoryStore, events EventRecorder) *Worker {
	if config == nil {
		config = DefaultWorkerConfig()
	}
	return &Worker{
		config:  config,
		store:   store,
		labeler: labeler,
		history: history,
		events:  events,
		logger:  logging.WithComponent("dream"),
		stats:   Stats{State: StateIdle},
	}
}

// Start starts the dream worker loop
func (w *Worker) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("dream worker already running")
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("dream worker starting", "interval", w.config.Interval.String())

	w.wg.Add(1)
	go w.runLoop()
	return nil
}

// Stop stops the dream worker loop
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("dream worker not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("dream worker stopped")
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

	for {
		w.runCycle()

		delay := w.config.Interval
		if w.config.Jitter > 0 {
			delay += time.Duration(rand.Int63n(int64(w.config.Jitter)))
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-w.stopChan:
			timer.Stop()
			return
		}
	}
}

// runCycle performs one full assessment. Every failure path is caught
// here so no cycle can take the loop down.
func (w *Worker) runCycle() {
	defer func() {
		if r := recover(); r != nil {
			w.setError(fmt.Sprintf("panic: %v", r))
			w.logger.Error("dream cycle panic recovered", "panic", fmt.Sprintf("%v", r))
		}
		w.setState(StateIdle)
	}()

	log := w.logger.WithTraceID(logging.GenerateTraceID())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	// Carry the trace logger to the labeler.
	ctx = logging.NewContext(ctx, log)

	w.setState(StateSampling)
	mode := w.drawMode()
	pair, ok := w.samplePair(ctx, mode)
	if !ok && mode != ModeInstrumentBellwether {
		// Degrade rather than stall when the drawn mode has no eligible pair.
		mode = ModeInstrumentBellwether
		pair, ok = w.samplePair(ctx, mode)
	}
	if !ok {
		log.Debug("no eligible pair this cycle", "mode", mode)
		return
	}

	w.setState(StateFetching)
	metrics, err := w.measurePair(pair)
	if err != nil {
		w.setError(err.Error())
		log.Warn("pair measurement failed", "pair", pair.label(), "error", err)
		return
	}

	w.setState(StateAssessing)
	if err := w.labeler.Assess(ctx, pair.a, pair.b, metrics); err != nil {
		w.setError(err.Error())
		log.Error("assessment failed", "pair", pair.label(), "error", err)
		return
	}
	w.setState(StateCommitting)

	w.mu.Lock()
	w.stats.Cycles++
	w.stats.LastMode = mode
	w.stats.LastPair = pair.label()
	w.stats.LastError = ""
	w.stats.LastRunAt = time.Now().UTC()
	w.mu.Unlock()

	log.Info("pair assessed", "mode", mode, "pair", pair.label(), "correlation", metrics.Correlation)
	if w.events != nil {
		_ = w.events.RecordEvent(ctx, "dream", "assessed", fmt.Sprintf("%s mode=%s corr=%.3f", pair.label(), mode, metrics.Correlation))
	}
}

type sampledPair struct {
	a, b graph.Node
	optA *market.OptionQuote
	optB *market.OptionQuote
}

func (p sampledPair) label() string {
	return p.a.ID + "-" + p.b.ID
}

// drawMode picks an assessment mode by weighted random draw.
func (w *Worker) drawMode() string {
	r := rand.Intn(100)
	switch {
	case r < w.config.InstBellPct:
		return ModeInstrumentBellwether
	case r < w.config.InstBellPct+w.config.OptBellPct:
		return ModeOptionBellwether
	default:
		return ModeOptionOption
	}
}

// samplePair finds a concrete eligible pair for the mode, or reports that
// none exists yet.
func (w *Worker) samplePair(ctx context.Context, mode string) (sampledPair, bool) {
	switch mode {
	case ModeOptionOption:
		contracts := w.history.OptionContracts(w.config.MinHistory)
		if len(contracts) < 2 {
			return sampledPair{}, false
		}
		i := rand.Intn(len(contracts))
		j := rand.Intn(len(contracts) - 1)
		if j >= i {
			j++
		}
		qa, qb := contracts[i], contracts[j]
		na, err := w.ensureOptionNode(ctx, qa)
		if err != nil {
			return sampledPair{}, false
		}
		nb, err := w.ensureOptionNode(ctx, qb)
		if err != nil {
			return sampledPair{}, false
		}
		return sampledPair{a: na, b: nb, optA: &qa, optB: &qb}, true

	case ModeOptionBellwether:
		contracts := w.history.OptionContracts(w.config.MinHistory)
		bells := w.eligibleNodes(graph.KindBellwether)
		if len(contracts) == 0 || len(bells) == 0 {
			return sampledPair{}, false
		}
		q := contracts[rand.Intn(len(contracts))]
		na, err := w.ensureOptionNode(ctx, q)
		if err != nil {
			return sampledPair{}, false
		}
		return sampledPair{a: na, b: bells[rand.Intn(len(bells))], optA: &q}, true

	default:
		insts := w.eligibleNodes(graph.KindInvestible)
		bells := w.eligibleNodes(graph.KindBellwether)
		if len(insts) == 0 || len(bells) == 0 {
			return sampledPair{}, false
		}
		return sampledPair{
			a: insts[rand.Intn(len(insts))],
			b: bells[rand.Intn(len(bells))],
		}, true
	}
}

// eligibleNodes returns active nodes of the kind with enough history.
func (w *Worker) eligibleNodes(kind graph.NodeKind) []graph.Node {
	nodes := w.store.Nodes(kind)
	out := nodes[:0]
	for _, n := range nodes {
		if w.history.Count(n.ID) >= w.config.MinHistory {
			out = append(out, n)
		}
	}
	return out
}

// ensureOptionNode creates the graph node for an option contract on first
// sight and links it to its underlying with the leverage/hedge channel.
func (w *Worker) ensureOptionNode(ctx context.Context, q market.OptionQuote) (graph.Node, error) {
	kind := graph.KindOptionCall
	channel := "options_leverages"
	if q.Type == graph.OptionPut {
		kind = graph.KindOptionPut
		channel = "options_hedges"
	}
	label := fmt.Sprintf("%s %s %.0f %s", q.Underlying, q.Type, q.Strike, q.Expiry.Format("2006-01-02"))
	desc := fmt.Sprintf("%s option on %s, strike %.2f, exp %s", q.Type, q.Underlying, q.Strike, q.Expiry.Format("2006-01-02"))

	node, err := w.store.GetOrCreateNode(ctx, q.Contract, kind, label, desc)
	if err != nil {
		return graph.Node{}, err
	}
	if _, ok := w.store.EdgeBetween(q.Contract, q.Underlying); !ok {
		if _, err := w.store.GetOrCreateEdge(q.Contract, q.Underlying); err != nil {
			return node, err
		}
		strength := math.Min(1, math.Abs(q.Delta)+0.2)
		if err := w.store.UpsertChannel(q.Contract, q.Underlying, channel, strength); err != nil {
			return node, err
		}
		if err := w.store.CommitAssessment(ctx, q.Contract, q.Underlying); err != nil {
			return node, err
		}
	}
	return node, nil
}

// measurePair runs the correlation engine for the sampled pair. Options
// contribute IV correlation, greek alignment and spread structure on top
// of the price-return correlation.
func (w *Worker) measurePair(p sampledPair) (graph.PairMetrics, error) {
	closesA := w.seriesFor(p.a, p.optA)
	closesB := w.seriesFor(p.b, p.optB)

	corr, ok := graph.PriceCorrelation(closesA, closesB, w.config.CorrelationWindow, w.config.MinHistory)
	if !ok {
		return graph.PairMetrics{}, fmt.Errorf("pair %s not yet eligible for correlation", p.label())
	}
	metrics := graph.PairMetrics{
		Correlation:   corr,
		LowConfidence: len(closesA) < w.config.CorrelationWindow || len(closesB) < w.config.CorrelationWindow,
	}

	if p.optA != nil && p.optB != nil {
		if ivc, ok := graph.IVCorrelation(w.history.OptionIVs(p.optA.Contract), w.history.OptionIVs(p.optB.Contract), w.config.IVWindow); ok {
			metrics.IVCorrelation = &ivc
		}
		da := graph.DeltaAlignment(p.optA.Delta, p.optB.Delta)
		metrics.DeltaAlignment = &da
		vs := graph.VegaSimilarity(p.optA.Vega, p.optB.Vega)
		metrics.VegaSimilarity = &vs
		metrics.SpreadLabel, metrics.SpreadScore = graph.SpreadClassification(
			p.optA.Type, p.optB.Type, p.optA.Strike, p.optB.Strike, p.optA.Expiry, p.optB.Expiry)
	}
	return metrics, nil
}

// seriesFor returns the price series backing a node: the underlying's
// closes for equities and bellwethers, the contract IV path for options.
func (w *Worker) seriesFor(n graph.Node, q *market.OptionQuote) []float64 {
	if q != nil {
		return w.history.OptionIVs(q.Contract)
	}
	return w.history.Closes(n.ID)
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
