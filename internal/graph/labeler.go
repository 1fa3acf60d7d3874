package graph

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"kginvest/internal/logging"
)

// PairClass buckets a sampled node pair for mode-specific behavior.
type PairClass string

const (
	PairInstrumentBellwether PairClass = "instrument_bellwether"
	PairOptionBellwether     PairClass = "option_bellwether"
	PairOptionOption         PairClass = "option_option"
)

// PairMetrics carries the correlation-engine outputs for one assessment.
// Option-only metrics are nil for pure equity pairs.
type PairMetrics struct {
	Correlation    float64
	LowConfidence  bool // fewer than the full correlation window was available
	IVCorrelation  *float64
	DeltaAlignment *float64
	VegaSimilarity *float64
	SpreadLabel    string
	SpreadScore    float64
}

// SemanticRequest is the structured context handed to the LLM collaborator.
type SemanticRequest struct {
	NodeA   Node
	NodeB   Node
	Class   PairClass
	Metrics PairMetrics
}

// SemanticResult is a validated-on-return semantic labeling outcome.
type SemanticResult struct {
	Channels map[string]float64
	Note     string
}

// SemanticLabeler is the external LLM collaborator. Implementations must
// respect their own budget and timeout; any error or nil result makes the
// labeler fall back to heuristics for that assessment.
type SemanticLabeler interface {
	LabelRelationship(ctx context.Context, req SemanticRequest) (*SemanticResult, error)
}

// LabelerConfig holds labeling thresholds and semantic-path probabilities.
type LabelerConfig struct {
	CorrelationThreshold float64       // min |corr| before correlates channels are written
	SemanticInstBellPct  int           // semantic-path probability per pair class
	SemanticOptBellPct   int
	SemanticOptOptPct    int
	OptionPairCooldown   time.Duration // min gap between semantic calls for one option pair
}

// DefaultLabelerConfig returns default labeler configuration.
func DefaultLabelerConfig() *LabelerConfig {
	return &LabelerConfig{
		CorrelationThreshold: 0.25,
		SemanticInstBellPct:  30,
		SemanticOptBellPct:   40,
		SemanticOptOptPct:    50,
		OptionPairCooldown:   time.Hour,
	}
}

// Labeler decides which channels to write on an edge, combining an
// always-on heuristic pass with a probabilistic LLM semantic pass.
type Labeler struct {
	store    *Store
	semantic SemanticLabeler
	config   *LabelerConfig
	logger   *logging.Logger

	mu           sync.Mutex
	lastSemantic map[string]time.Time // option-pair cooldown, keyed by normalized pair
}

// NewLabeler creates a labeler. semantic may be nil for heuristic-only use.
func NewLabeler(store *Store, semantic SemanticLabeler, config *LabelerConfig) *Labeler {
	if config == nil {
		config = DefaultLabelerConfig()
	}
	return &Labeler{
		store:        store,
		semantic:     semantic,
		config:       config,
		logger:       logging.WithComponent("labeler"),
		lastSemantic: make(map[string]time.Time),
	}
}

// Assess writes channels for one node pair and commits the assessment.
// The semantic call, when taken, happens before any store lock is held;
// only the final commit touches guarded state.
func (l *Labeler) Assess(ctx context.Context, a, b Node, metrics PairMetrics) error {
	if _, err := l.store.GetOrCreateEdge(a.ID, b.ID); err != nil {
		return err
	}
	class := classify(a, b)

	var semanticResult *SemanticResult
	if l.shouldCallSemantic(class, a.ID, b.ID) {
		res, err := l.semantic.LabelRelationship(ctx, SemanticRequest{
			NodeA:   a,
			NodeB:   b,
			Class:   class,
			Metrics: metrics,
		})
		if err != nil || res == nil {
			// Fallback to heuristic-only; not escalated.
			logging.FromContext(ctx).Debug("semantic labeling unavailable", "pair", a.ID+"-"+b.ID, "error", err)
		} else {
			semanticResult = res
		}
	}

	l.applyHeuristics(a, b, metrics)
	if semanticResult != nil {
		l.applySemantic(a, b, semanticResult)
	}

	return l.store.CommitAssessment(ctx, a.ID, b.ID)
}

// applyHeuristics writes the deterministic channels derived from the
// correlation engine outputs.
func (l *Labeler) applyHeuristics(a, b Node, m PairMetrics) {
	absCorr := math.Abs(m.Correlation)
	if absCorr > l.config.CorrelationThreshold {
		channel := "correlates"
		if m.Correlation < 0 {
			channel = "inverse_correlates"
		}
		l.upsert(a.ID, b.ID, channel, clamp01(0.35+0.75*absCorr))
	}

	if (isLiquidityBellwether(a) || isLiquidityBellwether(b)) && absCorr >= 0.15 {
		l.upsert(a.ID, b.ID, "liquidity_coupled", clamp01(0.25+0.8*absCorr))
	}

	if m.IVCorrelation != nil && *m.IVCorrelation > l.config.CorrelationThreshold {
		l.upsert(a.ID, b.ID, "iv_correlates", clamp01(0.35+0.75**m.IVCorrelation))
	}
	if m.DeltaAlignment != nil && *m.DeltaAlignment >= 0.6 {
		l.upsert(a.ID, b.ID, "delta_aligned", clamp01(*m.DeltaAlignment))
	}
	if m.SpreadLabel != "" && m.SpreadLabel != "none" {
		l.upsert(a.ID, b.ID, m.SpreadLabel, clamp01(m.SpreadScore))
	}
}

// applySemantic upserts LLM-proposed channels after validating each one
// against the catalog and the [0.10, 1.0] strength band. Invalid entries
// are dropped individually, never coerced. The free-text note lands on the
// edge so the audit trail keeps the model's justification.
func (l *Labeler) applySemantic(a, b Node, res *SemanticResult) {
	for name, strength := range res.Channels {
		if !ValidChannel(name) {
			l.logger.Warn("semantic channel not in catalog", "channel", name, "pair", a.ID+"-"+b.ID)
			continue
		}
		if strength < 0.10 || strength > 1.0 {
			l.logger.Warn("semantic strength out of range", "channel", name, "strength", strength)
			continue
		}
		l.upsert(a.ID, b.ID, name, strength)
	}
	if res.Note != "" {
		if err := l.store.SetEdgeNote(a.ID, b.ID, res.Note); err != nil {
			logging.EdgeContext(a.ID, b.ID).Error("edge note update failed", "error", err)
		}
	}
}

func (l *Labeler) upsert(a, b, channel string, strength float64) {
	if err := l.store.UpsertChannel(a, b, channel, strength); err != nil {
		logging.EdgeContext(a, b).Error("channel upsert failed", "channel", channel, "error", err)
	}
}

// shouldCallSemantic rolls the per-class probability and enforces the
// option-pair cooldown. Heuristic re-assessment is never gated here.
func (l *Labeler) shouldCallSemantic(class PairClass, a, b string) bool {
	if l.semantic == nil {
		return false
	}
	pct := l.config.SemanticInstBellPct
	switch class {
	case PairOptionBellwether:
		pct = l.config.SemanticOptBellPct
	case PairOptionOption:
		pct = l.config.SemanticOptOptPct
	}
	if pct <= 0 || rand.Intn(100) >= pct {
		return false
	}

	if class == PairOptionOption {
		key := pairKey(a, b)
		l.mu.Lock()
		defer l.mu.Unlock()
		if last, ok := l.lastSemantic[key]; ok && time.Since(last) < l.config.OptionPairCooldown {
			return false
		}
		l.lastSemantic[key] = time.Now()
	}
	return true
}

// liquidityBellwethers are the broad index ETFs whose co-movement with any
// instrument reads as shared liquidity flow rather than a specific linkage.
var liquidityBellwethers = map[string]bool{"SPY": true, "QQQ": true}

func isLiquidityBellwether(n Node) bool {
	return n.Kind == KindBellwether && liquidityBellwethers[n.ID]
}

func classify(a, b Node) PairClass {
	optA := a.Kind == KindOptionCall || a.Kind == KindOptionPut
	optB := b.Kind == KindOptionCall || b.Kind == KindOptionPut
	switch {
	case optA && optB:
		return PairOptionOption
	case optA || optB:
		return PairOptionBellwether
	default:
		return PairInstrumentBellwether
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
