package dream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"kginvest/internal/ai/llm"
	"kginvest/internal/graph"
	"kginvest/internal/logging"
)

// SemanticLabeler proposes relationship channels through the LLM. It
// implements graph.SemanticLabeler; every call passes through the shared
// budget first, and budget exhaustion is reported as no result rather than
// an error so assessments degrade to heuristics quietly.
type SemanticLabeler struct {
	client *llm.Client
	budget *llm.Budget
	logger *logging.Logger
}

// NewSemanticLabeler creates a semantic labeler. budget may be nil.
func NewSemanticLabeler(client *llm.Client, budget *llm.Budget) *SemanticLabeler {
	return &SemanticLabeler{
		client: client,
		budget: budget,
		logger: logging.WithComponent("semantic-labeler"),
	}
}

const semanticSystemPrompt = `You label relationships between financial instruments for a knowledge graph. Given two instruments and their measured statistics, propose the relationship channels that apply.

Respond with a single JSON object and nothing else:
{
  "channels": {"channel_name": strength},
  "note": "one-sentence justification"
}

Strengths are in [0.10, 1.0]. Only use channels from this catalog: %s. Propose only channels the evidence supports; an empty channels object is a valid answer.`

// LabelRelationship implements graph.SemanticLabeler.
func (s *SemanticLabeler) LabelRelationship(ctx context.Context, req graph.SemanticRequest) (*graph.SemanticResult, error) {
	if s.client == nil || !s.client.IsConfigured() {
		return nil, nil
	}
	if s.budget != nil && !s.budget.Acquire() {
		s.logger.Debug("semantic call skipped, budget exhausted")
		return nil, nil
	}

	system := fmt.Sprintf(semanticSystemPrompt, strings.Join(graph.ChannelNames(), ", "))
	obj, _, err := s.client.CompleteJSON(system, buildSemanticPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("semantic labeling call: %w", err)
	}

	var parsed struct {
		Channels map[string]float64 `json:"channels"`
		Note     string             `json:"note"`
	}
	if err := json.Unmarshal(obj, &parsed); err != nil {
		return nil, fmt.Errorf("semantic response malformed: %w", err)
	}
	return &graph.SemanticResult{Channels: parsed.Channels, Note: parsed.Note}, nil
}

func buildSemanticPrompt(req graph.SemanticRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSTRUMENT A: %s (%s) %s\n", req.NodeA.ID, req.NodeA.Kind, req.NodeA.Description)
	fmt.Fprintf(&b, "INSTRUMENT B: %s (%s) %s\n", req.NodeB.ID, req.NodeB.Kind, req.NodeB.Description)
	fmt.Fprintf(&b, "PAIR CLASS: %s\n", req.Class)
	fmt.Fprintf(&b, "RETURN CORRELATION: %.4f", req.Metrics.Correlation)
	if req.Metrics.LowConfidence {
		b.WriteString(" (short history, low confidence)")
	}
	b.WriteString("\n")
	if req.Metrics.IVCorrelation != nil {
		fmt.Fprintf(&b, "IV CORRELATION: %.4f\n", *req.Metrics.IVCorrelation)
	}
	if req.Metrics.DeltaAlignment != nil {
		fmt.Fprintf(&b, "DELTA ALIGNMENT: %.4f\n", *req.Metrics.DeltaAlignment)
	}
	if req.Metrics.VegaSimilarity != nil {
		fmt.Fprintf(&b, "VEGA SIMILARITY: %.4f\n", *req.Metrics.VegaSimilarity)
	}
	if req.Metrics.SpreadLabel != "" && req.Metrics.SpreadLabel != "none" {
		fmt.Fprintf(&b, "SPREAD STRUCTURE: %s (%.2f)\n", req.Metrics.SpreadLabel, req.Metrics.SpreadScore)
	}
	b.WriteString("\nPropose channels.")
	return b.String()
}
