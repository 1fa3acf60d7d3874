package think

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"kginvest/internal/ai/llm"
	"kginvest/internal/logging"
)

// Decision actions.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

var (
	ErrBudgetExhausted  = errors.New("llm call budget exhausted")
	ErrMissingDecisions = errors.New("response has no top-level decisions key")
)

// Decision is one per-symbol committee verdict.
type Decision struct {
	Symbol        string  `json:"symbol"`
	Action        string  `json:"action"`
	AllocationPct float64 `json:"allocation_pct"`
	Rationale     string  `json:"rationale,omitempty"`
}

// Proposal is one full committee deliberation after parsing.
type Proposal struct {
	Agents      json.RawMessage `json:"agents,omitempty"`
	Decisions   []Decision      `json:"decisions"`
	Explanation string          `json:"explanation"`
	Confidence  float64         `json:"confidence"`
}

// Committee runs the multi-agent deliberation against the LLM. Every call
// passes through the shared budget first.
type Committee struct {
	client *llm.Client
	budget *llm.Budget
	logger *logging.Logger
}

// NewCommittee creates a committee. budget may be nil for unbudgeted use.
func NewCommittee(client *llm.Client, budget *llm.Budget) *Committee {
	return &Committee{
		client: client,
		budget: budget,
		logger: logging.WithComponent("committee"),
	}
}

const committeeSystemPrompt = `You are an investment committee of three agents deliberating over a paper portfolio: a MOMENTUM agent, a RISK agent, and a MACRO agent. Each agent states a short view, then the committee issues per-symbol decisions.

Respond with a single JSON object and nothing else:
{
  "agents": {"momentum": "...", "risk": "...", "macro": "..."},
  "decisions": [{"symbol": "AAPL", "action": "BUY|SELL|HOLD", "allocation_pct": 0-80, "rationale": "..."}],
  "explanation": "committee reasoning, at least a few sentences",
  "confidence": 0.0-1.0
}

allocation_pct for BUY is the percent of total equity to deploy; for SELL the percent of the held position to unwind. Omit symbols you have no view on only if you mark them HOLD. Be decisive but conservative.`

// Deliberate sends the decision context to the model and parses the
// proposal. The raw response text is returned alongside for audit storage,
// including on parse failure.
func (c *Committee) Deliberate(ctx context.Context, dc *DecisionContext) (*Proposal, string, error) {
	if c.client == nil || !c.client.IsConfigured() {
		return nil, "", fmt.Errorf("llm client not configured")
	}
	if c.budget != nil && !c.budget.Acquire() {
		return nil, "", ErrBudgetExhausted
	}

	userPrompt := dc.Prompt()
	obj, raw, err := c.client.CompleteJSON(committeeSystemPrompt, userPrompt)
	if err != nil {
		return nil, raw, fmt.Errorf("committee call failed: %w", err)
	}

	proposal, err := ParseProposal(obj)
	if err != nil {
		return nil, raw, err
	}
	return proposal, raw, nil
}

// ParseProposal decodes a committee response object. The decisions key must
// exist at the top level of the extracted object; decision-shaped content
// nested anywhere else (inside agents, say) never counts.
func ParseProposal(obj json.RawMessage) (*Proposal, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(obj, &top); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	rawDecisions, ok := top["decisions"]
	if !ok {
		return nil, ErrMissingDecisions
	}

	proposal := &Proposal{Agents: top["agents"]}
	if err := json.Unmarshal(rawDecisions, &proposal.Decisions); err != nil {
		return nil, fmt.Errorf("decisions malformed: %w", err)
	}
	if raw, ok := top["explanation"]; ok {
		_ = json.Unmarshal(raw, &proposal.Explanation)
	}
	if raw, ok := top["confidence"]; ok {
		_ = json.Unmarshal(raw, &proposal.Confidence)
	}

	for i := range proposal.Decisions {
		proposal.Decisions[i].Symbol = strings.ToUpper(strings.TrimSpace(proposal.Decisions[i].Symbol))
		proposal.Decisions[i].Action = strings.ToUpper(strings.TrimSpace(proposal.Decisions[i].Action))
	}
	return proposal, nil
}
