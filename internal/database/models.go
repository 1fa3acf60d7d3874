package database

import (
	"encoding/json"
	"time"
)

// Insight statuses.
const (
	InsightStatusExecuted = "EXECUTED"
	InsightStatusQueued   = "QUEUED"
	InsightStatusRejected = "REJECTED"
	InsightStatusFallback = "FALLBACK"
)

// Insight is one recorded committee deliberation, including the raw model
// output for later audit.
type Insight struct {
	ID          int64           `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	TraceID     string          `json:"trace_id"`
	Status      string          `json:"status"`
	Starred     bool            `json:"starred"`
	Confidence  float64         `json:"confidence"`
	CriticScore float64         `json:"critic_score"`
	Explanation string          `json:"explanation"`
	Agents      json.RawMessage `json:"agents,omitempty"`
	Decisions   json.RawMessage `json:"decisions,omitempty"`
	RawResponse string          `json:"-"`
}

// Event is one worker audit-trail entry.
type Event struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
}
