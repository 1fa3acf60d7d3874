package llm

import (
	"encoding/json"
	"errors"
	"testing"
)

// ============================================================================
// TEST: Markdown fence stripping
// ============================================================================

func TestStripMarkdownFence(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"no fence", `{"a": 1}`, `{"a": 1}`},
		{"whitespace", "  {\"a\": 1}  ", `{"a": 1}`},
	}
	for _, tc := range cases {
		if got := StripMarkdownFence(tc.input); got != tc.expected {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.expected, got)
		}
	}
}

// ============================================================================
// TEST: Root object extraction
// ============================================================================

func TestExtractRootObject_WholeResponse(t *testing.T) {
	obj, err := ExtractRootObject(`{"decisions": [], "confidence": 0.5}`)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(obj, &parsed); err != nil {
		t.Fatalf("Extracted object should parse: %v", err)
	}
	if _, ok := parsed["decisions"]; !ok {
		t.Error("Expected decisions key in extracted object")
	}
}

func TestExtractRootObject_ProseWrapped(t *testing.T) {
	raw := `Here is my analysis:

{"decisions": [{"symbol": "AAPL", "action": "HOLD"}], "confidence": 0.4}

Hope that helps!`
	obj, err := ExtractRootObject(raw)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !json.Valid(obj) {
		t.Error("Extracted object should be valid JSON")
	}
}

func TestExtractRootObject_FencedResponse(t *testing.T) {
	raw := "```json\n{\"confidence\": 0.8}\n```"
	obj, err := ExtractRootObject(raw)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(obj) != `{"confidence": 0.8}` {
		t.Errorf("Unexpected extraction: %s", obj)
	}
}

func TestExtractRootObject_OutermostNotNested(t *testing.T) {
	// The nested agents object must never be extracted in place of the
	// root, even though it appears first after the opening brace.
	raw := `{"agents": {"momentum": "bullish"}, "decisions": [], "confidence": 0.6}`
	obj, err := ExtractRootObject(raw)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(obj, &parsed); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := parsed["decisions"]; !ok {
		t.Error("Extraction returned a nested object instead of the root")
	}
}

func TestExtractRootObject_TruncatedIsFailure(t *testing.T) {
	raw := `{"agents": {"momentum": "bullish"}, "decisions": [{"symbol": "AAPL"`
	if _, err := ExtractRootObject(raw); !errors.Is(err, ErrNoJSON) {
		t.Errorf("Truncated object should be ErrNoJSON, got %v", err)
	}
}

func TestExtractRootObject_NoObject(t *testing.T) {
	if _, err := ExtractRootObject("no json here at all"); !errors.Is(err, ErrNoJSON) {
		t.Errorf("Expected ErrNoJSON, got %v", err)
	}
	if _, err := ExtractRootObject(`[1, 2, 3]`); !errors.Is(err, ErrNoJSON) {
		t.Errorf("A bare array is not a root object, got %v", err)
	}
}

func TestExtractRootObject_BracesInsideStrings(t *testing.T) {
	raw := `Note: {"explanation": "watch the {volatility} regime", "confidence": 0.3} done`
	obj, err := ExtractRootObject(raw)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var parsed struct {
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal(obj, &parsed); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if parsed.Explanation != "watch the {volatility} regime" {
		t.Errorf("Braces inside strings mishandled: %q", parsed.Explanation)
	}
}

func TestExtractRootObject_EscapedQuotes(t *testing.T) {
	raw := `{"explanation": "the \"fear gauge\" spiked", "confidence": 0.3}`
	obj, err := ExtractRootObject(raw)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !json.Valid(obj) {
		t.Error("Extracted object should be valid JSON")
	}
}
