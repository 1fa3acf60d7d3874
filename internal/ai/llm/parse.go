package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when no complete root JSON object can be
// extracted from a response.
var ErrNoJSON = errors.New("no valid JSON object in response")

var markdownFence = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")

// StripMarkdownFence removes a surrounding ```json fence, if present.
func StripMarkdownFence(s string) string {
	s = strings.TrimSpace(s)
	if m := markdownFence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// ExtractRootObject pulls the root JSON object out of an LLM response.
// The whole (fence-stripped) response is parsed first; only if that fails
// is the outermost balanced object scanned out of surrounding prose. A
// nested sub-object is never preferred over the root, and a truncated
// object (unbalanced braces) is a parse failure, not a partial result.
func ExtractRootObject(raw string) (json.RawMessage, error) {
	s := StripMarkdownFence(raw)

	if json.Valid([]byte(s)) && strings.HasPrefix(strings.TrimSpace(s), "{") {
		return json.RawMessage(strings.TrimSpace(s)), nil
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if !json.Valid([]byte(candidate)) {
					return nil, ErrNoJSON
				}
				return json.RawMessage(candidate), nil
			}
		}
	}
	// Ran out of input with braces still open: truncated response.
	return nil, ErrNoJSON
}
