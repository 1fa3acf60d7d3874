package think

import "strings"

// reasoningKeywords mark explanations that argue rather than assert.
var reasoningKeywords = []string{
	"because", "however", "therefore", "driven", "while", "but", "risk",
}

// CriticScore rates a sanitized proposal in [0,1]. The base follows the
// model's own confidence; explanations at least minExplanation characters
// long earn a bonus, as does argued reasoning, while overtrading earns
// penalties. minExplanation values at or below zero fall back to 180.
func CriticScore(p *Proposal, minExplanation int) float64 {
	if minExplanation <= 0 {
		minExplanation = 180
	}
	score := 0.22 + 0.48*p.Confidence

	if len(p.Explanation) >= minExplanation {
		score += 0.10
	}

	lower := strings.ToLower(p.Explanation)
	for _, kw := range reasoningKeywords {
		if strings.Contains(lower, kw) {
			score += 0.10
			break
		}
	}

	var buys, sells int
	for _, d := range p.Decisions {
		switch d.Action {
		case ActionBuy:
			buys++
		case ActionSell:
			sells++
		}
	}
	if buys >= 10 {
		score -= 0.06
	}
	if sells >= 10 {
		score -= 0.04
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
