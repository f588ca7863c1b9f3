// Package scorer evaluates text against the pattern rule set. Score is a
// pure function: no shared state, safe to call from any number of
// pipelines concurrently, and called twice per request (input and output).
package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/the-governor-hq/llm-api/internal/policy"
	"github.com/the-governor-hq/llm-api/internal/rules"
	"golang.org/x/text/unicode/norm"
)

// Violation records a single negative-rule match.
type Violation struct {
	Category rules.Category `json:"category"`
	Severity rules.Severity `json:"severity"`
	Rule     string         `json:"rule"`
	Matched  string         `json:"matched"`
}

// Verdict is the scored outcome for one text string.
//
// Invariants: Confidence ∈ [0,1]; Safe is true iff Violations is empty;
// CrisisSignal never contributes to Safe or to Violations.
type Verdict struct {
	Safe         bool
	Violations   []Violation
	Confidence   float64
	CrisisSignal bool
}

// Neutral is the verdict for empty text or a disabled engine.
func Neutral() Verdict {
	return Verdict{Safe: true, Confidence: 1.0}
}

// Summary renders violations as `[severity] category: "matched"` joined
// by "; ", the form reported in substitute-response metadata.
func (v Verdict) Summary() string {
	if len(v.Violations) == 0 {
		return ""
	}
	parts := make([]string, 0, len(v.Violations))
	for _, viol := range v.Violations {
		parts = append(parts, fmt.Sprintf("[%s] %s: %q", viol.Severity, viol.Category, viol.Matched))
	}
	return strings.Join(parts, "; ")
}

// Score evaluates text against the rule set under the given policy.
//
// Text is NFKC-normalized first so combining-character sequences cannot
// slip past literal patterns. Each matching negative rule subtracts its
// category weight once (first match per rule, recurrences ignored); the
// accumulator may go negative before clamping. A single +0.1 bonus is
// applied if any suggestive rule matches. Crisis evaluation stops at the
// first match. The result is clamped to [0,1] and rounded to two
// decimals.
func Score(text string, cfg policy.Config) Verdict {
	if !cfg.Enabled || text == "" {
		return Neutral()
	}

	normalized := norm.NFKC.String(text)

	confidence := 1.0
	var violations []Violation

	for _, group := range rules.Negative {
		for _, rule := range group.Rules {
			matched := rule.Pattern.FindString(normalized)
			if matched == "" {
				continue
			}
			violations = append(violations, Violation{
				Category: group.Category,
				Severity: group.Severity,
				Rule:     rule.ID,
				Matched:  matched,
			})
			confidence -= group.Weight
		}
	}

	for _, rule := range rules.Suggestive {
		if rule.Pattern.MatchString(normalized) {
			confidence += rules.SuggestiveBonus
			break
		}
	}

	crisis := false
	for _, rule := range rules.Crisis {
		if rule.Pattern.MatchString(normalized) {
			crisis = true
			break
		}
	}

	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	confidence = math.Round(confidence*100) / 100

	return Verdict{
		Safe:         len(violations) == 0,
		Violations:   violations,
		Confidence:   confidence,
		CrisisSignal: crisis,
	}
}
