package pipeline

import (
	"github.com/the-governor-hq/llm-api/internal/policy"
	"github.com/the-governor-hq/llm-api/internal/scorer"
)

// Action is what the configured mode dictates for a verdict.
type Action int

const (
	// ActionPass lets content through unchanged.
	ActionPass Action = iota + 1
	// ActionAnnotate lets content through with violation metadata attached.
	ActionAnnotate
	// ActionSubstitute replaces content with the domain's safe alternative.
	ActionSubstitute
)

// String returns the lowercase action name.
func (a Action) String() string {
	switch a {
	case ActionPass:
		return "pass"
	case ActionAnnotate:
		return "annotate"
	case ActionSubstitute:
		return "substitute"
	default:
		return "unspecified"
	}
}

// Decide maps a verdict and mode to an action. It is the single mode
// dispatch shared by the input and output scoring sites; crisis signals
// never influence it.
func Decide(verdict scorer.Verdict, mode policy.Mode) Action {
	if verdict.Safe {
		return ActionPass
	}
	switch mode {
	case policy.ModeBlock:
		return ActionSubstitute
	case policy.ModeWarn:
		return ActionAnnotate
	default: // ModeLog
		return ActionPass
	}
}
