// Package pipeline orchestrates the defense-in-depth enforcement layers
// around a single upstream exchange: admission, prompt injection, input
// scoring, mode dispatch, output scoring and crisis augmentation.
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/the-governor-hq/llm-api/internal/chat"
	"github.com/the-governor-hq/llm-api/internal/policy"
	"github.com/the-governor-hq/llm-api/internal/prompts"
	"github.com/the-governor-hq/llm-api/internal/ratelimit"
	"github.com/the-governor-hq/llm-api/internal/rules"
	"github.com/the-governor-hq/llm-api/internal/scorer"
	"github.com/the-governor-hq/llm-api/internal/storage"
	"github.com/the-governor-hq/llm-api/internal/synth"
	"go.uber.org/zap"
)

// Terminal pipeline outcomes. Every request ends in exactly one; there
// are no retries anywhere on this path.
const (
	OutcomeRateLimited     = "rejected-by-rate-limit"
	OutcomeBlockedInput    = "blocked-on-input"
	OutcomeBlockedOutput   = "blocked-on-output"
	OutcomeClean           = "passed-through-clean"
	OutcomeAnnotated       = "passed-through-annotated"
	OutcomeCrisisAugmented = "passed-through-crisis-augmented"

	// outcomeProceed marks input-stage events for requests that went on
	// to the upstream exchange.
	outcomeProceed = "proceed"
)

// Pipeline evaluates requests and responses against the policy. One
// Pipeline serves all requests; per-request state lives in State.
type Pipeline struct {
	cfg      policy.Config
	limiter  *ratelimit.Limiter
	events   storage.EventWriter
	logger   *zap.Logger
	counters Counters
}

// New creates a pipeline for the given policy. The limiter, event sink
// and logger are injected so tests can run isolated instances.
func New(cfg policy.Config, limiter *ratelimit.Limiter, events storage.EventWriter, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		limiter: limiter,
		events:  events,
		logger:  logger,
	}
}

// Config returns the immutable policy the pipeline enforces.
func (p *Pipeline) Config() policy.Config { return p.cfg }

// Counters exposes the live enforcement counters for introspection.
func (p *Pipeline) Counters() *Counters { return &p.counters }

// State carries per-request decisions from the request leg to the
// response leg.
type State struct {
	RequestID string
	Identity  string
	Model     string

	// PendingCrisis records a crisis signal found on the input side; the
	// resource block is appended on the way out regardless of mode.
	PendingCrisis bool

	start time.Time
}

// RequestResult is the outcome of the request leg.
type RequestResult struct {
	// Outcome is a terminal outcome when Substitute is non-nil,
	// otherwise the request proceeds to the upstream exchange.
	Outcome string

	// Substitute is the synthesized response for a terminal request leg
	// (blocked on input). Nil when the request proceeds.
	Substitute *chat.Completion

	State *State
}

// Terminal reports whether the request leg already produced the final
// response and the upstream must not be contacted.
func (r *RequestResult) Terminal() bool { return r.Substitute != nil }

// ProcessRequest runs admission, prompt injection and input scoring.
// It may rewrite req.Messages in place. A nil result means the request
// was rejected by the rate limiter and the caller should return a
// rate-limit error.
func (p *Pipeline) ProcessRequest(req *chat.CompletionRequest, identity string) *RequestResult {
	state := &State{
		RequestID: uuid.NewString(),
		Identity:  identity,
		Model:     req.Model,
		start:     time.Now(),
	}

	if !p.limiter.Admit(identity, time.Now()) {
		p.counters.rateLimited.Add(1)
		p.logger.Warn("request rejected by rate limit",
			zap.String("request_id", state.RequestID),
			zap.String("identity", identity),
		)
		return &RequestResult{Outcome: OutcomeRateLimited, State: state}
	}

	if !p.cfg.Enabled {
		return &RequestResult{Outcome: outcomeProceed, State: state}
	}

	if p.cfg.InjectSystemPrompt {
		req.Messages = prompts.Inject(req.Messages, p.cfg.Domain)
		p.counters.systemPromptsInjected.Add(1)
	}

	if !p.cfg.ScoreInput {
		return &RequestResult{Outcome: outcomeProceed, State: state}
	}

	text := req.UserText()
	verdict := scorer.Score(text, p.cfg)
	p.counters.totalValidated.Add(1)

	if verdict.CrisisSignal {
		p.counters.crisisDetected.Add(1)
		state.PendingCrisis = true
	}

	outcome := outcomeProceed
	var substitute *chat.Completion

	switch Decide(verdict, p.cfg.Mode) {
	case ActionSubstitute:
		p.counters.inputBlocked.Add(1)
		outcome = OutcomeBlockedInput
		substitute = synth.Blocked(verdict, p.cfg, req.Model)
		// Crisis augmentation applies after the block decision, so the
		// resource block appears on the substitute path too.
		if state.PendingCrisis {
			synth.AppendCrisisResources(substitute)
		}
	case ActionAnnotate:
		p.counters.inputWarnings.Add(1)
		p.logViolations("input", state, verdict)
	case ActionPass:
		if !verdict.Safe {
			// log mode: counted, not logged. Warn and log differ only in
			// whether violation detail is logged on this side.
			p.counters.inputWarnings.Add(1)
		}
	}

	p.writeEvent(state, "input", outcome, text, verdict)

	return &RequestResult{Outcome: outcome, Substitute: substitute, State: state}
}

// ProcessResponse runs output scoring and crisis augmentation on a
// materialized (non-streamed) response and returns the response to send
// plus the terminal outcome. Streamed responses never reach here: the
// chunk relay bypasses output inspection entirely.
func (p *Pipeline) ProcessResponse(state *State, resp *chat.Completion) (*chat.Completion, string) {
	if !p.cfg.Enabled {
		return resp, OutcomeClean
	}

	text := resp.AssistantText()
	outcome := OutcomeClean

	var verdict scorer.Verdict
	scored := false
	if p.cfg.ScoreOutput && text != "" {
		verdict = scorer.Score(text, p.cfg)
		p.counters.totalValidated.Add(1)
		scored = true
		if verdict.CrisisSignal {
			p.counters.crisisDetected.Add(1)
		}
	}

	needCrisis := state.PendingCrisis || (scored && verdict.CrisisSignal)

	if scored {
		switch Decide(verdict, p.cfg.Mode) {
		case ActionSubstitute:
			p.counters.outputBlocked.Add(1)
			outcome = OutcomeBlockedOutput
			resp = synth.Blocked(verdict, p.cfg, state.Model)
		case ActionAnnotate:
			p.counters.outputWarnings.Add(1)
			p.logViolations("output", state, verdict)
			resp.Governor = &chat.PolicyMetadata{
				Mode:       string(p.cfg.Mode),
				Violations: len(verdict.Violations),
				Confidence: verdict.Confidence,
			}
			outcome = OutcomeAnnotated
		case ActionPass:
			if !verdict.Safe {
				p.logViolations("output", state, verdict)
			}
		}
	}

	// Unconditional: resource augmentation happens after the block/pass
	// decision and regardless of mode, whenever either side raised the
	// crisis flag and the response carries assistant text.
	if needCrisis && resp.AssistantText() != "" {
		synth.AppendCrisisResources(resp)
		if outcome == OutcomeClean {
			outcome = OutcomeCrisisAugmented
		}
	}

	if scored {
		p.writeEvent(state, "output", outcome, text, verdict)
	}

	return resp, outcome
}

// logViolations emits violation detail. Best-effort: it never blocks or
// fails the request path, and the sub-toggle can silence it entirely.
func (p *Pipeline) logViolations(stage string, state *State, verdict scorer.Verdict) {
	if !p.cfg.LogViolations {
		return
	}
	p.logger.Warn("policy violations detected",
		zap.String("request_id", state.RequestID),
		zap.String("stage", stage),
		zap.String("mode", string(p.cfg.Mode)),
		zap.Int("violations", len(verdict.Violations)),
		zap.Float64("confidence", verdict.Confidence),
		zap.String("summary", verdict.Summary()),
	)
}

func (p *Pipeline) writeEvent(state *State, stage, outcome, text string, verdict scorer.Verdict) {
	if p.events == nil {
		return
	}

	categories := make([]string, len(verdict.Violations))
	severities := make([]string, len(verdict.Violations))
	ruleIDs := make([]string, len(verdict.Violations))
	matches := make([]string, len(verdict.Violations))
	for i, v := range verdict.Violations {
		categories[i] = string(v.Category)
		severities[i] = string(v.Severity)
		ruleIDs[i] = v.Rule
		matches[i] = v.Matched
	}

	hash := sha256.Sum256([]byte(text))

	p.events.Write(&storage.PolicyEvent{
		RequestID:           state.RequestID,
		Identity:            state.Identity,
		Timestamp:           time.Now(),
		Stage:               stage,
		Domain:              string(p.cfg.Domain),
		Mode:                string(p.cfg.Mode),
		Outcome:             outcome,
		Safe:                verdict.Safe,
		Confidence:          verdict.Confidence,
		CrisisSignal:        verdict.CrisisSignal,
		ViolationCategories: categories,
		ViolationSeverities: severities,
		ViolationRules:      ruleIDs,
		ViolationMatches:    matches,
		RulesVersion:        rules.Version,
		TextPreview:         storage.TruncateText(text, storage.TextPreviewLength),
		TextHash:            hex.EncodeToString(hash[:]),
		TextSize:            uint32(len(text)),
		LatencyMs:           float32(float64(time.Since(state.start)) / float64(time.Millisecond)),
	})
}
