package pipeline

import "sync/atomic"

// Counters are the process-lifetime enforcement counters. They are
// incremented from every concurrent pipeline invocation with atomic
// semantics; totals may be approximate under races, which is acceptable
// for introspection and never used for enforcement decisions.
type Counters struct {
	totalValidated        atomic.Int64
	inputBlocked          atomic.Int64
	outputBlocked         atomic.Int64
	inputWarnings         atomic.Int64
	outputWarnings        atomic.Int64
	crisisDetected        atomic.Int64
	rateLimited           atomic.Int64
	systemPromptsInjected atomic.Int64
}

// CounterSnapshot is the read-only introspection view.
type CounterSnapshot struct {
	TotalValidated        int64 `json:"total_validated"`
	InputBlocked          int64 `json:"input_blocked"`
	OutputBlocked         int64 `json:"output_blocked"`
	InputWarnings         int64 `json:"input_warnings"`
	OutputWarnings        int64 `json:"output_warnings"`
	CrisisDetected        int64 `json:"crisis_detected"`
	RateLimited           int64 `json:"rate_limited"`
	SystemPromptsInjected int64 `json:"system_prompts_injected"`
}

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		TotalValidated:        c.totalValidated.Load(),
		InputBlocked:          c.inputBlocked.Load(),
		OutputBlocked:         c.outputBlocked.Load(),
		InputWarnings:         c.inputWarnings.Load(),
		OutputWarnings:        c.outputWarnings.Load(),
		CrisisDetected:        c.crisisDetected.Load(),
		RateLimited:           c.rateLimited.Load(),
		SystemPromptsInjected: c.systemPromptsInjected.Load(),
	}
}
