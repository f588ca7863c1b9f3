package config

import (
	"fmt"

	"github.com/the-governor-hq/llm-api/internal/policy"
)

// Policy materializes the governor section into the immutable policy
// config, filling unset fields from policy.Default.
func (c *Config) Policy() (policy.Config, error) {
	p := policy.Default()

	g := c.Governor
	if g.Enabled != nil {
		p.Enabled = *g.Enabled
	}
	if g.InjectSystemPrompt != nil {
		p.InjectSystemPrompt = *g.InjectSystemPrompt
	}
	if g.ScoreInput != nil {
		p.ScoreInput = *g.ScoreInput
	}
	if g.ScoreOutput != nil {
		p.ScoreOutput = *g.ScoreOutput
	}
	if g.LogViolations != nil {
		p.LogViolations = *g.LogViolations
	}
	if g.RateLimit != nil {
		if *g.RateLimit < 0 {
			return policy.Config{}, fmt.Errorf("governor.rate_limit must be non-negative, got %d", *g.RateLimit)
		}
		p.RateLimit = *g.RateLimit
	}

	p.Domain = policy.Domain(g.Domain)
	if !p.Domain.Valid() {
		return policy.Config{}, fmt.Errorf("governor.domain %q is not one of general, wearables, bci, therapy", g.Domain)
	}
	p.Mode = policy.Mode(g.Mode)
	if !p.Mode.Valid() {
		return policy.Config{}, fmt.Errorf("governor.mode %q is not one of block, warn, log", g.Mode)
	}

	return p, nil
}
