package policy

// Domain selects the safety-policy vertical: which system prompt is
// injected and which safe-alternative text replaces blocked content.
type Domain string

const (
	DomainGeneral   Domain = "general"
	DomainWearables Domain = "wearables"
	DomainBCI       Domain = "bci"
	DomainTherapy   Domain = "therapy"
)

// Valid reports whether d is one of the known domains.
func (d Domain) Valid() bool {
	switch d {
	case DomainGeneral, DomainWearables, DomainBCI, DomainTherapy:
		return true
	}
	return false
}

// Mode controls how a negative verdict is acted upon.
type Mode string

const (
	// ModeBlock substitutes a safe-alternative response.
	ModeBlock Mode = "block"
	// ModeWarn passes content through but attaches violation metadata
	// and logs the detail.
	ModeWarn Mode = "warn"
	// ModeLog passes content through unchanged and only logs.
	ModeLog Mode = "log"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeBlock, ModeWarn, ModeLog:
		return true
	}
	return false
}

// Config is the enforcement policy. It is immutable for the process
// lifetime: build it once at startup and pass it by value.
type Config struct {
	// Enabled is the master toggle. When false every scored text gets
	// the neutral verdict and the rate limiter always admits.
	Enabled bool

	Domain Domain
	Mode   Mode

	// Sub-toggles for the individual enforcement layers.
	InjectSystemPrompt bool
	ScoreInput         bool
	ScoreOutput        bool
	LogViolations      bool

	// RateLimit is the per-identity request ceiling per window.
	// 0 disables rate limiting.
	RateLimit int
}

// Default returns the policy used when nothing is configured:
// everything on, block mode, general domain, 30 requests per window.
func Default() Config {
	return Config{
		Enabled:            true,
		Domain:             DomainGeneral,
		Mode:               ModeBlock,
		InjectSystemPrompt: true,
		ScoreInput:         true,
		ScoreOutput:        true,
		LogViolations:      true,
		RateLimit:          30,
	}
}

// Snapshot is the introspection view of a Config. It carries no secrets
// and marshals to the status endpoint's JSON shape.
type Snapshot struct {
	Enabled            bool   `json:"enabled"`
	Domain             string `json:"domain"`
	Mode               string `json:"mode"`
	InjectSystemPrompt bool   `json:"inject_system_prompt"`
	ScoreInput         bool   `json:"score_input"`
	ScoreOutput        bool   `json:"score_output"`
	LogViolations      bool   `json:"log_violations"`
	RateLimit          int    `json:"rate_limit"`
}

// Snapshot returns the read-only introspection view of the config.
func (c Config) Snapshot() Snapshot {
	return Snapshot{
		Enabled:            c.Enabled,
		Domain:             string(c.Domain),
		Mode:               string(c.Mode),
		InjectSystemPrompt: c.InjectSystemPrompt,
		ScoreInput:         c.ScoreInput,
		ScoreOutput:        c.ScoreOutput,
		LogViolations:      c.LogViolations,
		RateLimit:          c.RateLimit,
	}
}
