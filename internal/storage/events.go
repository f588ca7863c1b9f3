package storage

import "time"

// EventWriter is the sink for policy events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *PolicyEvent)
	Close()
}

// PolicyEvent records one scoring decision made by the enforcement
// pipeline, for offline analysis.
type PolicyEvent struct {
	RequestID           string
	Identity            string
	Timestamp           time.Time
	Stage               string // "input" or "output"
	Domain              string
	Mode                string
	Outcome             string // terminal pipeline state
	Safe                bool
	Confidence          float64
	CrisisSignal        bool
	ViolationCategories []string
	ViolationSeverities []string
	ViolationRules      []string
	ViolationMatches    []string
	RulesVersion        string
	TextPreview         string // First 500 chars
	TextHash            string // SHA256 of full scored text
	TextSize            uint32
	LatencyMs           float32
}

// TextPreviewLength is the max chars stored in text_preview.
const TextPreviewLength = 500

// TruncateText returns the first N characters (runes) of scored text for
// preview storage. It never splits a multi-byte UTF-8 character.
func TruncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen])
}
