package server

import (
	"net/http"

	"github.com/the-governor-hq/llm-api/internal/pipeline"
	"github.com/the-governor-hq/llm-api/internal/policy"
	"github.com/the-governor-hq/llm-api/internal/rules"
)

// statusResponse is the introspection snapshot: the active policy (no
// secrets) and the live enforcement counters.
type statusResponse struct {
	Policy       policy.Snapshot          `json:"policy"`
	Counters     pipeline.CounterSnapshot `json:"counters"`
	RulesVersion string                   `json:"rules_version"`
}

// handleStatus implements GET /api/governor/status.
func (d *Dependencies) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Policy:       d.Pipeline.Config().Snapshot(),
		Counters:     d.Pipeline.Counters().Snapshot(),
		RulesVersion: rules.Version,
	})
}
