package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/the-governor-hq/llm-api/internal/auth"
	"github.com/the-governor-hq/llm-api/internal/chat"
	"github.com/the-governor-hq/llm-api/internal/pipeline"
	"github.com/the-governor-hq/llm-api/internal/policy"
	"github.com/the-governor-hq/llm-api/internal/provider"
	"github.com/the-governor-hq/llm-api/internal/ratelimit"
	"github.com/the-governor-hq/llm-api/internal/rules"
	"go.uber.org/zap"
)

func newTestDeps(cfg policy.Config, fake *provider.FakeProvider) *Dependencies {
	limiter := ratelimit.New(cfg.RateLimit, cfg.Enabled && cfg.RateLimit > 0)
	return &Dependencies{
		Pipeline:        pipeline.New(cfg, limiter, nil, zap.NewNop()),
		Provider:        fake,
		Logger:          zap.NewNop(),
		UpstreamTimeout: 5 * time.Second,
	}
}

func postCompletion(t *testing.T, handler http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeCompletion(t *testing.T, rec *httptest.ResponseRecorder) *chat.Completion {
	t.Helper()
	var c chat.Completion
	if err := json.Unmarshal(rec.Body.Bytes(), &c); err != nil {
		t.Fatalf("decode completion: %v (body: %s)", err, rec.Body.String())
	}
	return &c
}

func completionRequest(userText string) map[string]any {
	return map[string]any{
		"model": "gpt-4o",
		"messages": []map[string]any{
			{"role": "user", "content": userText},
		},
	}
}

func TestChatCompletions_CleanPassThrough(t *testing.T) {
	fake := provider.NewFake("Reading before bed works well for many people.")
	deps := newTestDeps(policy.Default(), fake)
	router := NewRouter(deps)

	rec := postCompletion(t, router, completionRequest("Any tips for winding down in the evening?"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	c := decodeCompletion(t, rec)
	if c.AssistantText() != "Reading before bed works well for many people." {
		t.Errorf("unexpected text: %s", c.AssistantText())
	}
	if c.Governor != nil {
		t.Error("clean exchange must carry no policy metadata")
	}
	if fake.Calls != 1 {
		t.Errorf("upstream calls = %d, want 1", fake.Calls)
	}

	// The forwarded request must carry the injected system prompt.
	if fake.LastRequest.Messages[0].Role != chat.RoleSystem {
		t.Error("system prompt should be injected before the upstream call")
	}
}

func TestChatCompletions_BlockedInput(t *testing.T) {
	fake := provider.NewFake("should never be reached")
	deps := newTestDeps(policy.Default(), fake)
	router := NewRouter(deps)

	rec := postCompletion(t, router, completionRequest("I have sleep apnea, how many mg of melatonin should I take? Give me the dosage."))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	c := decodeCompletion(t, rec)
	if c.Governor == nil || !c.Governor.Blocked {
		t.Fatal("expected a blocked substitute response")
	}
	if fake.Calls != 0 {
		t.Error("blocked requests must never reach the upstream")
	}
}

func TestChatCompletions_BlockedOutput(t *testing.T) {
	fake := provider.NewFake("You have sleep apnea. Take 5mg of melatonin.")
	deps := newTestDeps(policy.Default(), fake)
	router := NewRouter(deps)

	rec := postCompletion(t, router, completionRequest("Any tips for winding down in the evening?"))
	c := decodeCompletion(t, rec)
	if c.Governor == nil || !c.Governor.Blocked {
		t.Fatal("violating upstream response must be substituted")
	}
	if strings.Contains(c.AssistantText(), "sleep apnea") {
		t.Error("violating upstream text must not reach the client")
	}
}

func TestChatCompletions_WarnMode(t *testing.T) {
	cfg := policy.Default()
	cfg.Mode = policy.ModeWarn
	fake := provider.NewFake("You have sleep apnea. Take 5mg of melatonin.")
	deps := newTestDeps(cfg, fake)
	router := NewRouter(deps)

	rec := postCompletion(t, router, completionRequest("Any tips for winding down in the evening?"))
	c := decodeCompletion(t, rec)
	if c.AssistantText() != "You have sleep apnea. Take 5mg of melatonin." {
		t.Error("warn mode must preserve the upstream text")
	}
	if c.Governor == nil || c.Governor.Blocked {
		t.Fatal("warn mode annotates without blocking")
	}
	if c.Governor.Violations != 2 {
		t.Errorf("violations = %d, want 2", c.Governor.Violations)
	}
}

func TestChatCompletions_CrisisAugmented(t *testing.T) {
	fake := provider.NewFake("I'm really sorry you're feeling this way.")
	deps := newTestDeps(policy.Default(), fake)
	router := NewRouter(deps)

	rec := postCompletion(t, router, completionRequest("I don't want to be alive anymore"))
	c := decodeCompletion(t, rec)
	if !strings.Contains(c.AssistantText(), "988") {
		t.Error("crisis resources must be appended to the response")
	}
	if c.Governor == nil || !c.Governor.CrisisResourcesAppended {
		t.Error("metadata must record the augmentation")
	}
}

func TestChatCompletions_RateLimited(t *testing.T) {
	cfg := policy.Default()
	cfg.RateLimit = 1
	fake := provider.NewFake("ok")
	deps := newTestDeps(cfg, fake)
	router := NewRouter(deps)

	if rec := postCompletion(t, router, completionRequest("hello there")); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}

	rec := postCompletion(t, router, completionRequest("hello again"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	var errBody openAIError
	if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody.Error.Type != "rate_limit_error" {
		t.Errorf("error type = %s", errBody.Error.Type)
	}
}

func TestChatCompletions_BadRequests(t *testing.T) {
	fake := provider.NewFake("ok")
	deps := newTestDeps(policy.Default(), fake)
	router := NewRouter(deps)

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("missing model", func(t *testing.T) {
		rec := postCompletion(t, router, map[string]any{
			"messages": []map[string]any{{"role": "user", "content": "hi"}},
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("empty messages", func(t *testing.T) {
		rec := postCompletion(t, router, map[string]any{"model": "gpt-4o"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	if fake.Calls != 0 {
		t.Error("malformed requests must never reach the upstream")
	}
}

func TestChatCompletions_UpstreamError(t *testing.T) {
	fake := &provider.FakeProvider{Error: errors.New("connection refused")}
	deps := newTestDeps(policy.Default(), fake)
	router := NewRouter(deps)

	rec := postCompletion(t, router, completionRequest("hello"))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var errBody openAIError
	if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody.Error.Type != "provider_error" {
		t.Errorf("error type = %s", errBody.Error.Type)
	}
}

func TestChatCompletions_Auth(t *testing.T) {
	fake := provider.NewFake("ok")
	deps := newTestDeps(policy.Default(), fake)
	deps.Auth = auth.NewStaticAuthenticator()
	router := NewRouter(deps)

	t.Run("missing key", func(t *testing.T) {
		raw, _ := json.Marshal(completionRequest("hello"))
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(raw))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("valid key", func(t *testing.T) {
		raw, _ := json.Marshal(completionRequest("hello"))
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(raw))
		req.Header.Set("Authorization", "Bearer gov_test_key_123")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
	})
}

type unavailableAuth struct{}

func (unavailableAuth) Authenticate(*http.Request) (*auth.ClientContext, error) {
	return nil, auth.ErrAuthUnavailable
}

func TestChatCompletions_AuthBackendDown(t *testing.T) {
	fake := provider.NewFake("ok")
	deps := newTestDeps(policy.Default(), fake)
	deps.Auth = unavailableAuth{}
	router := NewRouter(deps)

	rec := postCompletion(t, router, completionRequest("hello"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestChatCompletions_StreamRelay(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"You have sleep apnea\"}}]}\n\ndata: [DONE]\n\n"
	fake := &provider.FakeProvider{StreamBody: body}
	deps := newTestDeps(policy.Default(), fake)
	router := NewRouter(deps)

	raw, _ := json.Marshal(map[string]any{
		"model":    "gpt-4o",
		"stream":   true,
		"messages": []map[string]any{{"role": "user", "content": "tell me about my sleep"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %s", ct)
	}
	// Chunks pass through verbatim: no output scoring on the stream path.
	if got, _ := io.ReadAll(rec.Body); string(got) != body {
		t.Errorf("stream body altered:\n got: %q\nwant: %q", got, body)
	}
	if fake.StreamCalls != 1 || fake.Calls != 0 {
		t.Errorf("stream calls = %d, materialized calls = %d", fake.StreamCalls, fake.Calls)
	}
	if fake.LastRequest.Messages[0].Role != chat.RoleSystem {
		t.Error("streamed requests still get the system prompt injected")
	}
}

func TestStatusEndpoint(t *testing.T) {
	fake := provider.NewFake("ok")
	deps := newTestDeps(policy.Default(), fake)
	router := NewRouter(deps)

	// Drive one clean and one blocked exchange so the counters move.
	postCompletion(t, router, completionRequest("hello"))
	postCompletion(t, router, completionRequest("What dosage of melatonin for my sleep apnea?"))

	req := httptest.NewRequest(http.MethodGet, "/api/governor/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Policy.Enabled || body.Policy.Mode != "block" {
		t.Errorf("policy = %+v", body.Policy)
	}
	if body.Counters.InputBlocked != 1 {
		t.Errorf("input_blocked = %d, want 1", body.Counters.InputBlocked)
	}
	if body.Counters.SystemPromptsInjected != 2 {
		t.Errorf("system_prompts_injected = %d, want 2", body.Counters.SystemPromptsInjected)
	}
	if body.RulesVersion != rules.Version {
		t.Errorf("rules_version = %s", body.RulesVersion)
	}
}

func TestAdminEndpoints_NotConfigured(t *testing.T) {
	deps := newTestDeps(policy.Default(), provider.NewFake("ok"))
	router := NewRouter(deps)

	// Without Postgres and ClickHouse wired, the admin and inspection
	// endpoints degrade to 503 instead of panicking.
	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/governor/clients"},
		{http.MethodGet, "/api/governor/clients/abc"},
		{http.MethodGet, "/api/governor/events"},
		{http.MethodGet, "/api/governor/events/req-1"},
		{http.MethodGet, "/api/governor/analytics"},
	}
	for _, tt := range paths {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: status = %d, want 503", tt.method, tt.path, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/governor/clients", strings.NewReader(`{"name":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("create client: status = %d, want 503", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	deps := newTestDeps(policy.Default(), provider.NewFake("ok"))
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
