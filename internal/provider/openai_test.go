package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/the-governor-hq/llm-api/internal/chat"
)

func upstreamStub(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func testRequest() *chat.CompletionRequest {
	return &chat.CompletionRequest{
		Model: "gpt-4o",
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: "hello"},
		},
	}
}

func TestOpenAI_ChatCompletion(t *testing.T) {
	var gotAuth string
	var gotBody chat.CompletionRequest

	srv := upstreamStub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode upstream body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(chat.Completion{
			ID:      "chatcmpl-123",
			Object:  "chat.completion",
			Model:   "gpt-4o",
			Choices: []chat.Choice{{Message: chat.Message{Role: chat.RoleAssistant, Content: "hi"}}},
		})
	})

	p := NewOpenAI(srv.URL, "sk-test", 5*time.Second, 0)
	resp, err := p.ChatCompletion(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.AssistantText() != "hi" {
		t.Errorf("text = %s", resp.AssistantText())
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %s", gotAuth)
	}
	if gotBody.Stream {
		t.Error("materialized calls must send stream=false")
	}
}

func TestOpenAI_ChatCompletion_UpstreamError(t *testing.T) {
	srv := upstreamStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	p := NewOpenAI(srv.URL, "sk-bad", 5*time.Second, 0)
	_, err := p.ChatCompletion(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "bad key") {
		t.Errorf("error should carry the upstream message, got %v", err)
	}
}

func TestOpenAI_ChatCompletion_NoChoices(t *testing.T) {
	srv := upstreamStub(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","choices":[]}`))
	})

	p := NewOpenAI(srv.URL, "sk-test", 5*time.Second, 0)
	if _, err := p.ChatCompletion(context.Background(), testRequest()); err == nil {
		t.Fatal("expected an error for a response without choices")
	}
}

func TestOpenAI_ChatCompletion_ResponseTooLarge(t *testing.T) {
	srv := upstreamStub(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"padding":"` + strings.Repeat("x", 2048) + `"}`))
	})

	p := NewOpenAI(srv.URL, "sk-test", 5*time.Second, 1024)
	if _, err := p.ChatCompletion(context.Background(), testRequest()); err == nil {
		t.Fatal("expected an error for an oversized response")
	}
}

func TestOpenAI_StreamChatCompletion(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\ndata: [DONE]\n\n"
	var gotBody chat.CompletionRequest

	srv := upstreamStub(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode upstream body: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(body))
	})

	p := NewOpenAI(srv.URL, "sk-test", 5*time.Second, 0)
	stream, err := p.StreamChatCompletion(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	got, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if string(got) != body {
		t.Errorf("stream body = %q, want %q", got, body)
	}
	if !gotBody.Stream {
		t.Error("stream calls must send stream=true")
	}
}

func TestOpenAI_ContextCancellation(t *testing.T) {
	srv := upstreamStub(t, func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server detects the client disconnect and
		// cancels r.Context(); otherwise srv.Close deadlocks in cleanup.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	})

	p := NewOpenAI(srv.URL, "sk-test", 5*time.Second, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := p.ChatCompletion(ctx, testRequest()); err == nil {
		t.Fatal("expected a context deadline error")
	}
}

// Verify the fake stays a drop-in Provider.
var _ Provider = (*FakeProvider)(nil)
