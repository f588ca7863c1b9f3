package provider

import (
	"context"
	"io"
	"strings"

	"github.com/the-governor-hq/llm-api/internal/chat"
)

// FakeProvider is an in-memory Provider for tests.
type FakeProvider struct {
	ResponseText string
	StreamBody   string
	Error        error

	// LastRequest records the request as the pipeline forwarded it, so
	// tests can assert on prompt injection.
	LastRequest *chat.CompletionRequest
	Calls       int
	StreamCalls int
}

// NewFake creates a FakeProvider answering every request with response.
func NewFake(response string) *FakeProvider {
	return &FakeProvider{ResponseText: response}
}

func (f *FakeProvider) ChatCompletion(_ context.Context, req *chat.CompletionRequest) (*chat.Completion, error) {
	f.Calls++
	f.LastRequest = req
	if f.Error != nil {
		return nil, f.Error
	}

	return &chat.Completion{
		ID:      "chatcmpl-fake",
		Object:  "chat.completion",
		Created: 0,
		Model:   req.Model,
		Choices: []chat.Choice{
			{
				Index: 0,
				Message: chat.Message{
					Role:    chat.RoleAssistant,
					Content: f.ResponseText,
				},
				FinishReason: "stop",
			},
		},
		Usage: chat.Usage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5},
	}, nil
}

func (f *FakeProvider) StreamChatCompletion(_ context.Context, req *chat.CompletionRequest) (io.ReadCloser, error) {
	f.StreamCalls++
	f.LastRequest = req
	if f.Error != nil {
		return nil, f.Error
	}
	body := f.StreamBody
	if body == "" {
		body = "data: {\"choices\":[{\"delta\":{\"content\":\"" + f.ResponseText + "\"}}]}\n\ndata: [DONE]\n\n"
	}
	return io.NopCloser(strings.NewReader(body)), nil
}
