package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/the-governor-hq/llm-api/internal/chat"
)

// openAIProvider implements Provider for the OpenAI Chat Completions API.
type openAIProvider struct {
	baseURL          string
	apiKey           string
	client           *http.Client
	maxResponseBytes int64
}

// NewOpenAI creates a provider for an OpenAI-compatible backend.
func NewOpenAI(baseURL, apiKey string, timeout time.Duration, maxResponseBytes int64) Provider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxResponseBytes <= 0 {
		maxResponseBytes = 4 * 1024 * 1024
	}

	return &openAIProvider{
		baseURL:          baseURL,
		apiKey:           apiKey,
		maxResponseBytes: maxResponseBytes,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (p *openAIProvider) ChatCompletion(ctx context.Context, req *chat.CompletionRequest) (*chat.Completion, error) {
	outbound := *req
	outbound.Stream = false

	resp, err := p.post(ctx, &outbound)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, p.decodeError(resp)
	}

	limited := io.LimitReader(resp.Body, p.maxResponseBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}
	if int64(len(body)) > p.maxResponseBytes {
		return nil, fmt.Errorf("upstream response exceeded limit (%d bytes)", p.maxResponseBytes)
	}

	var completion chat.Completion
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("upstream response had no choices")
	}

	return &completion, nil
}

func (p *openAIProvider) StreamChatCompletion(ctx context.Context, req *chat.CompletionRequest) (io.ReadCloser, error) {
	outbound := *req
	outbound.Stream = true

	resp, err := p.post(ctx, &outbound)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, p.decodeError(resp)
	}

	return resp.Body, nil
}

func (p *openAIProvider) post(ctx context.Context, req *chat.CompletionRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/chat/completions", p.baseURL),
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call upstream: %w", err)
	}
	return resp, nil
}

func (p *openAIProvider) decodeError(resp *http.Response) error {
	limited := io.LimitReader(resp.Body, p.maxResponseBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return fmt.Errorf("upstream error status %d and failed to read error body: %w", resp.StatusCode, err)
	}
	if int64(len(body)) > p.maxResponseBytes {
		return fmt.Errorf("upstream error body exceeded limit (%d bytes)", p.maxResponseBytes)
	}

	var errBody openAIErrorResponse
	if err := json.Unmarshal(body, &errBody); err != nil {
		return fmt.Errorf("upstream error status %d and failed to decode error body: %w", resp.StatusCode, err)
	}
	return fmt.Errorf("upstream error: %s (type=%s)", errBody.Error.Message, errBody.Error.Type)
}
