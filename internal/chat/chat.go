// Package chat defines the OpenAI chat-completion wire shapes the
// gateway mediates. The engine treats them as an opaque
// message-list-in / message-out contract.
package chat

import (
	"encoding/json"
	"strings"
)

// Roles recognized in a message list.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a chat message list. Content is either a
// string or a structured value (e.g. a content-part array); structured
// content is serialized before any text handling.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Text returns the message content as a string. Non-string content is
// JSON-serialized; content that cannot be serialized yields "".
func (m Message) Text() string {
	switch c := m.Content.(type) {
	case string:
		return c
	case nil:
		return ""
	default:
		raw, err := json.Marshal(c)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

// CompletionRequest is the inbound request body.
type CompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`
	User     string    `json:"user,omitempty"`
}

// UserText concatenates the content of all user-authored messages with
// single-space separators. Phrases split across message boundaries are
// not re-joined beyond that; this mirrors the scoring contract.
func (r *CompletionRequest) UserText() string {
	parts := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Role != RoleUser {
			continue
		}
		if t := m.Text(); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Choice is one completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage holds token accounting reported by the upstream.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// PolicyMetadata is the enforcement annotation attached to responses the
// policy acted on.
type PolicyMetadata struct {
	Blocked                 bool    `json:"blocked,omitempty"`
	Mode                    string  `json:"mode,omitempty"`
	Domain                  string  `json:"domain,omitempty"`
	Violations              int     `json:"violations,omitempty"`
	Summary                 string  `json:"summary,omitempty"`
	Confidence              float64 `json:"confidence,omitempty"`
	CrisisResourcesAppended bool    `json:"crisis_resources_appended,omitempty"`
}

// Completion is the materialized (non-streamed) response body.
type Completion struct {
	ID       string          `json:"id"`
	Object   string          `json:"object"`
	Created  int64           `json:"created"`
	Model    string          `json:"model"`
	Choices  []Choice        `json:"choices"`
	Usage    Usage           `json:"usage"`
	Governor *PolicyMetadata `json:"governor,omitempty"`
}

// AssistantText returns the first choice's content as text, or "" when
// the completion carries no assistant text.
func (c *Completion) AssistantText() string {
	if c == nil || len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Message.Text()
}

// SetAssistantText replaces the first choice's content.
func (c *Completion) SetAssistantText(text string) {
	if c == nil || len(c.Choices) == 0 {
		return
	}
	c.Choices[0].Message.Content = text
}
