// Package provider is the transport collaborator: it performs the
// upstream exchange and nothing else. Failures are terminal for the
// request; retry policy, if any, belongs to callers outside the gateway.
package provider

import (
	"context"
	"io"

	"github.com/the-governor-hq/llm-api/internal/chat"
)

// Provider is the interface to an upstream chat-completion backend.
type Provider interface {
	// ChatCompletion performs a materialized exchange. The ctx deadline
	// is the caller-supplied timeout; on expiry the call returns an
	// error rather than hanging.
	ChatCompletion(ctx context.Context, req *chat.CompletionRequest) (*chat.Completion, error)

	// StreamChatCompletion opens a live chunk sequence (server-sent
	// events) that the caller relays verbatim. The caller must close
	// the returned reader.
	StreamChatCompletion(ctx context.Context, req *chat.CompletionRequest) (io.ReadCloser, error)
}
