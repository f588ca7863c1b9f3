package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/the-governor-hq/llm-api/internal/auth"
	"github.com/the-governor-hq/llm-api/internal/chat"
	"github.com/the-governor-hq/llm-api/internal/pipeline"
	"go.uber.org/zap"
)

// handleChatCompletions implements POST /v1/chat/completions: the full
// mediated exchange. Malformed input is rejected here and never reaches
// the pipeline; upstream failures surface as gateway errors with no
// retry.
func (d *Dependencies) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	identity := remoteHost(r)

	if d.Auth != nil {
		client, err := d.Auth.Authenticate(r)
		switch {
		case err == nil:
			identity = client.ClientID
		case errors.Is(err, auth.ErrAuthUnavailable):
			writeOpenAIError(w, http.StatusServiceUnavailable, "Authentication backend unavailable", "server_error")
			return
		default:
			writeOpenAIError(w, http.StatusUnauthorized, "Invalid or missing API key", "authentication_error")
			return
		}
	}

	var req chat.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOpenAIError(w, http.StatusBadRequest, "Invalid JSON body", "invalid_request_error")
		return
	}
	if req.Model == "" {
		writeOpenAIError(w, http.StatusBadRequest, "model is required", "invalid_request_error")
		return
	}
	if len(req.Messages) == 0 {
		writeOpenAIError(w, http.StatusBadRequest, "messages must not be empty", "invalid_request_error")
		return
	}

	result := d.Pipeline.ProcessRequest(&req, identity)

	if result.Outcome == pipeline.OutcomeRateLimited {
		writeOpenAIError(w, http.StatusTooManyRequests, "Rate limit exceeded, try again later", "rate_limit_error")
		return
	}

	if result.Terminal() {
		writeJSON(w, http.StatusOK, result.Substitute)
		return
	}

	if req.Stream {
		d.relayStream(w, r, &req, result.State)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), d.UpstreamTimeout)
	defer cancel()

	resp, err := d.Provider.ChatCompletion(ctx, &req)
	if err != nil {
		d.Logger.Error("upstream exchange failed",
			zap.String("request_id", result.State.RequestID),
			zap.Error(err),
		)
		writeOpenAIError(w, http.StatusBadGateway, "Upstream provider error", "provider_error")
		return
	}

	final, outcome := d.Pipeline.ProcessResponse(result.State, resp)

	d.Logger.Info("request completed",
		zap.String("request_id", result.State.RequestID),
		zap.String("outcome", outcome),
	)

	writeJSON(w, http.StatusOK, final)
}

// relayStream forwards the upstream chunk sequence verbatim as soon as
// bytes arrive. Output scoring does not apply to streamed responses;
// prompt injection is the only enforcement layer active on this path.
func (d *Dependencies) relayStream(w http.ResponseWriter, r *http.Request, req *chat.CompletionRequest, state *pipeline.State) {
	stream, err := d.Provider.StreamChatCompletion(r.Context(), req)
	if err != nil {
		d.Logger.Error("upstream stream failed",
			zap.String("request_id", state.RequestID),
			zap.Error(err),
		)
		writeOpenAIError(w, http.StatusBadGateway, "Upstream provider error", "provider_error")
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, readErr := stream.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				d.Logger.Warn("stream relay interrupted",
					zap.String("request_id", state.RequestID),
					zap.Error(readErr),
				)
			}
			return
		}
	}
}

// remoteHost returns the requester's network origin without the port,
// the default rate-limit identity when no authenticator is configured.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
