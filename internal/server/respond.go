package server

import (
	"encoding/json"
	"net/http"
)

// openAIError is the error body shape OpenAI clients expect.
type openAIError struct {
	Error openAIErrorDetail `json:"error"`
}

type openAIErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code,omitempty"`
}

// errorResp is the error body for the admin and inspection endpoints.
type errorResp struct {
	Detail string `json:"detail"`
}

func readJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeOpenAIError writes an OpenAI-style error JSON.
func writeOpenAIError(w http.ResponseWriter, status int, message, typ string) {
	writeJSON(w, status, openAIError{
		Error: openAIErrorDetail{
			Message: message,
			Type:    typ,
		},
	})
}
