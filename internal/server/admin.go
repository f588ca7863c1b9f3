package server

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/the-governor-hq/llm-api/internal/store"
	"go.uber.org/zap"
)

// createClientResp includes the plaintext key; it is returned exactly
// once, on creation and rotation.
type createClientResp struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKey       string    `json:"api_key"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

func (d *Dependencies) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Detail: "Postgres not configured"})
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name == "" || len(req.Name) > 255 {
		writeJSON(w, http.StatusBadRequest, errorResp{Detail: "name must be 1-255 characters"})
		return
	}

	client, plainKey, err := d.Store.CreateClient(r.Context(), req.Name)
	if err != nil {
		d.Logger.Error("failed to create client", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Detail: "Failed to create client"})
		return
	}

	writeJSON(w, http.StatusCreated, createClientResp{
		ID:           client.ID,
		Name:         client.Name,
		APIKey:       plainKey,
		APIKeyPrefix: client.APIKeyPrefix,
		Active:       client.Active,
		CreatedAt:    client.CreatedAt,
	})
}

func (d *Dependencies) handleListClients(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Detail: "Postgres not configured"})
		return
	}

	clients, err := d.Store.ListClients(r.Context())
	if err != nil {
		d.Logger.Error("failed to list clients", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Detail: "Failed to list clients"})
		return
	}
	if clients == nil {
		clients = []*store.Client{}
	}
	writeJSON(w, http.StatusOK, clients)
}

func (d *Dependencies) handleGetClient(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Detail: "Postgres not configured"})
		return
	}

	client, err := d.Store.GetClient(r.Context(), r.PathValue("client_id"))
	if err != nil {
		d.Logger.Error("failed to get client", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Detail: "Failed to get client"})
		return
	}
	if client == nil {
		writeJSON(w, http.StatusNotFound, errorResp{Detail: "Client not found."})
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (d *Dependencies) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Detail: "Postgres not configured"})
		return
	}

	var req struct {
		Active *bool `json:"active"`
	}
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Active == nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Detail: "active is required"})
		return
	}

	client, err := d.Store.SetActive(r.Context(), r.PathValue("client_id"), *req.Active)
	if err != nil {
		d.Logger.Error("failed to update client", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Detail: "Failed to update client"})
		return
	}
	if client == nil {
		writeJSON(w, http.StatusNotFound, errorResp{Detail: "Client not found."})
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (d *Dependencies) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Detail: "Postgres not configured"})
		return
	}

	err := d.Store.DeleteClient(r.Context(), r.PathValue("client_id"))
	if err == sql.ErrNoRows {
		writeJSON(w, http.StatusNotFound, errorResp{Detail: "Client not found."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to delete client", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Detail: "Failed to delete client"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Detail: "Postgres not configured"})
		return
	}

	client, plainKey, err := d.Store.RotateAPIKey(r.Context(), r.PathValue("client_id"))
	if err != nil {
		d.Logger.Error("failed to rotate key", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Detail: "Failed to rotate key"})
		return
	}

	writeJSON(w, http.StatusOK, createClientResp{
		ID:           client.ID,
		Name:         client.Name,
		APIKey:       plainKey,
		APIKeyPrefix: client.APIKeyPrefix,
		Active:       client.Active,
		CreatedAt:    client.CreatedAt,
	})
}
