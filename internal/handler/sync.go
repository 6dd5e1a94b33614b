package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/larder/internal/cloud"
	"github.com/dukerupert/larder/internal/store"
)

// SyncHandler exposes the remote sync account and ForceSync.
type SyncHandler struct {
	sync   *store.SyncStore
	logger *slog.Logger
}

func NewSyncHandler(ss *store.SyncStore, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{sync: ss, logger: logger}
}

type syncResponse struct {
	Applied int          `json:"applied"`
	Status  cloud.Status `json:"status"`
}

// CreateAccount handles POST /api/sync/account
func (h *SyncHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req cloud.Credentials
	if !decode(w, r, &req) {
		return
	}
	if _, err := h.sync.CreateAccount(r.Context(), req.Email, req.Password); err != nil {
		writeError(w, h.logger, "failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.sync.AuthState())
}

// SignIn handles POST /api/sync/session
func (h *SyncHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req cloud.Credentials
	if !decode(w, r, &req) {
		return
	}
	if _, err := h.sync.SignIn(r.Context(), req.Email, req.Password); err != nil {
		writeError(w, h.logger, "failed to sign in", err)
		return
	}
	writeJSON(w, http.StatusOK, h.sync.AuthState())
}

// SignOut handles DELETE /api/sync/session
func (h *SyncHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.sync.SignOut()
	w.WriteHeader(http.StatusNoContent)
}

// Auth handles GET /api/sync/session
func (h *SyncHandler) Auth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sync.AuthState())
}

// Status handles GET /api/sync/status
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sync.Status())
}

// ForceSync handles POST /api/sync
func (h *SyncHandler) ForceSync(w http.ResponseWriter, r *http.Request) {
	n, err := h.sync.ForceSync(r.Context())
	if err != nil {
		writeError(w, h.logger, "sync failed", err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{Applied: n, Status: h.sync.Status()})
}
