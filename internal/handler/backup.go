package handler

import (
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"

	"github.com/dukerupert/larder/internal/backup"
)

type BackupHandler struct {
	manager *backup.Manager
	logger  *slog.Logger
}

func NewBackupHandler(m *backup.Manager, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: m, logger: logger}
}

type passphraseRequest struct {
	Passphrase string `json:"passphrase"`
}

type backupStatusResponse struct {
	backup.Status
	HasCachedKey bool `json:"has_cached_key"`
}

// Status handles GET /api/backups/status
func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, backupStatusResponse{
		Status:       h.manager.Status(),
		HasCachedKey: h.manager.HasCachedKey(),
	})
}

// List handles GET /api/backups
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.manager.List(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, h.logger, "failed to list backups", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Run handles POST /api/backups
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req passphraseRequest
	if !decode(w, r, &req) {
		return
	}
	b, err := h.manager.RunNow(r.Context(), req.Passphrase)
	if err != nil {
		writeError(w, h.logger, "backup failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// CacheKey handles PUT /api/backups/key. The passphrase is held in memory
// for scheduled backups.
func (h *BackupHandler) CacheKey(w http.ResponseWriter, r *http.Request) {
	var req passphraseRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.manager.CacheKey(req.Passphrase); err != nil {
		writeError(w, h.logger, "failed to cache key", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Restore handles POST /api/backups/{id}/restore
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var req passphraseRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := h.manager.Restore(r.Context(), r.PathValue("id"), req.Passphrase)
	if err != nil {
		writeError(w, h.logger, "restore failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"applied": n})
}

// Download handles GET /api/backups/{id}/download. The body stays encrypted.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	body, size, err := h.manager.Download(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "download failed", err)
		return
	}
	defer body.Close()

	name := "larder-" + path.Base(r.PathValue("id")) + ".json.enc"
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("stream backup", "error", err)
	}
}

// UpdateS3 handles PUT /api/backups/s3
func (h *BackupHandler) UpdateS3(w http.ResponseWriter, r *http.Request) {
	var req backup.S3Config
	if !decode(w, r, &req) {
		return
	}
	h.manager.UpdateS3Config(req)
	writeJSON(w, http.StatusOK, h.manager.Status())
}
