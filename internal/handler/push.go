package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/push"
	"github.com/dukerupert/larder/internal/store"
)

type PushHandler struct {
	pushStore *store.PushStore
	service   *push.Service
	scheduler *push.Scheduler
	logger    *slog.Logger
}

func NewPushHandler(ps *store.PushStore, svc *push.Service, sched *push.Scheduler, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, service: svc, scheduler: sched, logger: logger}
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// VAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

// Subscribe handles POST /api/push/subscriptions
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req model.PushSubscription
	if !decode(w, r, &req) {
		return
	}
	sub, err := h.pushStore.Subscribe(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "failed to save subscription", err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// List handles GET /api/push/subscriptions
func (h *PushHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.pushStore.Subscriptions(r.Context())
	if err != nil {
		writeError(w, h.logger, "failed to list subscriptions", err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// Unsubscribe handles DELETE /api/push/subscriptions
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Endpoint == "" {
		badRequest(w, "endpoint is required")
		return
	}
	if err := h.pushStore.Unsubscribe(r.Context(), req.Endpoint); err != nil {
		writeError(w, h.logger, "failed to delete subscription", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Test handles POST /api/push/test
func (h *PushHandler) Test(w http.ResponseWriter, r *http.Request) {
	n, err := h.scheduler.SendTest(r.Context())
	if err != nil {
		writeError(w, h.logger, "failed to send test notification", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"delivered": n})
}
