package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

// TemplateHandler serves list templates. Predefined templates are read-only.
type TemplateHandler struct {
	templates *store.TemplateStore
	logger    *slog.Logger
}

func NewTemplateHandler(ts *store.TemplateStore, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{templates: ts, logger: logger}
}

type fromTemplateResponse struct {
	List  *model.List      `json:"list"`
	Items []model.ListItem `json:"items"`
}

func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	ts, err := h.templates.Templates(r.Context())
	if err != nil {
		writeError(w, h.logger, "failed to list templates", err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.Template(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "failed to get template", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.NewTemplate
	if !decode(w, r, &req) {
		return
	}
	t, err := h.templates.CreateTemplate(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "failed to create template", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.TemplatePatch
	if !decode(w, r, &req) {
		return
	}
	t, err := h.templates.UpdateTemplate(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, h.logger, "failed to update template", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.templates.DeleteTemplate(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, "failed to delete template", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateList handles POST /api/templates/{id}/lists
func (h *TemplateHandler) CreateList(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	l, items, err := h.templates.CreateListFromTemplate(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		writeError(w, h.logger, "failed to create list from template", err)
		return
	}
	writeJSON(w, http.StatusCreated, fromTemplateResponse{List: l, Items: items})
}

// SaveList handles POST /api/lists/{id}/template
func (h *TemplateHandler) SaveList(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := h.templates.SaveListAsTemplate(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		writeError(w, h.logger, "failed to save template", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}
