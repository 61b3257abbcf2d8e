package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/journal"
	"github.com/keepswell/keepswell-api/internal/models"
	"github.com/keepswell/keepswell-api/internal/selector"
	"github.com/keepswell/keepswell-api/internal/suggest"
	"github.com/keepswell/keepswell-api/internal/template"
)

// ConfigService resolves, customizes and selects against journal configs.
type ConfigService interface {
	ResolveConfig(ctx context.Context, id uuid.UUID) (*template.ResolvedConfig, error)
	SelectPrompt(ctx context.Context, id uuid.UUID, req journal.SelectRequest) (*selector.Result, error)
	ApplyCustomization(ctx context.Context, id uuid.UUID, patch journal.Customization) (*template.ResolvedConfig, error)
	ResetCustomization(ctx context.Context, id uuid.UUID, sections ...string) (*template.ResolvedConfig, error)
}

type Suggester interface {
	Suggest(ctx context.Context, journalID uuid.UUID, count int) (*suggest.Result, error)
}

type TemplateHandler struct {
	catalog  *template.Catalog
	configs  ConfigService
	suggests Suggester
}

func NewTemplateHandler(catalog *template.Catalog, configs ConfigService, suggests Suggester) *TemplateHandler {
	return &TemplateHandler{catalog: catalog, configs: configs, suggests: suggests}
}

func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	templates := h.catalog.All()
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": templates, "count": len(templates)})
}

func (h *TemplateHandler) ByType(w http.ResponseWriter, r *http.Request) {
	tt := models.TemplateType(chi.URLParam(r, "type"))
	t, err := h.catalog.ByType(tt)
	if err != nil {
		// An unknown type in the URL is a client error, not an integrity violation.
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TemplateHandler) Config(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "journal")
	if !ok {
		return
	}

	rc, err := h.configs.ResolveConfig(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

func (h *TemplateHandler) SelectPrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "journal")
	if !ok {
		return
	}

	var req journal.SelectRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	res, err := h.configs.SelectPrompt(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *TemplateHandler) Customize(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "journal")
	if !ok {
		return
	}

	var patch journal.Customization
	if !decode(w, r, &patch) {
		return
	}

	rc, err := h.configs.ApplyCustomization(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

// ResetCustomization clears ?section=visual_rules,framing_rules or every
// section when none is given.
func (h *TemplateHandler) ResetCustomization(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "journal")
	if !ok {
		return
	}

	var sections []string
	for _, s := range strings.Split(r.URL.Query().Get("section"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			sections = append(sections, s)
		}
	}

	rc, err := h.configs.ResetCustomization(r.Context(), id, sections...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

func (h *TemplateHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "journal")
	if !ok {
		return
	}

	var req struct {
		Count int `json:"count"`
	}
	if !decodeOptional(w, r, &req) {
		return
	}

	res, err := h.suggests.Suggest(r.Context(), id, req.Count)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
