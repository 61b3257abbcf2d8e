package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/journal"
	"github.com/keepswell/keepswell-api/internal/models"
	"github.com/keepswell/keepswell-api/internal/selector"
)

// JournalService covers journal settings, custom prompts and the send log.
type JournalService interface {
	Create(ctx context.Context, req journal.CreateRequest) (*models.Journal, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Journal, error)
	UpdateSettings(ctx context.Context, id uuid.UUID, patch journal.SettingsPatch) (*models.Journal, error)

	ListPrompts(ctx context.Context, id uuid.UUID) ([]models.Prompt, error)
	AddCustomPrompt(ctx context.Context, id uuid.UUID, req journal.PromptRequest) (*models.Prompt, error)
	UpdateCustomPrompt(ctx context.Context, id uuid.UUID, promptID string, patch journal.PromptPatch) (*models.Prompt, error)
	DeleteCustomPrompt(ctx context.Context, id uuid.UUID, promptID string) (bool, error)
	ReorderPrompts(ctx context.Context, id uuid.UUID, ids []string) ([]models.Prompt, error)
	ResetPromptOrder(ctx context.Context, id uuid.UUID) ([]models.Prompt, error)

	RecordSend(ctx context.Context, id uuid.UUID, req journal.SendRequest) (*models.PromptSendRecord, error)
	MarkResponded(ctx context.Context, sendID uuid.UUID, at *time.Time) (*models.PromptSendRecord, error)
	PromptStats(ctx context.Context, id uuid.UUID) (*selector.Summary, error)
}

type AuditReader interface {
	JournalLog(ctx context.Context, journalID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}

type JournalHandler struct {
	svc   JournalService
	audit AuditReader
}

func NewJournalHandler(svc JournalService, audit AuditReader) *JournalHandler {
	return &JournalHandler{svc: svc, audit: audit}
}

func (h *JournalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req journal.CreateRequest
	if !decode(w, r, &req) {
		return
	}

	j, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (h *JournalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "journal")
	if !ok {
		return
	}

	j, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *JournalHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "journal")
	if !ok {
		return
	}

	var patch journal.SettingsPatch
	if !decode(w, r, &patch) {
		return
	}

	j, err := h.svc.UpdateSettings(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *JournalHandler) ListPrompts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "journal")
	if !ok {
		return
	}

	prompts, err := h.svc.ListPrompts(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prompts": prompts, "count": len(prompts)})
}

func (h *JournalHandler) AddPrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "journal")
	if !ok {
		return
	}

	var req journal.PromptRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.svc.AddCustomPrompt(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *JournalHandler) UpdatePrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "journal")
	if !ok {
		return
	}

	var patch journal.PromptPatch
	if !decode(w, r, &patch) {
		return
	}

	p, err := h.svc.UpdateCustomPrompt(r.Context(), id, chi.URLParam(r, "promptId"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *JournalHandler) DeletePrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "journal")
	if !ok {
		return
	}

	tombstoned, err := h.svc.DeleteCustomPrompt(r.Context(), id, chi.URLParam(r, "promptId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := "deleted"
	if tombstoned {
		status = "archived"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *JournalHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "journal")
	if !ok {
		return
	}

	var req struct {
		PromptIDs []string `json:"prompt_ids"`
	}
	if !decode(w, r, &req) {
		return
	}

	prompts, err := h.svc.ReorderPrompts(r.Context(), id, req.PromptIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prompts": prompts, "count": len(prompts)})
}

func (h *JournalHandler) ResetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "journal")
	if !ok {
		return
	}

	prompts, err := h.svc.ResetPromptOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prompts": prompts, "count": len(prompts)})
}

func (h *JournalHandler) RecordSend(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "journal")
	if !ok {
		return
	}

	var req journal.SendRequest
	if !decode(w, r, &req) {
		return
	}

	rec, err := h.svc.RecordSend(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *JournalHandler) MarkResponded(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "send")
	if !ok {
		return
	}

	var req struct {
		RespondedAt *time.Time `json:"responded_at,omitempty"`
	}
	if !decodeOptional(w, r, &req) {
		return
	}

	rec, err := h.svc.MarkResponded(r.Context(), id, req.RespondedAt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *JournalHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "journal")
	if !ok {
		return
	}

	sum, err := h.svc.PromptStats(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *JournalHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "journal")
	if !ok {
		return
	}

	// Access check.
	if _, err := h.svc.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	logs, err := h.audit.JournalLog(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"audit_logs": logs, "count": len(logs)})
}
