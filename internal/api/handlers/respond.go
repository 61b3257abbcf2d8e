package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/billing"
	"github.com/keepswell/keepswell-api/internal/journal"
	"github.com/keepswell/keepswell-api/internal/selector"
	"github.com/keepswell/keepswell-api/internal/suggest"
	"github.com/keepswell/keepswell-api/internal/template"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// decodeOptional accepts an empty body and leaves dst untouched.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + label + " ID"})
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps domain errors to HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalid  *template.InvalidConfigValueError
		premium  *template.PremiumRequiredError
		missing  *template.TemplateNotFoundError
		mismatch *journal.OrderMismatchError
		noneLeft *selector.NoEligiblePromptError
	)

	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error": invalid.Error(),
			"field": invalid.Field,
		})
	case errors.As(err, &premium):
		writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error":            premium.Error(),
			"upgrade_required": true,
		})
	case errors.As(err, &mismatch):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":      mismatch.Error(),
			"missing":    mismatch.Missing,
			"foreign":    mismatch.Foreign,
			"duplicates": mismatch.Duplicates,
		})
	case errors.As(err, &noneLeft):
		writeJSON(w, http.StatusConflict, map[string]string{"error": noneLeft.Error()})
	case errors.As(err, &missing):
		// Already logged and audited as an integrity violation.
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "journal template is unavailable"})
	case errors.Is(err, journal.ErrJournalNotFound),
		errors.Is(err, journal.ErrPromptNotFound),
		errors.Is(err, journal.ErrSendNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, journal.ErrForbidden), errors.Is(err, journal.ErrSystemPrompt):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, journal.ErrAlreadyResponded),
		errors.Is(err, journal.ErrJournalNotActive),
		errors.Is(err, journal.ErrNotDue):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, suggest.ErrBadReply):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	case errors.Is(err, billing.ErrBadSignature):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case errors.Is(err, billing.ErrBadPayload):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
