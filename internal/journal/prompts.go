package journal

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/audit"
	"github.com/keepswell/keepswell-api/internal/guardrails"
	"github.com/keepswell/keepswell-api/internal/models"
	"github.com/keepswell/keepswell-api/internal/template"
)

const (
	maxPromptTextLen = 500
	maxPromptWeight  = 10
)

type PromptRequest struct {
	Text          string          `json:"text"`
	Category      models.Category `json:"category"`
	Weight        *float64        `json:"weight,omitempty"`
	IsStarter     bool            `json:"is_starter"`
	IsDeep        bool            `json:"is_deep"`
	RequiresPhoto bool            `json:"requires_photo"`
}

type PromptPatch struct {
	Text          *string          `json:"text,omitempty"`
	Category      *models.Category `json:"category,omitempty"`
	Weight        *float64         `json:"weight,omitempty"`
	IsStarter     *bool            `json:"is_starter,omitempty"`
	IsDeep        *bool            `json:"is_deep,omitempty"`
	RequiresPhoto *bool            `json:"requires_photo,omitempty"`
}

var screen = guardrails.DefaultPipeline(maxPromptTextLen)

func cleanText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", &template.InvalidConfigValueError{Field: "text", Value: text, Reason: "must not be empty"}
	}
	if r := screen.Check(trimmed); !r.Allowed {
		return "", &template.InvalidConfigValueError{Field: "text", Reason: r.Reason}
	}
	return trimmed, nil
}

func checkCategory(c models.Category) error {
	if !c.Valid() {
		return &template.InvalidConfigValueError{Field: "category", Value: c, Reason: "unknown category"}
	}
	return nil
}

func checkWeight(w float64) error {
	if w < 0 || w > maxPromptWeight {
		return &template.InvalidConfigValueError{Field: "weight", Value: w, Reason: "must be between 0 and 10"}
	}
	return nil
}

// ListPrompts returns the journal's visible prompts in iteration order.
func (s *Service) ListPrompts(ctx context.Context, id uuid.UUID) ([]models.Prompt, error) {
	rc, err := s.ResolveConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	return rc.Prompts, nil
}

// AddCustomPrompt creates a journal-owned prompt. If the journal has a
// custom order the new prompt is appended to it.
func (s *Service) AddCustomPrompt(ctx context.Context, id uuid.UUID, req PromptRequest) (*models.Prompt, error) {
	text, err := cleanText(req.Text)
	if err != nil {
		return nil, err
	}
	if err := checkCategory(req.Category); err != nil {
		return nil, err
	}
	weight := 1.0
	if req.Weight != nil {
		if err := checkWeight(*req.Weight); err != nil {
			return nil, err
		}
		weight = *req.Weight
	}

	p := &models.Prompt{
		JournalID:     &id,
		Text:          text,
		Category:      req.Category,
		Weight:        weight,
		IsStarter:     req.IsStarter,
		IsDeep:        req.IsDeep,
		RequiresPhoto: req.RequiresPhoto,
		IsCustom:      true,
	}
	err = s.store.WithJournalLock(ctx, id, func(tx Store, j *models.Journal) error {
		if err := canWrite(ctx, j); err != nil {
			return err
		}
		if err := tx.InsertCustomPrompt(ctx, p); err != nil {
			return err
		}
		if j.HasCustomOrder() {
			j.CustomPromptOrder = append(j.CustomPromptOrder, p.ID)
			return tx.SaveJournal(ctx, j)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	s.audit.Record(ctx, audit.LogEntry{
		JournalID:    &id,
		Action:       audit.ActionPromptAdd,
		ResourceType: "prompt",
		ResourceID:   p.ID,
		Details:      map[string]interface{}{"category": p.Category},
	})
	return p, nil
}

// customPromptID maps a prompt id to a custom prompt row id. Catalog ids are
// rejected as read-only.
func (s *Service) customPromptID(promptID string) (uuid.UUID, error) {
	if _, ok := s.resolver.Catalog().Prompt(promptID); ok {
		return uuid.Nil, ErrSystemPrompt
	}
	pid, err := uuid.Parse(promptID)
	if err != nil {
		return uuid.Nil, ErrPromptNotFound
	}
	return pid, nil
}

func (s *Service) UpdateCustomPrompt(ctx context.Context, id uuid.UUID, promptID string, patch PromptPatch) (*models.Prompt, error) {
	pid, err := s.customPromptID(promptID)
	if err != nil {
		return nil, err
	}

	var text string
	if patch.Text != nil {
		if text, err = cleanText(*patch.Text); err != nil {
			return nil, err
		}
	}
	if patch.Category != nil {
		if err := checkCategory(*patch.Category); err != nil {
			return nil, err
		}
	}
	if patch.Weight != nil {
		if err := checkWeight(*patch.Weight); err != nil {
			return nil, err
		}
	}

	var updated *models.Prompt
	err = s.store.WithJournalLock(ctx, id, func(tx Store, j *models.Journal) error {
		if err := canWrite(ctx, j); err != nil {
			return err
		}
		p, err := tx.GetCustomPrompt(ctx, id, pid)
		if err != nil {
			return err
		}
		if p.Tombstoned() {
			return ErrPromptNotFound
		}

		if patch.Text != nil {
			p.Text = text
		}
		if patch.Category != nil {
			p.Category = *patch.Category
		}
		if patch.Weight != nil {
			p.Weight = *patch.Weight
		}
		if patch.IsStarter != nil {
			p.IsStarter = *patch.IsStarter
		}
		if patch.IsDeep != nil {
			p.IsDeep = *patch.IsDeep
		}
		if patch.RequiresPhoto != nil {
			p.RequiresPhoto = *patch.RequiresPhoto
		}
		if err := tx.UpdateCustomPrompt(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	s.audit.Record(ctx, audit.LogEntry{
		JournalID:    &id,
		Action:       audit.ActionPromptUpdate,
		ResourceType: "prompt",
		ResourceID:   promptID,
	})
	return updated, nil
}

// DeleteCustomPrompt removes a custom prompt. A prompt that has been sent is
// tombstoned instead so the send log keeps pointing at a real row. It
// reports whether the prompt was tombstoned.
func (s *Service) DeleteCustomPrompt(ctx context.Context, id uuid.UUID, promptID string) (bool, error) {
	pid, err := s.customPromptID(promptID)
	if err != nil {
		return false, err
	}

	var tombstoned bool
	err = s.store.WithJournalLock(ctx, id, func(tx Store, j *models.Journal) error {
		if err := canWrite(ctx, j); err != nil {
			return err
		}
		p, err := tx.GetCustomPrompt(ctx, id, pid)
		if err != nil {
			return err
		}
		if p.Tombstoned() {
			return ErrPromptNotFound
		}

		sends, err := tx.CountSends(ctx, id, p.ID)
		if err != nil {
			return err
		}
		if sends > 0 {
			tombstoned = true
			err = tx.TombstoneCustomPrompt(ctx, id, pid, s.now().UTC())
		} else {
			err = tx.DeleteCustomPrompt(ctx, id, pid)
		}
		if err != nil {
			return err
		}

		if j.HasCustomOrder() {
			j.CustomPromptOrder = without(j.CustomPromptOrder, p.ID)
			return tx.SaveJournal(ctx, j)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	action := audit.ActionPromptDelete
	if tombstoned {
		action = audit.ActionPromptTombstone
	}
	s.invalidate(ctx, id)
	s.audit.Record(ctx, audit.LogEntry{
		JournalID:    &id,
		Action:       action,
		ResourceType: "prompt",
		ResourceID:   promptID,
	})
	return tombstoned, nil
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// ReorderPrompts stores ids as the journal's prompt order. ids must be a
// permutation of the currently visible prompts.
func (s *Service) ReorderPrompts(ctx context.Context, id uuid.UUID, ids []string) ([]models.Prompt, error) {
	var pool []models.Prompt
	err := s.store.WithJournalLock(ctx, id, func(tx Store, j *models.Journal) error {
		if err := canWrite(ctx, j); err != nil {
			return err
		}
		t, err := s.resolver.Catalog().ByType(j.TemplateType)
		if err != nil {
			s.integrityViolation(ctx, j, err)
			return err
		}
		custom, err := tx.ListCustomPrompts(ctx, id)
		if err != nil {
			return err
		}

		visible := template.PromptPool(t.PromptPack.Prompts, custom, nil)
		if err := ValidatePermutation(visible, ids); err != nil {
			return err
		}

		j.CustomPromptOrder = append([]string(nil), ids...)
		if err := tx.SaveJournal(ctx, j); err != nil {
			return err
		}
		pool = template.PromptPool(t.PromptPack.Prompts, custom, j.CustomPromptOrder)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	s.audit.Record(ctx, audit.LogEntry{
		JournalID:    &id,
		Action:       audit.ActionPromptReorder,
		ResourceType: "journal",
		ResourceID:   id.String(),
		Details:      map[string]interface{}{"count": len(ids)},
	})
	return pool, nil
}

// ResetPromptOrder drops the custom order; prompts revert to pack order
// followed by custom prompts in creation order.
func (s *Service) ResetPromptOrder(ctx context.Context, id uuid.UUID) ([]models.Prompt, error) {
	var pool []models.Prompt
	err := s.store.WithJournalLock(ctx, id, func(tx Store, j *models.Journal) error {
		if err := canWrite(ctx, j); err != nil {
			return err
		}
		j.CustomPromptOrder = nil
		if err := tx.SaveJournal(ctx, j); err != nil {
			return err
		}
		rc, err := s.resolve(ctx, tx, j)
		if err != nil {
			return err
		}
		pool = rc.Prompts
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	s.audit.Record(ctx, audit.LogEntry{
		JournalID:    &id,
		Action:       audit.ActionPromptOrderReset,
		ResourceType: "journal",
		ResourceID:   id.String(),
	})
	return pool, nil
}
