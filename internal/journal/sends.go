package journal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/models"
	"github.com/keepswell/keepswell-api/internal/selector"
	"github.com/keepswell/keepswell-api/internal/template"
)

type SendRequest struct {
	PromptID      string     `json:"prompt_id"`
	ParticipantID *uuid.UUID `json:"participant_id,omitempty"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
}

// RecordSend appends a send to the journal's log. The prompt must be in the
// journal's visible pool.
func (s *Service) RecordSend(ctx context.Context, id uuid.UUID, req SendRequest) (*models.PromptSendRecord, error) {
	if req.PromptID == "" {
		return nil, &template.InvalidConfigValueError{Field: "prompt_id", Reason: "is required"}
	}

	rc, err := s.ResolveConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inPool(rc.Prompts, req.PromptID) {
		return nil, ErrPromptNotFound
	}

	rec := &models.PromptSendRecord{
		ID:            uuid.New(),
		JournalID:     id,
		PromptID:      req.PromptID,
		ParticipantID: req.ParticipantID,
		SentAt:        s.now().UTC(),
	}
	if req.SentAt != nil {
		rec.SentAt = req.SentAt.UTC()
	}
	if err := s.store.InsertSend(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func inPool(pool []models.Prompt, id string) bool {
	for _, p := range pool {
		if p.ID == id {
			return true
		}
	}
	return false
}

// MarkResponded records when a participant answered a send. It can be set
// once.
func (s *Service) MarkResponded(ctx context.Context, sendID uuid.UUID, at *time.Time) (*models.PromptSendRecord, error) {
	rec, err := s.store.GetSend(ctx, sendID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, rec.JournalID); err != nil {
		return nil, err
	}
	if rec.RespondedAt != nil {
		return nil, ErrAlreadyResponded
	}

	when := s.now().UTC()
	if at != nil {
		when = at.UTC()
	}
	if when.Before(rec.SentAt) {
		return nil, &template.InvalidConfigValueError{Field: "responded_at", Value: when, Reason: "must not be before sent_at"}
	}
	if err := s.store.MarkResponded(ctx, sendID, when); err != nil {
		return nil, err
	}
	rec.RespondedAt = &when
	return rec, nil
}

// PromptStats summarizes the journal's send log against its current pool.
func (s *Service) PromptStats(ctx context.Context, id uuid.UUID) (*selector.Summary, error) {
	rc, err := s.ResolveConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.store.ListSends(ctx, id)
	if err != nil {
		return nil, err
	}
	sum := selector.Stats(rc.Prompts, history)
	return &sum, nil
}
