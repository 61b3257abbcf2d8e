package models

import (
	"time"

	"github.com/google/uuid"
)

// Prompt is either a read-only catalog prompt or a journal-owned custom
// prompt (IsCustom, JournalID set).
type Prompt struct {
	ID            string     `json:"id" yaml:"id" db:"id"`
	JournalID     *uuid.UUID `json:"journal_id,omitempty" yaml:"-" db:"journal_id"`
	Text          string     `json:"text" yaml:"text" db:"text"`
	Category      Category   `json:"category" yaml:"category" db:"category"`
	Weight        float64    `json:"weight" yaml:"weight" db:"weight"`
	IsStarter     bool       `json:"is_starter" yaml:"is_starter" db:"is_starter"`
	IsDeep        bool       `json:"is_deep" yaml:"is_deep" db:"is_deep"`
	RequiresPhoto bool       `json:"requires_photo" yaml:"requires_photo" db:"requires_photo"`
	IsCustom      bool       `json:"is_custom" yaml:"-" db:"is_custom"`
	CreatedAt     *time.Time `json:"created_at,omitempty" yaml:"-" db:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty" yaml:"-" db:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty" yaml:"-" db:"deleted_at"`
}

// EffectiveWeight treats an unset weight as 1.
func (p Prompt) EffectiveWeight() float64 {
	if p.Weight <= 0 {
		return 1
	}
	return p.Weight
}

func (p Prompt) Tombstoned() bool {
	return p.DeletedAt != nil
}

// PromptSendRecord is one row of the append-only send log. A nil
// ParticipantID means the prompt went to every participant.
type PromptSendRecord struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	JournalID     uuid.UUID  `json:"journal_id" db:"journal_id"`
	PromptID      string     `json:"prompt_id" db:"prompt_id"`
	ParticipantID *uuid.UUID `json:"participant_id,omitempty" db:"participant_id"`
	SentAt        time.Time  `json:"sent_at" db:"sent_at"`
	RespondedAt   *time.Time `json:"responded_at,omitempty" db:"responded_at"`
}
