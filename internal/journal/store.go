package journal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/models"
)

// Store persists journals, their custom prompts and send history.
type Store interface {
	GetJournal(ctx context.Context, id uuid.UUID) (*models.Journal, error)
	CreateJournal(ctx context.Context, j *models.Journal) error
	// SaveJournal writes the mutable columns: title, status, schedule,
	// custom order and overrides.
	SaveJournal(ctx context.Context, j *models.Journal) error
	ListSchedules(ctx context.Context) ([]Schedule, error)

	ListCustomPrompts(ctx context.Context, journalID uuid.UUID) ([]models.Prompt, error)
	GetCustomPrompt(ctx context.Context, journalID, promptID uuid.UUID) (*models.Prompt, error)
	InsertCustomPrompt(ctx context.Context, p *models.Prompt) error
	UpdateCustomPrompt(ctx context.Context, p *models.Prompt) error
	TombstoneCustomPrompt(ctx context.Context, journalID, promptID uuid.UUID, at time.Time) error
	DeleteCustomPrompt(ctx context.Context, journalID, promptID uuid.UUID) error

	ListSends(ctx context.Context, journalID uuid.UUID) ([]models.PromptSendRecord, error)
	CountSends(ctx context.Context, journalID uuid.UUID, promptID string) (int, error)
	GetSend(ctx context.Context, id uuid.UUID) (*models.PromptSendRecord, error)
	InsertSend(ctx context.Context, rec *models.PromptSendRecord) error
	MarkResponded(ctx context.Context, id uuid.UUID, at time.Time) error

	// WithJournalLock runs fn with the journal row locked until fn returns.
	// fn receives a Store bound to the locking transaction and the locked
	// journal; returning an error rolls everything back.
	WithJournalLock(ctx context.Context, id uuid.UUID, fn func(tx Store, j *models.Journal) error) error
}

// Schedule is an active journal with the time of its latest send.
type Schedule struct {
	Journal    models.Journal
	LastSentAt *time.Time
}
