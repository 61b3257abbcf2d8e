package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/models"
	"github.com/keepswell/keepswell-api/internal/schedule"
	"github.com/keepswell/keepswell-api/internal/selector"
	"github.com/keepswell/keepswell-api/internal/template"
)

const EventPromptDispatched = "prompt.dispatched"

// Dispatched is the payload handed to the delivery pipeline.
type Dispatched struct {
	JournalID       uuid.UUID       `json:"journal_id"`
	OwnerID         uuid.UUID       `json:"owner_id"`
	SendID          uuid.UUID       `json:"send_id"`
	PromptID        string          `json:"prompt_id"`
	Category        models.Category `json:"category"`
	Text            string          `json:"text"`
	RequiresPhoto   bool            `json:"requires_photo"`
	SelectionReason string          `json:"selection_reason"`
	Confidence      float64         `json:"confidence"`
	SentAt          time.Time       `json:"sent_at"`
}

// DueJournals returns active journals whose next prompt time has passed.
func (s *Service) DueJournals(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	schedules, err := s.store.ListSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}

	var due []uuid.UUID
	for _, sc := range schedules {
		ok, _, err := schedule.Due(schedule.FromJournal(&sc.Journal), sc.Journal.CreatedAt, sc.LastSentAt, now)
		if err != nil {
			slog.Warn("skipping journal with bad schedule", "journal_id", sc.Journal.ID, "error", err)
			continue
		}
		if ok {
			due = append(due, sc.Journal.ID)
		}
	}
	return due, nil
}

// Dispatch selects the journal's next prompt and records the send in the
// same transaction, then publishes it for delivery. Journals that are not
// due return ErrNotDue, so duplicate dispatch tasks are harmless.
func (s *Service) Dispatch(ctx context.Context, id uuid.UUID, now time.Time) (*Dispatched, error) {
	var (
		j      *models.Journal
		rc     *template.ResolvedConfig
		result *selector.Result
		rec    models.PromptSendRecord
	)
	err := s.store.WithJournalLock(ctx, id, func(tx Store, locked *models.Journal) error {
		j = locked
		if j.Status != models.JournalActive {
			return ErrJournalNotActive
		}

		history, err := tx.ListSends(ctx, id)
		if err != nil {
			return err
		}
		var lastSent *time.Time
		if n := len(history); n > 0 {
			lastSent = &history[n-1].SentAt
		}
		due, _, err := schedule.Due(schedule.FromJournal(j), j.CreatedAt, lastSent, now)
		if err != nil {
			return err
		}
		if !due {
			return ErrNotDue
		}

		rc, err = s.resolve(ctx, tx, j)
		if err != nil {
			return err
		}
		result, err = s.selector.SelectNext(rc.Prompts, history, selector.Options{Ordered: j.HasCustomOrder()})
		if err != nil {
			return err
		}

		rec = models.PromptSendRecord{
			ID:        uuid.New(),
			JournalID: id,
			PromptID:  result.Prompt.ID,
			SentAt:    now.UTC(),
		}
		return tx.InsertSend(ctx, &rec)
	})
	if err != nil {
		return nil, err
	}

	text, unresolved := template.Render(result.Prompt.Text, promptVars(j, rc, now))
	if len(unresolved) > 0 {
		slog.Warn("prompt has unresolved placeholders", "journal_id", id, "prompt_id", result.Prompt.ID, "placeholders", unresolved)
	}

	d := &Dispatched{
		JournalID:       id,
		OwnerID:         j.OwnerID,
		SendID:          rec.ID,
		PromptID:        result.Prompt.ID,
		Category:        result.Prompt.Category,
		Text:            text,
		RequiresPhoto:   result.Prompt.RequiresPhoto,
		SelectionReason: result.SelectionReason,
		Confidence:      result.Confidence,
		SentAt:          rec.SentAt,
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, EventPromptDispatched, d); err != nil {
			return d, fmt.Errorf("publish dispatched prompt: %w", err)
		}
	}

	slog.Info("prompt dispatched",
		"journal_id", id,
		"prompt_id", d.PromptID,
		"reason", d.SelectionReason,
		"confidence", d.Confidence,
	)
	return d, nil
}

func promptVars(j *models.Journal, rc *template.ResolvedConfig, now time.Time) map[string]string {
	year := now.Year()
	if loc, err := time.LoadLocation(j.Timezone); err == nil {
		year = now.In(loc).Year()
	}
	return map[string]string{
		"journal_title":    j.Title,
		"participant_noun": rc.FramingRules.ParticipantNoun,
		"entry_noun":       rc.FramingRules.EntryNoun,
		"year":             strconv.Itoa(year),
	}
}
