package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/keepswell/keepswell-api/internal/journal"
	"github.com/keepswell/keepswell-api/internal/queue"
	"github.com/keepswell/keepswell-api/internal/selector"
)

// Journals is the part of the journal service the dispatch worker uses.
type Journals interface {
	DueJournals(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	Dispatch(ctx context.Context, id uuid.UUID, now time.Time) (*journal.Dispatched, error)
}

type DispatchEnqueuer interface {
	EnqueuePromptDispatch(ctx context.Context, payload queue.PromptDispatchPayload) error
}

type DispatchWorker struct {
	journals Journals
	queue    DispatchEnqueuer
	now      func() time.Time
}

func NewDispatchWorker(journals Journals, q DispatchEnqueuer) *DispatchWorker {
	return &DispatchWorker{
		journals: journals,
		queue:    q,
		now:      time.Now,
	}
}

// Sweep enqueues a dispatch task for every journal that is due.
func (w *DispatchWorker) Sweep(ctx context.Context, _ *asynq.Task) error {
	now := w.now()
	ids, err := w.journals.DueJournals(ctx, now)
	if err != nil {
		return fmt.Errorf("find due journals: %w", err)
	}

	var failed int
	for _, id := range ids {
		err := w.queue.EnqueuePromptDispatch(ctx, queue.PromptDispatchPayload{JournalID: id.String(), DueAt: now})
		if err != nil {
			failed++
			slog.Error("failed to enqueue dispatch", "journal_id", id, "error", err)
		}
	}

	slog.Info("dispatch sweep complete", "due", len(ids), "failed", failed)
	if failed > 0 && failed == len(ids) {
		return fmt.Errorf("enqueue dispatch: all %d failed", failed)
	}
	return nil
}

func (w *DispatchWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.PromptDispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	journalID, err := uuid.Parse(payload.JournalID)
	if err != nil {
		return fmt.Errorf("parse journal ID: %v: %w", err, asynq.SkipRetry)
	}

	d, err := w.journals.Dispatch(ctx, journalID, w.now())
	var noEligible *selector.NoEligiblePromptError
	switch {
	case err == nil:
		slog.Info("dispatch task done", "journal_id", journalID, "send_id", d.SendID)
		return nil
	case errors.Is(err, journal.ErrNotDue), errors.Is(err, journal.ErrJournalNotActive):
		slog.Info("dispatch skipped", "journal_id", journalID, "reason", err.Error())
		return nil
	case errors.As(err, &noEligible):
		slog.Warn("dispatch skipped, no eligible prompt", "journal_id", journalID, "reason", noEligible.Reason)
		return nil
	case errors.Is(err, journal.ErrJournalNotFound):
		return fmt.Errorf("dispatch %s: %v: %w", journalID, err, asynq.SkipRetry)
	case d != nil:
		// The send is recorded; retrying would only hit ErrNotDue.
		slog.Error("dispatched prompt not published", "journal_id", journalID, "send_id", d.SendID, "error", err)
		return nil
	default:
		return fmt.Errorf("dispatch %s: %w", journalID, err)
	}
}
