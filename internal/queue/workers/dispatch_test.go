package workers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/keepswell/keepswell-api/internal/journal"
	"github.com/keepswell/keepswell-api/internal/queue"
	"github.com/keepswell/keepswell-api/internal/selector"
)

type fakeJournals struct {
	due      []uuid.UUID
	dispatch func(id uuid.UUID) (*journal.Dispatched, error)
}

func (f *fakeJournals) DueJournals(context.Context, time.Time) ([]uuid.UUID, error) {
	return f.due, nil
}

func (f *fakeJournals) Dispatch(_ context.Context, id uuid.UUID, _ time.Time) (*journal.Dispatched, error) {
	return f.dispatch(id)
}

type fakeEnqueuer struct {
	payloads []queue.PromptDispatchPayload
}

func (f *fakeEnqueuer) EnqueuePromptDispatch(_ context.Context, p queue.PromptDispatchPayload) error {
	f.payloads = append(f.payloads, p)
	return nil
}

func dispatchTask(t *testing.T, id string) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(queue.PromptDispatchPayload{JournalID: id, DueAt: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	return asynq.NewTask(queue.TypePromptDispatch, data)
}

func TestSweepEnqueuesDueJournals(t *testing.T) {
	due := []uuid.UUID{uuid.New(), uuid.New()}
	q := &fakeEnqueuer{}
	w := NewDispatchWorker(&fakeJournals{due: due}, q)

	if err := w.Sweep(context.Background(), asynq.NewTask(queue.TypeDispatchSweep, nil)); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(q.payloads) != 2 || q.payloads[0].JournalID != due[0].String() {
		t.Errorf("payloads: %+v", q.payloads)
	}
}

func TestProcessDispatchOutcomes(t *testing.T) {
	boom := errors.New("db down")
	tests := []struct {
		name      string
		id        string
		result    *journal.Dispatched
		err       error
		wantErr   bool
		skipRetry bool
	}{
		{"dispatched", uuid.NewString(), &journal.Dispatched{SendID: uuid.New()}, nil, false, false},
		{"not due", uuid.NewString(), nil, journal.ErrNotDue, false, false},
		{"paused", uuid.NewString(), nil, journal.ErrJournalNotActive, false, false},
		{"no prompt", uuid.NewString(), nil, &selector.NoEligiblePromptError{Reason: "empty"}, false, false},
		{"missing journal", uuid.NewString(), nil, journal.ErrJournalNotFound, true, true},
		{"transient", uuid.NewString(), nil, boom, true, false},
		{"publish failed", uuid.NewString(), &journal.Dispatched{SendID: uuid.New()}, boom, false, false},
		{"bad id", "nope", nil, nil, true, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := NewDispatchWorker(&fakeJournals{dispatch: func(uuid.UUID) (*journal.Dispatched, error) {
				return tc.result, tc.err
			}}, &fakeEnqueuer{})

			err := w.ProcessTask(context.Background(), dispatchTask(t, tc.id))
			if (err != nil) != tc.wantErr {
				t.Fatalf("err: got %v, want error=%v", err, tc.wantErr)
			}
			if errors.Is(err, asynq.SkipRetry) != tc.skipRetry {
				t.Errorf("skip retry: got %v, want %v", errors.Is(err, asynq.SkipRetry), tc.skipRetry)
			}
		})
	}
}
