package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/keepswell/keepswell-api/internal/queue"
	"github.com/keepswell/keepswell-api/internal/webhook"
)

type Deliverer interface {
	Deliver(ctx context.Context, req webhook.DeliveryRequest) error
}

type WebhookWorker struct {
	dispatcher Deliverer
}

func NewWebhookWorker(d Deliverer) *WebhookWorker {
	return &WebhookWorker{dispatcher: d}
}

func (w *WebhookWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.WebhookDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	id, err := uuid.Parse(payload.DeliveryID)
	if err != nil {
		return fmt.Errorf("parse delivery ID: %v: %w", err, asynq.SkipRetry)
	}

	attempt, _ := asynq.GetRetryCount(ctx)
	err = w.dispatcher.Deliver(ctx, webhook.DeliveryRequest{
		ID:      id,
		Event:   payload.Event,
		Payload: payload.Payload,
		Attempt: attempt + 1,
	})
	if errors.Is(err, webhook.ErrPermanent) {
		slog.Error("webhook delivery rejected", "delivery_id", id, "event", payload.Event, "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("deliver %s: %w", payload.Event, err)
	}
	return nil
}
