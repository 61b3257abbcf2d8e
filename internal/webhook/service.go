package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/queue"
)

// Enqueuer schedules a delivery task.
type Enqueuer interface {
	EnqueueWebhookDeliver(ctx context.Context, payload queue.WebhookDeliverPayload) error
}

// Service publishes domain events for asynchronous delivery.
type Service struct {
	queue Enqueuer
}

func NewService(q Enqueuer) *Service {
	return &Service{queue: q}
}

// Publish serializes payload and enqueues it under a fresh delivery id.
func (s *Service) Publish(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	return s.queue.EnqueueWebhookDeliver(ctx, queue.WebhookDeliverPayload{
		DeliveryID: uuid.NewString(),
		Event:      event,
		Payload:    data,
	})
}
