package queue

import (
	"encoding/json"
	"time"
)

const (
	TypeDispatchSweep  = "dispatch:sweep"
	TypePromptDispatch = "prompt:dispatch"
	TypeWebhookDeliver = "webhook:deliver"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

type PromptDispatchPayload struct {
	JournalID string    `json:"journal_id"`
	DueAt     time.Time `json:"due_at"`
}

type WebhookDeliverPayload struct {
	DeliveryID string          `json:"delivery_id"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
}
