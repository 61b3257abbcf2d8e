// Package billing applies subscription tier changes pushed by the billing
// provider.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/audit"
	"github.com/keepswell/keepswell-api/internal/webhook"
)

var (
	ErrBadSignature = errors.New("invalid billing signature")
	ErrBadPayload   = errors.New("invalid billing payload")
)

// DefaultTolerance is how far a signed timestamp may drift from the clock.
const DefaultTolerance = 5 * time.Minute

const (
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionCanceled  = "subscription.canceled"
	EventSubscriptionUpdated   = "subscription.updated"
)

type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     uuid.UUID `json:"user_id"`
	IsPremium  bool      `json:"is_premium"`
	OccurredAt time.Time `json:"occurred_at"`
	// Applied is false when the event was ignored: an unknown type, or one
	// older than the last tier change already applied.
	Applied bool `json:"-"`
}

// TierStore flips a user's premium flag and returns their journal ids.
// Changes at or before the user's last applied change are skipped and
// report applied=false.
type TierStore interface {
	SetPremium(ctx context.Context, userID uuid.UUID, premium bool, at time.Time) (journalIDs []uuid.UUID, applied bool, err error)
}

type ConfigInvalidator interface {
	InvalidateConfigs(ctx context.Context, journalIDs ...uuid.UUID)
}

type Auditor interface {
	Record(ctx context.Context, entry audit.LogEntry)
}

type Service struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
	tiers     TierStore
	configs   ConfigInvalidator
	audit     Auditor
}

func NewService(secret string, tiers TierStore, configs ConfigInvalidator, auditor Auditor) *Service {
	return &Service{
		secret:    secret,
		tolerance: DefaultTolerance,
		now:       time.Now,
		tiers:     tiers,
		configs:   configs,
		audit:     auditor,
	}
}

// HandleWebhook verifies that signature covers "<timestamp>.<body>" and
// that timestamp (unix seconds) is recent, then applies the tier change the
// event carries. Events older than the user's last applied change are
// acknowledged without effect.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature, timestamp string) (*Event, error) {
	signedAt, err := s.checkTimestamp(timestamp)
	if err != nil {
		return nil, err
	}
	if !webhook.Verify(webhook.SignedContent(timestamp, body), s.secret, signature) {
		return nil, ErrBadSignature
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if ev.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: user_id is required", ErrBadPayload)
	}

	premium := ev.IsPremium
	switch ev.Type {
	case EventSubscriptionActivated:
		premium = true
	case EventSubscriptionCanceled:
		premium = false
	case EventSubscriptionUpdated:
	default:
		slog.Info("ignoring billing event", "type", ev.Type, "event_id", ev.ID)
		return &ev, nil
	}
	ev.IsPremium = premium
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = signedAt
	}

	journalIDs, applied, err := s.tiers.SetPremium(ctx, ev.UserID, premium, ev.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("set premium: %w", err)
	}
	if !applied {
		slog.Info("ignoring stale billing event", "event_id", ev.ID, "user_id", ev.UserID, "occurred_at", ev.OccurredAt)
		return &ev, nil
	}
	ev.Applied = true
	s.configs.InvalidateConfigs(ctx, journalIDs...)

	for _, id := range journalIDs {
		s.audit.Record(ctx, audit.LogEntry{
			JournalID:    &id,
			Action:       audit.ActionTierChange,
			ResourceType: "user",
			ResourceID:   ev.UserID.String(),
			Details:      map[string]interface{}{"is_premium": premium, "event_id": ev.ID},
		})
	}

	slog.Info("billing tier updated", "user_id", ev.UserID, "is_premium", premium, "journals", len(journalIDs))
	return &ev, nil
}

func (s *Service) checkTimestamp(timestamp string) (time.Time, error) {
	sec, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return time.Time{}, ErrBadSignature
	}
	at := time.Unix(sec, 0).UTC()
	if d := s.now().Sub(at); d > s.tolerance || d < -s.tolerance {
		return time.Time{}, fmt.Errorf("%w: timestamp outside tolerance", ErrBadSignature)
	}
	return at, nil
}
