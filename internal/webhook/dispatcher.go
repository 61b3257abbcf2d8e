package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPermanent marks deliveries that will not succeed on retry.
var ErrPermanent = errors.New("permanent delivery failure")

type DeliveryRequest struct {
	ID      uuid.UUID
	Event   string
	Payload []byte
	Attempt int
}

// DeliveryRecorder keeps one row per delivery with its latest outcome.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, req DeliveryRequest, status int, delivered bool) error
}

// Dispatcher posts signed events to the outbound endpoint. Retries are the
// caller's job; Deliver makes exactly one attempt.
type Dispatcher struct {
	url        string
	secret     string
	recorder   DeliveryRecorder
	httpClient *http.Client
}

func NewDispatcher(url, secret string, timeout time.Duration, recorder DeliveryRecorder) *Dispatcher {
	return &Dispatcher{
		url:      url,
		secret:   secret,
		recorder: recorder,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (d *Dispatcher) Deliver(ctx context.Context, req DeliveryRequest) error {
	if d.url == "" {
		slog.Warn("no dispatch webhook configured, dropping event", "event", req.Event, "delivery_id", req.ID)
		return nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(req.Payload))
	if err != nil {
		d.record(ctx, req, 0, false)
		return fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Webhook-Event", req.Event)
	httpReq.Header.Set("X-Webhook-ID", req.ID.String())
	httpReq.Header.Set("X-Webhook-Timestamp", timestamp)
	httpReq.Header.Set("X-Webhook-Signature", Sign(SignedContent(timestamp, req.Payload), d.secret))

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		d.record(ctx, req, 0, false)
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	ok := resp.StatusCode < 300
	d.record(ctx, req, resp.StatusCode, ok)

	switch {
	case ok:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return fmt.Errorf("%w: endpoint returned %d", ErrPermanent, resp.StatusCode)
	default:
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
}

func (d *Dispatcher) record(ctx context.Context, req DeliveryRequest, status int, delivered bool) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordDelivery(ctx, req, status, delivered); err != nil {
		slog.Error("failed to record webhook delivery", "delivery_id", req.ID, "error", err)
	}
}

// SignedContent is the string a timestamped signature covers.
func SignedContent(timestamp string, payload []byte) []byte {
	return append([]byte(timestamp+"."), payload...)
}

// Sign returns the hex HMAC-SHA256 of payload in "sha256=<hex>" form.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}

// Verify checks a signature produced by Sign in constant time. The
// "sha256=" prefix is optional.
func Verify(payload []byte, secret, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	if !strings.HasPrefix(signature, "sha256=") {
		signature = "sha256=" + signature
	}
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}

// PostgresRecorder writes delivery outcomes to webhook_deliveries.
type PostgresRecorder struct {
	db *pgxpool.Pool
}

func NewPostgresRecorder(db *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (r *PostgresRecorder) RecordDelivery(ctx context.Context, req DeliveryRequest, status int, delivered bool) error {
	var deliveredAt *time.Time
	if delivered {
		now := time.Now()
		deliveredAt = &now
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO webhook_deliveries (id, event, payload, response_status, attempts, delivered_at)
		 VALUES ($1, $2, $3, $4, 1, $5)
		 ON CONFLICT (id) DO UPDATE SET response_status = EXCLUDED.response_status,
		     attempts = webhook_deliveries.attempts + 1, delivered_at = EXCLUDED.delivered_at`,
		req.ID, req.Event, req.Payload, status, deliveredAt,
	)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}
