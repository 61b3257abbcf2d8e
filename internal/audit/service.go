package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keepswell/keepswell-api/internal/identity"
	"github.com/keepswell/keepswell-api/internal/models"
)

const (
	SeverityInfo = "info"
	SeverityHigh = "high"
)

const (
	ActionCustomize          = "journal.customize"
	ActionResetCustomization = "journal.customize.reset"
	ActionPromptAdd          = "prompt.add"
	ActionPromptUpdate       = "prompt.update"
	ActionPromptDelete       = "prompt.delete"
	ActionPromptTombstone    = "prompt.tombstone"
	ActionPromptReorder      = "prompt.reorder"
	ActionPromptOrderReset   = "prompt.order.reset"
	ActionJournalCreate      = "journal.create"
	ActionJournalSettings    = "journal.settings"
	ActionTierChange         = "billing.tier"
	ActionIntegrity          = "integrity.violation"
)

type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

type LogEntry struct {
	JournalID    *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	Severity     string
	Details      map[string]interface{}
	IPAddress    string
}

func (s *Service) Log(ctx context.Context, entry LogEntry) error {
	var userID *uuid.UUID
	if user := identity.UserFromContext(ctx); user != nil {
		userID = &user.ID
	}

	if entry.Severity == "" {
		entry.Severity = SeverityInfo
	}
	if entry.Details == nil {
		entry.Details = map[string]interface{}{}
	}
	details, _ := json.Marshal(entry.Details)

	var ip *netip.Addr
	if entry.IPAddress != "" {
		parsed, err := netip.ParseAddr(entry.IPAddress)
		if err == nil {
			ip = &parsed
		}
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO audit_logs (journal_id, user_id, action, resource_type, resource_id, severity, details, ip_address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.JournalID, userID, entry.Action, entry.ResourceType, entry.ResourceID, entry.Severity, details, ip,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}

	return nil
}

// Record logs entry and never fails the caller; audit writes are
// best-effort.
func (s *Service) Record(ctx context.Context, entry LogEntry) {
	if err := s.Log(ctx, entry); err != nil {
		slog.Warn("audit log write failed", "action", entry.Action, "error", err)
	}
}

func (s *Service) JournalLog(ctx context.Context, journalID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, journal_id, user_id, action, resource_type, resource_id, severity, details, ip_address, created_at
		 FROM audit_logs WHERE journal_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		journalID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.JournalID, &l.UserID, &l.Action, &l.ResourceType, &l.ResourceID,
			&l.Severity, &l.Details, &l.IPAddress, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
