package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keepswell/keepswell-api/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx,
		"SELECT id, email, full_name, phone, is_premium, created_at FROM users WHERE id = $1", id,
	).Scan(&u.ID, &u.Email, &u.FullName, &u.Phone, &u.IsPremium, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// EnsureUser records a user the identity provider has already verified.
// Profile fields are refreshed from the token on every call.
func (s *Service) EnsureUser(ctx context.Context, id uuid.UUID, email, fullName string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx,
		`INSERT INTO users (id, email, full_name) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email,
		     full_name = COALESCE(NULLIF(EXCLUDED.full_name, ''), users.full_name)
		 RETURNING id, email, full_name, phone, is_premium, created_at`,
		id, email, fullName,
	).Scan(&u.ID, &u.Email, &u.FullName, &u.Phone, &u.IsPremium, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return &u, nil
}

// SetPremium updates the user's tier and every journal they own, returning
// the ids of those journals. A change stamped at or before the user's last
// applied change is skipped and reports applied=false.
func (s *Service) SetPremium(ctx context.Context, userID uuid.UUID, premium bool, at time.Time) ([]uuid.UUID, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE users SET is_premium = $1, tier_updated_at = $3
		 WHERE id = $2 AND (tier_updated_at IS NULL OR tier_updated_at < $3)`,
		premium, userID, at,
	)
	if err != nil {
		return nil, false, fmt.Errorf("update user tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists); err != nil {
			return nil, false, fmt.Errorf("check user: %w", err)
		}
		if !exists {
			return nil, false, ErrUserNotFound
		}
		return nil, false, nil
	}

	rows, err := tx.Query(ctx,
		"UPDATE journals SET is_premium = $1, updated_at = now() WHERE owner_id = $2 RETURNING id",
		premium, userID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("update journal tier: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, false, fmt.Errorf("collect journal ids: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return ids, true, nil
}
