package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keepswell/keepswell-api/internal/identity"
	"github.com/keepswell/keepswell-api/internal/models"
)

var ErrInvalidKey = errors.New("invalid service key")

// KeyStore looks up service keys by hash.
type KeyStore interface {
	ServiceKeyByHash(ctx context.Context, hash string) (*models.ServiceKey, error)
	TouchServiceKey(ctx context.Context, id uuid.UUID) error
}

// PostgresKeyStore reads service_keys.
type PostgresKeyStore struct {
	db *pgxpool.Pool
}

func NewPostgresKeyStore(db *pgxpool.Pool) *PostgresKeyStore {
	return &PostgresKeyStore{db: db}
}

func (s *PostgresKeyStore) ServiceKeyByHash(ctx context.Context, hash string) (*models.ServiceKey, error) {
	var k models.ServiceKey
	err := s.db.QueryRow(ctx,
		`SELECT id, key_hash, name, scopes, last_used_at, expires_at, created_at
		 FROM service_keys WHERE key_hash = $1`, hash,
	).Scan(&k.ID, &k.KeyHash, &k.Name, &k.Scopes, &k.LastUsedAt, &k.ExpiresAt, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("get service key: %w", err)
	}
	return &k, nil
}

func (s *PostgresKeyStore) TouchServiceKey(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, "UPDATE service_keys SET last_used_at = $1 WHERE id = $2", time.Now(), id)
	return err
}

// APIKeyMiddleware authenticates internal collaborators by service key. A
// request without the header passes through for the JWT middleware.
type APIKeyMiddleware struct {
	keys       KeyStore
	headerName string
}

func NewAPIKeyMiddleware(keys KeyStore, headerName string) *APIKeyMiddleware {
	return &APIKeyMiddleware{
		keys:       keys,
		headerName: headerName,
	}
}

func (m *APIKeyMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(m.headerName)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		hash := HashAPIKey(key)
		sk, err := m.keys.ServiceKeyByHash(r.Context(), hash)
		if err != nil {
			if !errors.Is(err, ErrInvalidKey) {
				slog.Error("service key lookup failed", "error", err)
			}
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		if sk.ExpiresAt != nil && sk.ExpiresAt.Before(time.Now()) {
			writeError(w, http.StatusUnauthorized, "API key expired")
			return
		}

		if subtle.ConstantTimeCompare([]byte(sk.KeyHash), []byte(hash)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		go func(id uuid.UUID) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.keys.TouchServiceKey(ctx, id); err != nil {
				slog.Warn("service key touch failed", "error", err)
			}
		}(sk.ID)

		next.ServeHTTP(w, r.WithContext(identity.WithService(r.Context(), sk)))
	})
}

func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// GenerateAPIKey returns a new random service key. Only its hash is stored.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return "ksw_" + hex.EncodeToString(b), nil
}
