package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/api/handlers"
	"github.com/keepswell/keepswell-api/internal/auth"
	"github.com/keepswell/keepswell-api/internal/config"
	"github.com/keepswell/keepswell-api/internal/models"
	"github.com/keepswell/keepswell-api/internal/template"
)

type noUsers struct{}

func (noUsers) EnsureUser(_ context.Context, id uuid.UUID, email, name string) (*models.User, error) {
	return &models.User{ID: id, Email: email}, nil
}

type keyStore map[string]*models.ServiceKey

func (k keyStore) ServiceKeyByHash(_ context.Context, hash string) (*models.ServiceKey, error) {
	if sk, ok := k[hash]; ok {
		return sk, nil
	}
	return nil, auth.ErrInvalidKey
}

func (keyStore) TouchServiceKey(context.Context, uuid.UUID) error { return nil }

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	catalog, err := template.LoadCatalog()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	cfg := &config.Config{
		Server: config.ServerConfig{AllowedOrigins: []string{"*"}, RateLimitRPS: 1000, RateLimitBurst: 1000},
		Auth:   config.AuthConfig{JWTSecret: "secret", APIKeyHeader: "X-API-Key"},
	}
	return NewRouter(cfg, Services{
		Catalog: catalog,
		Health:  map[string]handlers.Pinger{},
		Users:   noUsers{},
		Keys: keyStore{
			auth.HashAPIKey("ksw_reader"): {ID: uuid.New(), Scopes: []string{string(auth.ScopeJournalsRead)}},
		},
	}).Setup()
}

func TestRouterAuth(t *testing.T) {
	h := testRouter(t)

	tests := []struct {
		name     string
		method   string
		path     string
		key      string
		wantCode int
	}{
		{"health is public", http.MethodGet, "/healthz", "", http.StatusOK},
		{"templates need auth", http.MethodGet, "/api/v1/templates", "", http.StatusUnauthorized},
		{"scoped key reads templates", http.MethodGet, "/api/v1/templates", "ksw_reader", http.StatusOK},
		{"template by type", http.MethodGet, "/api/v1/templates/type/family", "ksw_reader", http.StatusOK},
		{"unknown type", http.MethodGet, "/api/v1/templates/type/legacy", "ksw_reader", http.StatusNotFound},
		{"service cannot customize", http.MethodPatch, "/api/v1/templates/journal/" + uuid.NewString() + "/customize", "ksw_reader", http.StatusForbidden},
		{"service lacks select scope", http.MethodPost, "/api/v1/templates/journal/" + uuid.NewString() + "/select-prompt", "ksw_reader", http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.key != "" {
				req.Header.Set("X-API-Key", tc.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.wantCode {
				t.Errorf("status: got %d, want %d (%s)", rec.Code, tc.wantCode, rec.Body.String())
			}
		})
	}
}
