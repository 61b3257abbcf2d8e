package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/models"
)

type contextKey string

const (
	userKey    contextKey = "user"
	serviceKey contextKey = "service"
)

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

func UserIDFromContext(ctx context.Context) uuid.UUID {
	if u := UserFromContext(ctx); u != nil {
		return u.ID
	}
	return uuid.Nil
}

// WithService marks ctx as authenticated by a service key rather than an
// end-user token.
func WithService(ctx context.Context, k *models.ServiceKey) context.Context {
	return context.WithValue(ctx, serviceKey, k)
}

func ServiceFromContext(ctx context.Context) *models.ServiceKey {
	k, _ := ctx.Value(serviceKey).(*models.ServiceKey)
	return k
}

// Authenticated reports whether either a user or a service is attached.
func Authenticated(ctx context.Context) bool {
	return UserFromContext(ctx) != nil || ServiceFromContext(ctx) != nil
}
