package middleware

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Actor is the authenticated principal attached by RequireAuth. Imports and
// exports are scoped to TenantID and attributed to UserID.
type Actor struct {
	SessionID  uuid.UUID
	UserID     uuid.UUID
	TenantID   uuid.UUID
	Email      string
	FullName   string
	TenantSlug string
	TenantName string
	CSRFToken  string
	ExpiresAt  time.Time
}

func (a Actor) valid() bool {
	return a.UserID != uuid.Nil && a.TenantID != uuid.Nil
}

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext reports false when no actor is attached or the attached
// actor lacks a user or tenant id.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	v, ok := ctx.Value(actorKey).(Actor)
	if !ok || !v.valid() {
		return Actor{}, false
	}
	return v, true
}
