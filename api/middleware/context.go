package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID   contextKey = "user_id"
	ctxRole     contextKey = "actor_role"
	ctxVendorID contextKey = "vendor_id"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.ActorRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.ActorRole); ok {
		return v
	}
	return ""
}

func VendorIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxVendorID).(string); ok {
		return v
	}
	return ""
}

// ActorFromContext returns the authenticated caller, or false when the request
// carries no parseable user.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	userID, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return Actor{}, false
	}
	actor := Actor{UserID: userID, Role: RoleFromContext(ctx)}
	if raw := VendorIDFromContext(ctx); raw != "" {
		if vendorID, err := uuid.Parse(raw); err == nil {
			actor.VendorID = &vendorID
		}
	}
	return actor, true
}

// Actor is the caller identity read from the bearer token.
type Actor struct {
	UserID   uuid.UUID
	Role     enums.ActorRole
	VendorID *uuid.UUID
}

// IsAdmin reports whether the actor may perform admin operations.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.ActorRoleAdmin
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithRole injects the actor role into the context.
func WithRole(ctx context.Context, role enums.ActorRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}

// WithVendorID injects the vendor identifier into the context for downstream handlers.
func WithVendorID(ctx context.Context, vendorID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxVendorID, vendorID)
}
