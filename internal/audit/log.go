package audit

import (
	"context"
	"errors"
	"strings"

	"sunnahaudio.org/internal/auth"
	"sunnahaudio.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes a security audit entry enriched with request and
// principal context. Events cover the mutations an operator needs a trail
// for: grant create/revoke, status changes, credential changes, and
// authentication failures.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	logger := obs.Logger()
	entry := logger.Info().
		Str("type", "audit").
		Str("event", event)
	if rid := requestIDFromContext(ctx); rid != "" {
		entry = entry.Str("request_id", rid)
	}
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		entry = entry.
			Str("actor_account_id", principal.AccountID).
			Str("actor_role", principal.Role.String())
	}
	if len(fields) > 0 {
		entry = entry.Fields(fields)
	}
	entry.Send()
	return nil
}
