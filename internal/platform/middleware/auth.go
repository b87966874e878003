package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "eventgate/pkg/domain-errors"
	"eventgate/pkg/platform/httputil"
)

// Staff is the authenticated operator behind a request.
type Staff struct {
	AccountID string
	Email     string
	Role      string
}

// StaffValidator validates a bearer token. Satisfied by jwttoken.Adapter.
type StaffValidator interface {
	ValidateToken(tokenString string) (*Staff, error)
}

type staffKey struct{}

func WithStaff(ctx context.Context, staff *Staff) context.Context {
	return context.WithValue(ctx, staffKey{}, staff)
}

// GetStaff returns the operator set by RequireStaff.
func GetStaff(ctx context.Context) (*Staff, bool) {
	s, ok := ctx.Value(staffKey{}).(*Staff)
	return s, ok && s != nil
}

// RequireStaff rejects requests without a valid staff bearer token.
func RequireStaff(validator StaffValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			staff, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithStaff(ctx, staff)))
		})
	}
}

// RequireRole must be mounted after RequireStaff.
func RequireRole(role string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			staff, ok := GetStaff(ctx)
			if !ok || staff.Role != role {
				logger.WarnContext(ctx, "forbidden - role required",
					"role", role,
					"request_id", GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, role+" role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
