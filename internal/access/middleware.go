package access

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

type Middleware struct {
	logger *slog.Logger
}

func NewMiddleware(logger *slog.Logger) *Middleware {
	return &Middleware{logger: logger}
}

// Authenticate resolves the caller identity from the trusted headers and
// rejects requests that carry none.
func (m *Middleware) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(HeaderUserID)
		if raw == "" {
			m.writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		userID, err := uuid.Parse(raw)
		if err != nil {
			m.logger.Warn("malformed user id header", "value", raw)
			m.writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		role := Role(r.Header.Get(HeaderUserRole))
		switch role {
		case RoleAdmin, RoleCustomer:
		case "":
			role = RoleCustomer
		default:
			m.logger.Warn("unknown role header", "value", string(role))
			m.writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		ctx := WithIdentity(r.Context(), Identity{UserID: userID, Role: role})
		next(w, r.WithContext(ctx))
	}
}

// RequireAdmin gates a handler behind the admin role. It must run inside
// Authenticate.
func (m *Middleware) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		if !ok {
			m.writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !id.Admin() {
			m.writeError(w, http.StatusForbidden, "access denied")
			return
		}
		next(w, r)
	}
}

func (m *Middleware) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		m.logger.Error("failed to encode error response", "error", err)
	}
}
