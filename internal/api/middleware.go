package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/enterprise-contract/ec-policies/internal/security"
)

type ctxKey int

const userKey ctxKey = 1

// withAuth checks HTTP basic credentials against the configured bcrypt
// hashes, then records the access. With no users configured every request
// passes as anonymous.
func withAuth(s *Server, next http.HandlerFunc, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := ""
		if len(s.Users) > 0 {
			name, pw, ok := r.BasicAuth()
			if !security.CheckUser(s.Users, name, pw) || !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="policydocs"`)
				s.err(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			user = name
		}
		s.logger().Info("api access", "user", user, "action", action, "method", r.Method, "path", r.URL.Path)
		if s.Audit != nil {
			if err := s.Audit.LogAudit(user, action, r.URL.Path, map[string]any{"method": r.Method}); err != nil {
				s.logger().Warn("audit write failed", "err", err)
			}
		}
		ctx := context.WithValue(r.Context(), userKey, user)
		next(w, r.WithContext(ctx))
	}
}

func userFromCtx(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(userKey).(string)
	return u, ok && u != ""
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := userFromCtx(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"username": u, "authenticated": ok})
}
