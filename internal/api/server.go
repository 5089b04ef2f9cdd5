package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/enterprise-contract/ec-policies/internal/ir"
	"github.com/enterprise-contract/ec-policies/internal/reporting"
	"github.com/enterprise-contract/ec-policies/internal/storage"
)

// Store is the minimal contract the API needs.
type Store interface {
	ListBuilds(limit, offset int) ([]storage.BuildRow, error)
	LoadBuild(id string) (ir.Build, error)
	LoadLatestBuild() (ir.Build, error)
	ListRules(buildID, namespace string) ([]ir.RuleEntry, error)
	HasBuild(id string) (bool, error)
}

// AuditLog records API access and lists it back. Optional.
type AuditLog interface {
	LogAudit(username, action, resource string, meta map[string]any) error
	ListAudit(limit int) ([]storage.AuditEntry, error)
}

type Server struct {
	DB     Store
	Audit  AuditLog
	Logger *slog.Logger
	// Users maps user name to bcrypt hash. Empty disables authentication.
	Users          map[string]string
	AllowedOrigins []string
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	withCORS := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if o := s.pickCORSOrigin(r); o != "" {
				w.Header().Set("Access-Control-Allow-Origin", o)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			h(w, r)
		}
	}

	// Health
	mux.HandleFunc("GET /api/v1/health", withCORS(s.handleHealth))

	// Me
	mux.HandleFunc("GET /api/v1/me", withCORS(withAuth(s, s.handleMe, "me")))

	// Builds
	mux.HandleFunc("GET /api/v1/builds", withCORS(withAuth(s, s.handleListBuilds, "builds:list")))
	mux.HandleFunc("GET /api/v1/builds/latest", withCORS(withAuth(s, s.handleGetLatest, "builds:get")))
	mux.HandleFunc("GET /api/v1/builds/{id}", withCORS(withAuth(s, s.handleGetBuild, "builds:get")))
	mux.HandleFunc("GET /api/v1/builds/{id}/rules", withCORS(withAuth(s, s.handleListRules, "rules:list")))
	mux.HandleFunc("GET /api/v1/builds/{id}/diff", withCORS(withAuth(s, s.handleDiff, "builds:diff")))

	// Namespaces
	mux.HandleFunc("GET /api/v1/namespaces", withCORS(withAuth(s, s.handleNamespaces, "namespaces")))
	mux.HandleFunc("GET /api/v1/namespaces/{qualifier}", withCORS(withAuth(s, s.handleGetNamespace, "namespaces")))

	// Audit
	mux.HandleFunc("GET /api/v1/audit", withCORS(withAuth(s, s.handleListAudit, "audit:list")))

	// Fallback 404
	mux.HandleFunc("/", withCORS(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	return mux
}

func (s *Server) pickCORSOrigin(r *http.Request) string {
	if len(s.AllowedOrigins) == 0 {
		return ""
	}
	origin := r.Header.Get("Origin")
	for _, ao := range s.AllowedOrigins {
		if ao == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(origin, ao) {
			return origin
		}
	}
	return ""
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := clamp(parseInt(q.Get("limit"), 20), 1, 200)
	offset := max(parseInt(q.Get("offset"), 0), 0)

	rows, err := s.DB.ListBuilds(limit, offset)
	if err != nil {
		s.err(w, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}
	if rows == nil {
		rows = []storage.BuildRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": rows, "limit": limit, "offset": offset,
	})
}

func (s *Server) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	build, err := s.DB.LoadLatestBuild()
	if err != nil {
		s.notFoundOr500(w, err, "no builds")
		return
	}
	writeJSON(w, http.StatusOK, build)
}

func (s *Server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	build, err := s.DB.LoadBuild(r.PathValue("id"))
	if err != nil {
		s.notFoundOr500(w, err, "build not found")
		return
	}
	writeJSON(w, http.StatusOK, build)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ns := strings.TrimSpace(r.URL.Query().Get("namespace"))
	if !s.requireBuild(w, id) {
		return
	}
	items, err := s.DB.ListRules(id, ns)
	if err != nil {
		s.err(w, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}
	if items == nil {
		items = []ir.RuleEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"build_id": id, "namespace": ns, "items": items, "count": len(items),
	})
}

// GET /api/v1/builds/{id}/diff?base=<id>
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	head := r.PathValue("id")
	base := strings.TrimSpace(r.URL.Query().Get("base"))
	if base == "" {
		s.err(w, http.StatusBadRequest, "base is required")
		return
	}
	var sets [2][]ir.RuleEntry
	for i, id := range []string{base, head} {
		if !s.requireBuild(w, id) {
			return
		}
		rules, err := s.DB.ListRules(id, "")
		if err != nil {
			s.err(w, http.StatusInternalServerError, "db error: "+err.Error())
			return
		}
		sets[i] = rules
	}
	writeJSON(w, http.StatusOK, reporting.DiffRules(base, head, sets[0], sets[1]))
}

// GET /api/v1/audit?limit=50
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	limit := clamp(parseInt(r.URL.Query().Get("limit"), 50), 1, 500)
	items := []storage.AuditEntry{}
	if s.Audit != nil {
		rows, err := s.Audit.ListAudit(limit)
		if err != nil {
			s.err(w, http.StatusInternalServerError, "db error: "+err.Error())
			return
		}
		if rows != nil {
			items = rows
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "limit": limit})
}

// requireBuild writes a 404 or 500 and returns false when id is not a
// stored build.
func (s *Server) requireBuild(w http.ResponseWriter, id string) bool {
	ok, err := s.DB.HasBuild(id)
	if err != nil {
		s.err(w, http.StatusInternalServerError, "db error: "+err.Error())
		return false
	}
	if !ok {
		s.err(w, http.StatusNotFound, "build not found: "+id)
		return false
	}
	return true
}

func (s *Server) notFoundOr500(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, storage.ErrNotFound) {
		s.err(w, http.StatusNotFound, msg)
		return
	}
	s.err(w, http.StatusInternalServerError, "db error: "+err.Error())
}

func (s *Server) err(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func clamp(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
