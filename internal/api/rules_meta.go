package api

import (
	"net/http"

	"github.com/enterprise-contract/ec-policies/internal/rules"
)

type namespaceView struct {
	Name        string `json:"name"`
	Qualifier   string `json:"qualifier"`
	Prefix      string `json:"prefix"`
	Description string `json:"description"`
}

func newNamespaceView(ns rules.Namespace) namespaceView {
	return namespaceView{
		Name: ns.Name, Qualifier: ns.Qualifier,
		Prefix: ns.Prefix(), Description: ns.Description,
	}
}

// GET /api/v1/namespaces
func (s *Server) handleNamespaces(w http.ResponseWriter, r *http.Request) {
	out := []namespaceView{}
	for _, ns := range rules.List() {
		out = append(out, newNamespaceView(ns))
	}
	// stable order already guaranteed by rules.List()
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "count": len(out)})
}

// GET /api/v1/namespaces/{qualifier}
func (s *Server) handleGetNamespace(w http.ResponseWriter, r *http.Request) {
	ns, ok := rules.Get(r.PathValue("qualifier"))
	if !ok {
		s.err(w, http.StatusNotFound, "namespace not found")
		return
	}
	writeJSON(w, http.StatusOK, newNamespaceView(ns))
}
