package reporting

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/enterprise-contract/ec-policies/internal/ir"
)

// Data is what every template is executed against.
type Data struct {
	Namespaces  []NamespaceData
	Annotations map[string]ir.Groups // qualifier -> groups
	Collections map[string][]ir.RuleEntry
	// CollectionInfo is Collections with titles and descriptions, ordered by title.
	CollectionInfo []ir.Collection
	Bundles        ir.Repos
}

// NamespaceData carries one namespace and its reshaped rules.
type NamespaceData struct {
	Name        string
	Qualifier   string
	Description string
	Prefix      string
	Groups      ir.Groups
}

// Namespace returns the namespace with the given qualifier, or nil. Meant
// for templates: {{ with .Namespace "release" }}.
func (d Data) Namespace(qualifier string) *NamespaceData {
	for i := range d.Namespaces {
		if d.Namespaces[i].Qualifier == qualifier {
			return &d.Namespaces[i]
		}
	}
	return nil
}

type snapshot struct {
	Annotations       map[string]ir.Groups                 `json:"annotations"`
	Packages          map[string]map[string]ir.PackageInfo `json:"packages"`
	Collections       map[string][]ir.RuleEntry            `json:"collections"`
	CollectionInfo    []ir.Collection                      `json:"collection_info"`
	AcceptableBundles ir.Repos                             `json:"acceptable_bundles"`
}

func newSnapshot(d Data) snapshot {
	s := snapshot{
		Annotations:       d.Annotations,
		Packages:          make(map[string]map[string]ir.PackageInfo, len(d.Annotations)),
		Collections:       d.Collections,
		CollectionInfo:    d.CollectionInfo,
		AcceptableBundles: d.Bundles,
	}
	if s.Annotations == nil {
		s.Annotations = map[string]ir.Groups{}
	}
	if s.Collections == nil {
		s.Collections = map[string][]ir.RuleEntry{}
	}
	if s.CollectionInfo == nil {
		s.CollectionInfo = []ir.Collection{}
	}
	if s.AcceptableBundles == nil {
		s.AcceptableBundles = ir.Repos{}
	}
	for q, g := range s.Annotations {
		s.Packages[q] = g.Packages()
	}
	return s
}

// WriteSnapshot writes the combined data as one JSON document at path.
func WriteSnapshot(path string, d Data) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(newSnapshot(d), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
