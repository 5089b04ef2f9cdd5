package rules

import (
	"sort"
	"strings"

	"github.com/enterprise-contract/ec-policies/internal/ir"
	"github.com/enterprise-contract/ec-policies/internal/shared"
)

const builtinCollection = "builtin"

// Collections lists the rules of every collection named in the rules'
// custom.collections, ordered by package title and then rule title.
func Collections(groups ...ir.Groups) map[string][]ir.RuleEntry {
	out := map[string][]ir.RuleEntry{}
	for _, g := range groups {
		for _, e := range g.Rules() {
			for _, c := range e.Collections {
				out[c] = append(out[c], e)
			}
		}
	}
	for _, rs := range out {
		sort.SliceStable(rs, func(i, j int) bool {
			if rs[i].Package.Title != rs[j].Package.Title {
				return rs[i].Package.Title < rs[j].Package.Title
			}
			return rs[i].Title < rs[j].Title
		})
	}
	return out
}

// DescribeCollections pairs each collection with the title and description
// of its policy.<ns>.collection.<name> package annotation. Collections only
// named by rules get a title derived from the name. The first annotation of
// a name wins. Ordered by title, then name.
func DescribeCollections(records []ir.Record, byName map[string][]ir.RuleEntry) []ir.Collection {
	seen := map[string]int{}
	var out []ir.Collection
	for _, r := range records {
		if r.Annotations == nil || r.Annotations.Scope != scopePackage {
			continue
		}
		full := dottedPath(r.Path, 1, len(r.Path))
		if !strings.Contains(full, ".collection.") {
			continue
		}
		name := lastSegment(full)
		if _, dup := seen[name]; dup {
			continue
		}
		title := r.Annotations.Title
		if title == "" {
			title = shared.ToTitle(name)
		}
		seen[name] = len(out)
		out = append(out, ir.Collection{Name: name, Title: title, Description: r.Annotations.Description})
	}
	for name := range byName {
		if _, ok := seen[name]; !ok {
			seen[name] = len(out)
			out = append(out, ir.Collection{Name: name, Title: shared.ToTitle(name)})
		}
	}
	for i := range out {
		out[i].Rules = byName[out[i].Name]
		if out[i].Rules == nil {
			out[i].Rules = []ir.RuleEntry{}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// IsBuiltIn reports whether the rule belongs to the builtin collection.
func IsBuiltIn(e ir.RuleEntry) bool {
	for _, c := range e.Collections {
		if c == builtinCollection {
			return true
		}
	}
	return false
}
