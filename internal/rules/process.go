package rules

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/enterprise-contract/ec-policies/internal/ir"
	"github.com/enterprise-contract/ec-policies/internal/shared"
)

const (
	scopePackage = "package"
	scopeRule    = "rule"
)

// Process reshapes flat annotation records into rule entries grouped by
// package path. Only records under namespace are considered, and only rules
// whose path ends in deny or warn are documented.
func Process(records []ir.Record, namespace string, opts Options) (ir.Groups, Diagnostics, error) {
	var diags Diagnostics

	// First pass collects the package annotations.
	pkgs := map[string]*ir.Annotations{}
	for _, r := range records {
		if r.Annotations == nil || r.Annotations.Scope != scopePackage {
			continue
		}
		full := dottedPath(r.Path, 1, len(r.Path))
		if !inNamespace(full, namespace) {
			continue
		}
		if _, dup := pkgs[full]; dup {
			msg := fmt.Sprintf("package %q annotated more than once (%s:%d); using the later one", full, r.Location.File, r.Location.Row)
			if opts.Strict {
				return nil, diags, fmt.Errorf("%w: %s at %s:%d", ErrDuplicatePackage, full, r.Location.File, r.Location.Row)
			}
			slog.Warn("duplicate package annotation", "package", full, "file", r.Location.File, "row", r.Location.Row)
			diags.warn(msg)
		}
		pkgs[full] = r.Annotations
	}

	// Second pass builds an entry per documented rule.
	var out []ir.RuleEntry
	for _, r := range records {
		if r.Annotations == nil || r.Annotations.Scope != scopeRule {
			continue
		}
		full := dottedPath(r.Path, 1, len(r.Path))
		if !inNamespace(full, namespace) {
			continue
		}
		kind := ruleKind(full)
		if kind == "" {
			// helper rules and anything that isn't a top level rule
			continue
		}

		pkgPath := dottedPath(r.Path, 1, len(r.Path)-1)
		pkg, ok := pkgs[pkgPath]
		if !ok {
			slog.Debug("rule without package annotation", "package", pkgPath, "file", r.Location.File)
			pkg = &ir.Annotations{}
		}
		out = append(out, newEntry(r, full, pkgPath, kind, pkg))
	}

	if opts.Sort {
		SortEntries(out)
	}
	return Group(out), diags, nil
}

func newEntry(r ir.Record, full, pkgPath, kind string, pkg *ir.Annotations) ir.RuleEntry {
	a := r.Annotations
	shortName := stringField(a.Custom, "short_name")
	pkgShort := lastSegment(pkgPath)

	info := ir.PackageInfo{
		ShortName:   pkgShort,
		FullName:    pkgPath,
		Title:       pkg.Title,
		Description: pkg.Description,
	}
	if info.Title == "" {
		info.Title = shared.ToTitle(pkgShort)
	}

	return ir.RuleEntry{
		FullPath:         full,
		PackagePath:      pkgPath,
		Package:          info,
		ShortName:        shortName,
		Title:            a.Title,
		Description:      a.Description,
		Anchor:           pkgShort + "__" + shortName,
		Code:             pkgShort + "." + shortName,
		RuleData:         MergeRuleData(mapField(a.Custom, "rule_data"), packageRuleData(pkg, shortName)),
		WarningOrFailure: kind,
		FailureMsg:       stringField(a.Custom, "failure_msg"),
		Solution:         stringField(a.Custom, "solution"),
		EffectiveOn:      stringField(a.Custom, "effective_on"),
		Collections:      stringsField(a.Custom, "collections"),
		File:             r.Location.File,
		Row:              r.Location.Row,
	}
}

// MergeRuleData returns a copy of ruleData overridden key by key with
// pkgData. Package-level values win. Nil when both are empty.
func MergeRuleData(ruleData, pkgData map[string]any) map[string]any {
	if len(ruleData) == 0 && len(pkgData) == 0 {
		return ruleData
	}
	out := make(map[string]any, len(ruleData)+len(pkgData))
	for k, v := range ruleData {
		out[k] = v
	}
	for k, v := range pkgData {
		out[k] = v
	}
	return out
}

// packageRuleData reads custom.<shortName>.rule_data from a package annotation.
func packageRuleData(pkg *ir.Annotations, shortName string) map[string]any {
	if pkg == nil || shortName == "" {
		return nil
	}
	perRule := mapField(pkg.Custom, shortName)
	return mapField(perRule, "rule_data")
}

// Group splits entries by package path. Group order is the first appearance
// of each path; entries keep their relative order.
func Group(entries []ir.RuleEntry) ir.Groups {
	var groups ir.Groups
	idx := map[string]int{}
	for _, e := range entries {
		i, ok := idx[e.PackagePath]
		if !ok {
			groups = append(groups, ir.Group{Path: e.PackagePath, Package: e.Package})
			i = len(groups) - 1
			idx[e.PackagePath] = i
		}
		groups[i].Rules = append(groups[i].Rules, e)
	}
	return groups
}

// SortEntries orders by package title, then file, then row. Equal keys keep
// their input order.
func SortEntries(entries []ir.RuleEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Package.Title != b.Package.Title {
			return a.Package.Title < b.Package.Title
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Row < b.Row
	})
}

func ruleKind(full string) string {
	switch {
	case strings.HasSuffix(full, ".deny"):
		return "failure"
	case strings.HasSuffix(full, ".warn"):
		return "warning"
	}
	return ""
}

func inNamespace(full, namespace string) bool {
	if namespace == "" {
		return true
	}
	return full == namespace || strings.HasPrefix(full, namespace+".")
}

// dottedPath joins path[from:to], skipping the leading "data" term by
// convention of the callers.
func dottedPath(path []ir.Term, from, to int) string {
	if from < 0 {
		from = 0
	}
	if to > len(path) {
		to = len(path)
	}
	if from >= to {
		return ""
	}
	parts := make([]string, 0, to-from)
	for _, t := range path[from:to] {
		parts = append(parts, t.Value)
	}
	return strings.Join(parts, ".")
}

func lastSegment(dotted string) string {
	if i := strings.LastIndexByte(dotted, '.'); i != -1 {
		return dotted[i+1:]
	}
	return dotted
}
