package reporting

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/enterprise-contract/ec-policies/internal/ir"
)

type RuleDiff struct {
	BaseID  string        `json:"base_id"`
	HeadID  string        `json:"head_id"`
	Summary DiffSummary   `json:"summary"`
	New     []DiffRule    `json:"new"`
	Removed []DiffRule    `json:"removed"`
	Changed []DiffChanged `json:"changed"`
}

type DiffSummary struct {
	NewCount     int `json:"new"`
	RemovedCount int `json:"removed"`
	ChangedCount int `json:"changed"`
}

type DiffRule struct {
	Code             string `json:"code"`
	Package          string `json:"package"`
	Title            string `json:"title,omitempty"`
	WarningOrFailure string `json:"warning_or_failure,omitempty"`
	EffectiveOn      string `json:"effective_on,omitempty"`
}

type DiffChanged struct {
	Key     string   `json:"key"`
	Base    DiffRule `json:"base"`
	Head    DiffRule `json:"head"`
	Changed []string `json:"fields_changed"`
}

// DiffRules compares the rule inventories of two builds. Rules are matched
// on package path and short name.
func DiffRules(baseID, headID string, base, head []ir.RuleEntry) RuleDiff {
	bm := map[string]ir.RuleEntry{}
	hm := map[string]ir.RuleEntry{}
	for _, r := range base {
		bm[keyOf(r)] = r
	}
	for _, r := range head {
		hm[keyOf(r)] = r
	}

	added := []DiffRule{}
	removed := []DiffRule{}
	changed := []DiffChanged{}

	// additions & changes
	for k, hr := range hm {
		br, ok := bm[k]
		if !ok {
			added = append(added, asDiff(hr))
			continue
		}
		if fields := changedFields(br, hr); len(fields) > 0 {
			changed = append(changed, DiffChanged{Key: k, Base: asDiff(br), Head: asDiff(hr), Changed: fields})
		}
	}
	// removals
	for k, br := range bm {
		if _, ok := hm[k]; !ok {
			removed = append(removed, asDiff(br))
		}
	}

	sort.Slice(added, func(i, j int) bool { return added[i].Package+added[i].Code < added[j].Package+added[j].Code })
	sort.Slice(removed, func(i, j int) bool { return removed[i].Package+removed[i].Code < removed[j].Package+removed[j].Code })
	sort.Slice(changed, func(i, j int) bool { return changed[i].Key < changed[j].Key })

	return RuleDiff{
		BaseID: baseID, HeadID: headID,
		Summary: DiffSummary{
			NewCount:     len(added),
			RemovedCount: len(removed),
			ChangedCount: len(changed),
		},
		New:     added,
		Removed: removed,
		Changed: changed,
	}
}

// WriteDiffJSON writes DiffRules to <outDir>/diff_<base>__<head>.json.
func WriteDiffJSON(baseID, headID, outDir string, base, head []ir.RuleEntry) (string, error) {
	path := filepath.Join(outDir, "diff_"+baseID+"__"+headID+".json")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(DiffRules(baseID, headID, base, head), "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, b, 0o644)
}

func changedFields(b, h ir.RuleEntry) []string {
	var fields []string
	if strings.TrimSpace(b.Title) != strings.TrimSpace(h.Title) {
		fields = append(fields, "title")
	}
	if strings.TrimSpace(b.Description) != strings.TrimSpace(h.Description) {
		fields = append(fields, "description")
	}
	if b.WarningOrFailure != h.WarningOrFailure {
		fields = append(fields, "warning_or_failure")
	}
	if b.FailureMsg != h.FailureMsg {
		fields = append(fields, "failure_msg")
	}
	if b.Solution != h.Solution {
		fields = append(fields, "solution")
	}
	if b.EffectiveOn != h.EffectiveOn {
		fields = append(fields, "effective_on")
	}
	if !cmp.Equal(b.Collections, h.Collections) {
		fields = append(fields, "collections")
	}
	if !cmp.Equal(b.RuleData, h.RuleData) {
		fields = append(fields, "rule_data")
	}
	return fields
}

func keyOf(r ir.RuleEntry) string {
	return strings.ToLower(r.PackagePath) + "|" + strings.ToLower(r.ShortName)
}

func asDiff(r ir.RuleEntry) DiffRule {
	return DiffRule{
		Code:             r.Code,
		Package:          r.PackagePath,
		Title:            r.Title,
		WarningOrFailure: r.WarningOrFailure,
		EffectiveOn:      r.EffectiveOn,
	}
}
