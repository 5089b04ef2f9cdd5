package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise-contract/ec-policies/internal/ir"
)

func path(dotted string) []ir.Term {
	terms := []ir.Term{{Type: "var", Value: "data"}}
	for _, p := range strings.Split(dotted, ".") {
		terms = append(terms, ir.Term{Type: "string", Value: p})
	}
	return terms
}

func pkgRecord(dotted, title string, custom map[string]any) ir.Record {
	return ir.Record{
		Path:        path(dotted),
		Annotations: &ir.Annotations{Scope: "package", Title: title, Description: title + " description", Custom: custom},
		Location:    ir.Location{File: "policy/" + strings.ReplaceAll(dotted, ".", "/") + ".rego", Row: 1},
	}
}

func ruleRecord(dotted, short string, file string, row int, custom map[string]any) ir.Record {
	if custom == nil {
		custom = map[string]any{}
	}
	custom["short_name"] = short
	return ir.Record{
		Path:        path(dotted),
		Annotations: &ir.Annotations{Scope: "rule", Title: "Rule " + short, Description: "About " + short, Custom: custom},
		Location:    ir.Location{File: file, Row: row},
	}
}

func TestProcess_BuildsEntries(t *testing.T) {
	records := []ir.Record{
		pkgRecord("policy.release.attestation_type", "Attestation type", map[string]any{
			"known_attestation_type": map[string]any{"rule_data": map[string]any{"b": "pkg", "c": 3}},
		}),
		ruleRecord("policy.release.attestation_type.deny", "known_attestation_type", "policy/release/attestation_type.rego", 20, map[string]any{
			"failure_msg":  "Unknown attestation type '%s'",
			"effective_on": "2022-01-01T00:00:00Z",
			"solution":     "Use a known type",
			"collections":  []any{"minimal", "builtin"},
			"rule_data":    map[string]any{"a": 1, "b": "rule"},
		}),
		ruleRecord("policy.release.attestation_type.warn", "deprecated_type", "policy/release/attestation_type.rego", 40, nil),
	}

	groups, diags, err := Process(records, "policy.release", Options{})
	require.NoError(t, err)
	assert.Empty(t, diags.Warnings)
	require.Equal(t, []string{"policy.release.attestation_type"}, groups.Paths())

	rules, ok := groups.Lookup("policy.release.attestation_type")
	require.True(t, ok)
	require.Len(t, rules, 2)

	want := ir.RuleEntry{
		FullPath:    "policy.release.attestation_type.deny",
		PackagePath: "policy.release.attestation_type",
		Package: ir.PackageInfo{
			ShortName:   "attestation_type",
			FullName:    "policy.release.attestation_type",
			Title:       "Attestation type",
			Description: "Attestation type description",
		},
		ShortName:        "known_attestation_type",
		Title:            "Rule known_attestation_type",
		Description:      "About known_attestation_type",
		Anchor:           "attestation_type__known_attestation_type",
		Code:             "attestation_type.known_attestation_type",
		RuleData:         map[string]any{"a": 1, "b": "pkg", "c": 3},
		WarningOrFailure: "failure",
		FailureMsg:       "Unknown attestation type '%s'",
		Solution:         "Use a known type",
		EffectiveOn:      "2022-01-01T00:00:00Z",
		Collections:      []string{"minimal", "builtin"},
		File:             "policy/release/attestation_type.rego",
		Row:              20,
	}
	if diff := cmp.Diff(want, rules[0]); diff != "" {
		t.Fatalf("entry mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "warning", rules[1].WarningOrFailure)
	assert.Nil(t, rules[1].RuleData)
}

func TestProcess_PackagePathKeys(t *testing.T) {
	// Groups are keyed by the package path without the "data" root.
	records := []ir.Record{
		ruleRecord("policy.release.foo.deny", "a", "f.rego", 1, nil),
	}
	groups, _, err := Process(records, "policy.release", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"policy.release.foo"}, groups.Paths())
}

func TestProcess_DefaultPackageTitle(t *testing.T) {
	records := []ir.Record{
		pkgRecord("policy.release.foo", "", nil),
		ruleRecord("policy.release.foo.deny", "bar", "policy/release/foo.rego", 10, nil),
		// no package annotation at all
		ruleRecord("policy.release.some_thing.deny", "baz", "policy/release/some_thing.rego", 10, nil),
	}
	groups, _, err := Process(records, "policy.release", Options{})
	require.NoError(t, err)

	foo, _ := groups.Lookup("policy.release.foo")
	require.Len(t, foo, 1)
	assert.Equal(t, "Foo", foo[0].Package.Title)

	st, _ := groups.Lookup("policy.release.some_thing")
	require.Len(t, st, 1)
	assert.Equal(t, "Some thing", st[0].Package.Title)
	assert.Equal(t, "", st[0].Package.Description)
}

func TestProcess_NamespaceFilter(t *testing.T) {
	records := []ir.Record{
		ruleRecord("policy.release.foo.deny", "a", "r.rego", 1, nil),
		ruleRecord("policy.pipeline.bar.deny", "b", "p.rego", 1, nil),
		ruleRecord("policy.release_extra.baz.deny", "c", "x.rego", 1, nil),
	}
	groups, _, err := Process(records, "policy.release", Options{})
	require.NoError(t, err)
	all := groups.Rules()
	require.Len(t, all, 1)
	for _, e := range all {
		assert.True(t, strings.HasPrefix(e.PackagePath, "policy.release."), e.PackagePath)
	}
}

func TestProcess_SkipsNonTerminalRules(t *testing.T) {
	records := []ir.Record{
		ruleRecord("policy.release.foo.deny", "a", "r.rego", 1, nil),
		ruleRecord("policy.release.foo._helper", "h", "r.rego", 5, nil),
		ruleRecord("policy.release.foo.violation", "v", "r.rego", 9, nil),
		{Path: path("policy.release.foo.deny")}, // no annotations
	}
	groups, _, err := Process(records, "policy.release", Options{})
	require.NoError(t, err)
	assert.Len(t, groups.Rules(), 1)
}

func TestProcess_MissingFieldsAreZero(t *testing.T) {
	rec := ir.Record{
		Path:        path("policy.release.foo.deny"),
		Annotations: &ir.Annotations{Scope: "rule"},
	}
	groups, _, err := Process([]ir.Record{rec}, "policy.release", Options{})
	require.NoError(t, err)
	rules := groups.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, "", rules[0].ShortName)
	assert.Equal(t, "", rules[0].FailureMsg)
	assert.Equal(t, "", rules[0].EffectiveOn)
	assert.Nil(t, rules[0].RuleData)
}

func TestProcess_DuplicatePackage(t *testing.T) {
	records := []ir.Record{
		pkgRecord("policy.release.foo", "First", nil),
		pkgRecord("policy.release.foo", "Second", nil),
		ruleRecord("policy.release.foo.deny", "a", "r.rego", 1, nil),
	}

	groups, diags, err := Process(records, "policy.release", Options{})
	require.NoError(t, err)
	require.Len(t, diags.Warnings, 1)
	assert.Contains(t, diags.Warnings[0], "policy.release.foo")
	assert.Equal(t, "Second", groups.Rules()[0].Package.Title)

	_, _, err = Process(records, "policy.release", Options{Strict: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicatePackage))
}

func TestProcess_SortAndGroup(t *testing.T) {
	records := []ir.Record{
		pkgRecord("policy.release.zeta", "Zeta", nil),
		pkgRecord("policy.release.alpha", "Alpha", nil),
		ruleRecord("policy.release.zeta.deny", "z1", "b.rego", 30, nil),
		ruleRecord("policy.release.alpha.deny", "a2", "b.rego", 10, nil),
		ruleRecord("policy.release.alpha.warn", "a1", "a.rego", 50, nil),
		ruleRecord("policy.release.alpha.deny", "a3", "b.rego", 5, nil),
		ruleRecord("policy.release.zeta.warn", "z0", "a.rego", 1, nil),
	}

	unsorted, _, err := Process(records, "policy.release", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"policy.release.zeta", "policy.release.alpha"}, unsorted.Paths())
	assert.Equal(t, []string{"a2", "a1", "a3"}, shortNames(unsorted[1].Rules))

	sorted, _, err := Process(records, "policy.release", Options{Sort: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"policy.release.alpha", "policy.release.zeta"}, sorted.Paths())
	assert.Equal(t, []string{"a1", "a3", "a2"}, shortNames(sorted[0].Rules))
	assert.Equal(t, []string{"z0", "z1"}, shortNames(sorted[1].Rules))

	// grouping is total: nothing dropped, nothing duplicated
	assert.ElementsMatch(t, shortNames(unsorted.Rules()), shortNames(sorted.Rules()))
}

func TestProcess_SortKeepsTiesInInputOrder(t *testing.T) {
	records := []ir.Record{
		pkgRecord("policy.release.alpha", "Alpha", nil),
		ruleRecord("policy.release.alpha.deny", "second_row", "a.rego", 20, nil),
		ruleRecord("policy.release.alpha.deny", "tie_one", "a.rego", 10, nil),
		ruleRecord("policy.release.alpha.warn", "tie_two", "a.rego", 10, nil),
		ruleRecord("policy.release.alpha.deny", "tie_three", "a.rego", 10, nil),
	}

	groups, _, err := Process(records, "policy.release", Options{Sort: true})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"tie_one", "tie_two", "tie_three", "second_row"}, shortNames(groups[0].Rules))

	// reversing the tied records reverses them in the output
	records[2], records[4] = records[4], records[2]
	groups, _, err = Process(records, "policy.release", Options{Sort: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"tie_three", "tie_two", "tie_one", "second_row"}, shortNames(groups[0].Rules))
}

func TestMergeRuleData_DoesNotMutateInputs(t *testing.T) {
	rule := map[string]any{"a": 1, "b": 2}
	pkg := map[string]any{"b": 20}
	got := MergeRuleData(rule, pkg)
	assert.Equal(t, map[string]any{"a": 1, "b": 20}, got)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, rule)
	assert.Nil(t, MergeRuleData(nil, nil))
	assert.Equal(t, map[string]any{"x": true}, MergeRuleData(nil, map[string]any{"x": true}))
}

func shortNames(es []ir.RuleEntry) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.ShortName)
	}
	return out
}
