package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise-contract/ec-policies/internal/bundles"
	"github.com/enterprise-contract/ec-policies/internal/ir"
	"github.com/enterprise-contract/ec-policies/internal/rules"
)

func testOptions(t testing.TB, contentDir string) Options {
	return Options{
		ContentDir:      contentDir,
		AnnotationsFile: "rule_annotations.json",
		BundlesFile:     "acceptable_tekton_bundles.yml",
		SiteDir:         t.TempDir(),
		DataFile:        "data/policy_data.json",
		TemplateExt:     ".tmpl",
		PageExt:         ".adoc",
		Rules:           rules.Options{Sort: true},
	}
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestExtractPublish_EndToEnd(t *testing.T) {
	opts := testOptions(t, filepath.Join("testdata", "content"))
	ctx := context.Background()

	b, err := Extract(ctx, opts)
	require.NoError(t, err)
	assert.Len(t, b.Templates.Partials, 1)
	assert.Len(t, b.Templates.Pages, 2)
	assert.Empty(t, b.Warnings)

	// nothing is written before Publish
	_, err = os.Stat(filepath.Join(opts.SiteDir, "data"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	summary, err := Publish(ctx, b, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.RuleCount())
	assert.Equal(t, 2, summary.Bundles)
	assert.Len(t, summary.Namespaces, len(rules.List()))
	require.Len(t, summary.Pages, 2)

	release, err := os.ReadFile(filepath.Join(opts.SiteDir, "modules", "ROOT", "pages", "release_policy.adoc"))
	require.NoError(t, err)
	page := string(release)
	assert.True(t, strings.HasPrefix(page, "= Release Policy\n"), page)
	assert.Contains(t, page, "== Attestation type\n")
	assert.Contains(t, page, "[#attestation_type__known_attestation_type]\n=== Known attestation type found\n")
	assert.Contains(t, page, "* Rule type: FAILURE\n* Code: `attestation_type.known_attestation_type`\n* Collections: minimal, redhat\n")
	assert.NotContains(t, page, "Not documented")
	assert.NotContains(t, page, "expected_kind")
	// sorted by row within the package
	assert.Less(t, strings.Index(page, "pipelinerun_attestation_found"), strings.Index(page, "known_attestation_type"))

	bundlesPage, err := os.ReadFile(filepath.Join(opts.SiteDir, "modules", "ROOT", "pages", "acceptable_bundles.adoc"))
	require.NoError(t, err)
	assert.Contains(t, string(bundlesPage), "* 0.1 c3712257615d https://quay.io/repository/redhat-appstudio-tekton-catalog/task-buildah?tab=tags&tag=0.1\n")
	assert.Contains(t, string(bundlesPage), "* latest 5f9d6a8e7b https://registry.example.com/tasks/git-clone?tab=tags&tag=latest\n")
	assert.NotContains(t, string(bundlesPage), "build-templates-bundle")
	assert.Less(t, strings.Index(string(bundlesPage), "quay.io"), strings.Index(string(bundlesPage), "registry.example.com"))

	raw, err := os.ReadFile(summary.DataFile)
	require.NoError(t, err)
	var snap struct {
		Annotations    map[string]map[string][]ir.RuleEntry `json:"annotations"`
		Packages       map[string]map[string]ir.PackageInfo `json:"packages"`
		Collections    map[string][]ir.RuleEntry            `json:"collections"`
		CollectionInfo []ir.Collection                      `json:"collection_info"`
		Bundles        map[string][]map[string]any          `json:"acceptable_bundles"`
	}
	require.NoError(t, json.Unmarshal(raw, &snap))
	rel := snap.Annotations["release"]["policy.release.attestation_type"]
	require.Len(t, rel, 2)
	assert.Equal(t, map[string]any{"known_attestation_types": []any{"https://in-toto.io/Statement/v0.1"}}, rel[1].RuleData)
	assert.Equal(t, "Basic", snap.Packages["pipeline"]["policy.pipeline.basic"].Title)
	assert.Len(t, snap.Collections["minimal"], 2)
	require.Len(t, snap.CollectionInfo, 2)
	assert.Equal(t, "minimal", snap.CollectionInfo[0].Name)
	assert.Equal(t, "A small set of rules checking the image was built by a trusted pipeline.", snap.CollectionInfo[0].Description)
	assert.Len(t, snap.CollectionInfo[0].Rules, 2)
	assert.Equal(t, ir.Collection{Name: "redhat", Title: "Redhat", Rules: snap.Collections["redhat"]}, snap.CollectionInfo[1])
	assert.Equal(t, "2023-03-01T00:00:00Z", snap.Bundles["quay.io/redhat-appstudio-tekton-catalog/task-buildah"][0]["effective_on"])
}

func TestPublish_Once(t *testing.T) {
	opts := testOptions(t, filepath.Join("testdata", "content"))
	b, err := Extract(context.Background(), opts)
	require.NoError(t, err)
	_, err = Publish(context.Background(), b, opts)
	require.NoError(t, err)
	_, err = Publish(context.Background(), b, opts)
	require.ErrorIs(t, err, ErrAlreadyPublished)
}

func TestExtract_MissingAnnotationsFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Extract(context.Background(), testOptions(t, dir))
	require.ErrorIs(t, err, ErrDataFileNotFound)
	assert.Contains(t, err.Error(), "unable to find rule_annotations.json in "+dir)
}

func TestExtract_MissingBundlesFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{"data/rule_annotations.json": `{"annotations": []}`})
	_, err := Extract(context.Background(), testOptions(t, dir))
	require.ErrorIs(t, err, ErrDataFileNotFound)
	assert.Contains(t, err.Error(), "acceptable_tekton_bundles.yml")
}

func TestExtract_MalformedDigest(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"rule_annotations.json":         `{"annotations": []}`,
		"acceptable_tekton_bundles.yml": "task-bundles:\n  quay.io/a/b:\n    - tag: x\n      digest: nocolon\n",
	})
	_, err := Extract(context.Background(), testOptions(t, dir))
	require.ErrorIs(t, err, bundles.ErrMalformedDigest)
}

func TestExtract_StrictDuplicatePackage(t *testing.T) {
	pkg := `{"path":[{"type":"var","value":"data"},{"type":"string","value":"policy"},{"type":"string","value":"release"},{"type":"string","value":"foo"}],
	  "annotations":{"scope":"package","title":"Foo"},"location":{"file":"foo.rego","row":1}}`
	dir := writeFiles(t, map[string]string{
		"rule_annotations.json":         `{"annotations": [` + pkg + "," + pkg + `]}`,
		"acceptable_tekton_bundles.yml": "task-bundles: {}\n",
	})

	opts := testOptions(t, dir)
	b, err := Extract(context.Background(), opts)
	require.NoError(t, err)
	assert.Len(t, b.Warnings, 1)

	opts.Rules.Strict = true
	_, err = Extract(context.Background(), opts)
	require.ErrorIs(t, err, rules.ErrDuplicatePackage)
}

func TestExtract_FromRego(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"policy/release/foo.rego": `# METADATA
# title: Foo checks
package policy.release.foo

import rego.v1

# METADATA
# title: Bar holds
# custom:
#   short_name: bar
deny contains result if {
	false
	result := {}
}
`,
	})
	opts := testOptions(t, dir)
	opts.Rego = []string{filepath.Join(dir, "policy")}
	opts.BundlesFile = ""
	opts.Namespaces = []rules.Namespace{{Name: "Release", Qualifier: "release"}}

	b, err := Extract(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, b.Data.Namespaces, 1)
	entries, ok := b.Data.Annotations["release"].Lookup("policy.release.foo")
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, "foo.bar", entries[0].Code)
	assert.Equal(t, "Foo checks", entries[0].Package.Title)
	assert.Equal(t, opts.Rego[0], b.Source)
}

func BenchmarkExtractPublish(b *testing.B) {
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		opts := testOptions(b, filepath.Join("testdata", "content"))
		build, err := Extract(ctx, opts)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := Publish(ctx, build, opts); err != nil {
			b.Fatal(err)
		}
	}
}

func TestSelectNamespaces(t *testing.T) {
	none, err := SelectNamespaces(nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	got, err := SelectNamespaces([]string{"task", "Release"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "task", got[0].Qualifier)
	assert.Equal(t, "release", got[1].Qualifier)

	_, err = SelectNamespaces([]string{"release", "nope"})
	require.ErrorIs(t, err, ErrUnknownNamespace)
}

func TestExtract_SelectedNamespaceOnly(t *testing.T) {
	opts := testOptions(t, filepath.Join("testdata", "content"))
	var err error
	opts.Namespaces, err = SelectNamespaces([]string{"pipeline"})
	require.NoError(t, err)

	b, err := Extract(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, b.Data.Namespaces, 1)
	assert.Equal(t, "pipeline", b.Data.Namespaces[0].Qualifier)
	assert.Equal(t, []string{"policy.pipeline.basic"}, b.Data.Namespaces[0].Groups.Paths())
	assert.NotContains(t, b.Data.Annotations, "release")
}
