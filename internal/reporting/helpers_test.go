package reporting

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise-contract/ec-policies/internal/ir"
)

func TestFuncs(t *testing.T) {
	cases := []struct {
		tmpl string
		data any
		want string
	}{
		{`{{ toUpper "failure" }}`, nil, "FAILURE"},
		{`{{ sentenceCase "attestation type" }}`, nil, "Attestation type"},
		{`{{ toWords "known_attestation_type" }}`, nil, "known attestation type"},
		{`{{ toTitle "known_attestation_type" }}`, nil, "Known attestation type"},
		{`{{ repoUrl "quay.io/foo/bar" }}`, nil, "https://quay.io/repository/foo/bar"},
		{`{{ join . ", " }}`, []string{"a", "b"}, "a, b"},
		{`{{ isBuiltIn . }}`, ir.RuleEntry{Collections: []string{"builtin"}}, "true"},
		{`{{ range $k, $v := packages . }}{{ $k }}={{ $v.Title }}{{ end }}`,
			ir.Groups{{Path: "p.a", Rules: []ir.RuleEntry{{Package: ir.PackageInfo{Title: "A"}}}}}, "p.a=A"},
	}
	for _, tc := range cases {
		tmpl, err := template.New("t").Funcs(Funcs()).Parse(tc.tmpl)
		require.NoError(t, err, tc.tmpl)
		var buf bytes.Buffer
		require.NoError(t, tmpl.Execute(&buf, tc.data), tc.tmpl)
		assert.Equal(t, tc.want, buf.String(), tc.tmpl)
	}
}

// The templates shipped in docs/ must render against real data.
func TestShippedTemplatesRender(t *testing.T) {
	ts, err := DiscoverTemplates(os.DirFS(filepath.Join("..", "..", "docs")), ".tmpl")
	require.NoError(t, err)
	require.NotEmpty(t, ts.Pages)

	d := sampleData()
	d.Namespaces = []NamespaceData{{
		Name: "Release", Qualifier: "release", Prefix: "policy.release",
		Groups: d.Annotations["release"],
	}}
	d.Annotations["release"][1].Rules[0].RuleData = map[string]any{"allowed": []any{"x"}}

	out := t.TempDir()
	pages, err := Renderer{OutDir: out, TemplateExt: ".tmpl", PageExt: ".adoc"}.Render(context.Background(), ts, d)
	require.NoError(t, err)
	assert.Len(t, pages, len(ts.Pages))

	b, err := os.ReadFile(filepath.Join(out, "modules", "ROOT", "pages", "release_policy.adoc"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "= Release Policy")
	assert.Contains(t, string(b), "** `allowed`: `[x]`")

	b, err = os.ReadFile(filepath.Join(out, "modules", "ROOT", "pages", "collections.adoc"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "[#minimal]\n== Minimal\n")
	assert.Contains(t, string(b), "Just the basics.")

	b, err = os.ReadFile(filepath.Join(out, "modules", "ROOT", "pages", "acceptable_bundles.adoc"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "== quay.io/x/y")
}
