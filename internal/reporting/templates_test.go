package reporting

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise-contract/ec-policies/internal/ir"
)

func TestDiscoverTemplates(t *testing.T) {
	fsys := fstest.MapFS{
		"modules/ROOT/templates/release_policy.tmpl": {Data: []byte("page")},
		"modules/ROOT/templates/_rule.tmpl":          {Data: []byte("partial")},
		"modules/ROOT/templates/_rule_data.tmpl":     {Data: []byte("partial")},
		"modules/ROOT/templates/Upper.tmpl":          {Data: []byte("ignored")},
		"modules/ROOT/templates/notes.txt":           {Data: []byte("ignored")},
		"modules/ROOT/pages/index.adoc":              {Data: []byte("ignored")},
		"templates/top.tmpl":                         {Data: []byte("page")},
	}

	ts, err := DiscoverTemplates(fsys, ".tmpl")
	require.NoError(t, err)

	var partials, pages []string
	for _, p := range ts.Partials {
		partials = append(partials, p.Name)
	}
	for _, p := range ts.Pages {
		pages = append(pages, p.Path)
	}
	assert.ElementsMatch(t, []string{"rule", "rule_data"}, partials)
	assert.ElementsMatch(t, []string{"modules/ROOT/templates/release_policy.tmpl", "templates/top.tmpl"}, pages)
}

func TestPagePath(t *testing.T) {
	assert.Equal(t, "modules/ROOT/pages/release_policy.adoc", PagePath("modules/ROOT/templates/release_policy.tmpl", ".tmpl", ".adoc"))
	assert.Equal(t, "pages/top.adoc", PagePath("templates/top.tmpl", ".tmpl", ".adoc"))
}

func TestRender_PartialsAndHelpers(t *testing.T) {
	ts := TemplateSet{
		Partials: []Template{{Path: "m/templates/_rule.tmpl", Name: "rule", Source: `* {{ .Code }}: {{ toUpper .Title }}{{ "\n" }}`}},
		Pages: []Template{{
			Path:   "m/templates/release.tmpl",
			Name:   "m/templates/release.tmpl",
			Source: `{{ range .Groups }}== {{ sentenceCase .Package.Title }}{{ "\n" }}{{ range .Rules }}{{ template "rule" . }}{{ end }}{{ end }}`,
		}},
	}
	data := NamespaceData{Groups: ir.Groups{{
		Path:    "policy.release.foo",
		Package: ir.PackageInfo{Title: "foo checks"},
		Rules:   []ir.RuleEntry{{Code: "foo.bar", Title: "Bar"}},
	}}}

	out := t.TempDir()
	pages, err := Renderer{OutDir: out, TemplateExt: ".tmpl", PageExt: ".adoc"}.Render(context.Background(), ts, data)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "m/pages/release.adoc", pages[0].Path)

	b, err := os.ReadFile(filepath.Join(out, "m", "pages", "release.adoc"))
	require.NoError(t, err)
	assert.Equal(t, "== Foo checks\n* foo.bar: BAR\n", string(b))
	assert.Equal(t, len(b), pages[0].Bytes)
}

func TestRender_BadPartial(t *testing.T) {
	ts := TemplateSet{Partials: []Template{{Path: "templates/_x.tmpl", Name: "x", Source: "{{ .Foo "}}}
	_, err := Renderer{OutDir: t.TempDir(), TemplateExt: ".tmpl", PageExt: ".adoc"}.Render(context.Background(), ts, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "templates/_x.tmpl")
}

func TestRender_Cancelled(t *testing.T) {
	ts := TemplateSet{Pages: []Template{{Path: "templates/a.tmpl", Name: "templates/a.tmpl", Source: "a"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Renderer{OutDir: t.TempDir(), TemplateExt: ".tmpl", PageExt: ".adoc"}.Render(ctx, ts, nil)
	require.ErrorIs(t, err, context.Canceled)
}
