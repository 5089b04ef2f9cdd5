package reporting

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/enterprise-contract/ec-policies/internal/ir"
)

// Template is a template file found in the content tree.
type Template struct {
	Path   string // slash separated, relative to the content root
	Name   string // partial name, or the path for pages
	Source string
}

type TemplateSet struct {
	Partials []Template
	Pages    []Template
}

// DiscoverTemplates finds templates in any templates/ directory of fsys.
// Files named _foo<ext> are partials registered as "foo"; files named
// foo<ext> are pages. Names are lower case letters and underscores.
func DiscoverTemplates(fsys fs.FS, ext string) (TemplateSet, error) {
	q := regexp.QuoteMeta(ext)
	pageRe := regexp.MustCompile(`(^|/)templates/[a-z][a-z_]*` + q + `$`)
	partialRe := regexp.MustCompile(`(^|/)templates/_[a-z_]*` + q + `$`)

	var ts TemplateSet
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		isPage, isPartial := pageRe.MatchString(p), partialRe.MatchString(p)
		if !isPage && !isPartial {
			return nil
		}
		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		t := Template{Path: p, Name: p, Source: string(b)}
		if isPartial {
			t.Name = strings.TrimPrefix(strings.TrimSuffix(path.Base(p), ext), "_")
			ts.Partials = append(ts.Partials, t)
		} else {
			ts.Pages = append(ts.Pages, t)
		}
		return nil
	})
	return ts, err
}

// PagePath maps modules/ROOT/templates/foo.tmpl to modules/ROOT/pages/foo.adoc.
func PagePath(templatePath, ext, pageExt string) string {
	p := templatePath
	if strings.HasPrefix(p, "templates/") {
		p = "pages/" + strings.TrimPrefix(p, "templates/")
	} else {
		p = strings.Replace(p, "/templates/", "/pages/", 1)
	}
	return strings.TrimSuffix(p, ext) + pageExt
}

// Renderer writes one page per page template below OutDir.
type Renderer struct {
	OutDir      string
	TemplateExt string
	PageExt     string
}

// Render registers all partials, then executes every page against the same
// data. Every page gets all the data whether it wants it or not.
func (r Renderer) Render(ctx context.Context, ts TemplateSet, data any) ([]ir.Page, error) {
	base := template.New("").Funcs(Funcs())
	for _, p := range ts.Partials {
		if _, err := base.New(p.Name).Parse(p.Source); err != nil {
			return nil, fmt.Errorf("partial %s: %w", p.Path, err)
		}
	}

	var pages []ir.Page
	for _, p := range ts.Pages {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		t, err := base.Clone()
		if err != nil {
			return pages, err
		}
		if _, err := t.New(p.Name).Parse(p.Source); err != nil {
			return pages, fmt.Errorf("template %s: %w", p.Path, err)
		}
		var buf bytes.Buffer
		if err := t.ExecuteTemplate(&buf, p.Name, data); err != nil {
			return pages, fmt.Errorf("render %s: %w", p.Path, err)
		}

		rel := PagePath(p.Path, r.TemplateExt, r.PageExt)
		out := filepath.Join(r.OutDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return pages, err
		}
		if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
			return pages, err
		}
		pages = append(pages, ir.Page{Template: p.Path, Path: rel, Bytes: buf.Len()})
	}
	return pages, nil
}
