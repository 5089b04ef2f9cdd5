package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"golang.org/x/sync/errgroup"

	"github.com/enterprise-contract/ec-policies/internal/ir"
)

type Diagnostics struct {
	Warnings []string
}

type Options struct {
	// RegoVersion is "v0" or "v1" (default).
	RegoVersion string
}

func (o Options) parserOptions() ast.ParserOptions {
	v := ast.RegoV1
	if strings.EqualFold(o.RegoVersion, "v0") {
		v = ast.RegoV0
	}
	return ast.ParserOptions{ProcessAnnotation: true, RegoVersion: v}
}

// Parse extracts the annotations of every *.rego file below dirs, skipping
// *_test.rego. Files are parsed in parallel; records come back in lexical
// file order, and in source order within a file.
func Parse(ctx context.Context, opts Options, dirs ...string) ([]ir.Record, Diagnostics, error) {
	var diags Diagnostics
	var files []string
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isPolicyFile(d.Name()) {
				return nil
			}
			files = append(files, p)
			return nil
		})
		if err != nil {
			return nil, diags, fmt.Errorf("walk %s: %w", dir, err)
		}
	}
	if len(files) == 0 {
		diags.Warnings = append(diags.Warnings, "no rego files found in "+strings.Join(dirs, ", "))
		return nil, diags, nil
	}

	popts := opts.parserOptions()
	results := make([][]ir.Record, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			recs, err := parseFile(f, popts)
			if err != nil {
				return err
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, diags, err
	}

	var out []ir.Record
	for i, recs := range results {
		if len(recs) == 0 {
			diags.Warnings = append(diags.Warnings, "no annotations in "+files[i])
		}
		out = append(out, recs...)
	}
	return out, diags, nil
}

func isPolicyFile(name string) bool {
	return strings.HasSuffix(name, ".rego") && !strings.HasSuffix(name, "_test.rego")
}

func parseFile(path string, popts ast.ParserOptions) ([]ir.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseSource(filepath.ToSlash(path), data, popts)
}

func parseSource(name string, data []byte, popts ast.ParserOptions) ([]ir.Record, error) {
	mod, err := ast.ParseModuleWithOpts(name, string(data), popts)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	as, errs := ast.BuildAnnotationSet([]*ast.Module{mod})
	if len(errs) > 0 {
		return nil, fmt.Errorf("annotations in %s: %w", name, errs)
	}

	var out []ir.Record
	for _, ref := range as.Flatten() {
		if ref.Annotations == nil {
			continue
		}
		out = append(out, toRecord(ref))
	}
	return out, nil
}

func toRecord(ref *ast.AnnotationsRef) ir.Record {
	rec := ir.Record{
		Path: make([]ir.Term, 0, len(ref.Path)),
		Annotations: &ir.Annotations{
			Scope:       ref.Annotations.Scope,
			Title:       ref.Annotations.Title,
			Description: ref.Annotations.Description,
			Custom:      ref.Annotations.Custom,
		},
	}
	for _, t := range ref.Path {
		rec.Path = append(rec.Path, toTerm(t))
	}
	loc := ref.Location
	if loc == nil {
		loc = ref.Annotations.Location
	}
	if loc != nil {
		rec.Location = ir.Location{File: loc.File, Row: loc.Row, Col: loc.Col}
	}
	return rec
}

func toTerm(t *ast.Term) ir.Term {
	switch v := t.Value.(type) {
	case ast.String:
		return ir.Term{Type: "string", Value: string(v)}
	case ast.Var:
		return ir.Term{Type: "var", Value: string(v)}
	default:
		return ir.Term{Type: ast.ValueName(v), Value: v.String()}
	}
}
