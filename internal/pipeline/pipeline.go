package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/enterprise-contract/ec-policies/internal/bundles"
	"github.com/enterprise-contract/ec-policies/internal/ir"
	"github.com/enterprise-contract/ec-policies/internal/parser"
	"github.com/enterprise-contract/ec-policies/internal/reporting"
	"github.com/enterprise-contract/ec-policies/internal/rules"
	"github.com/enterprise-contract/ec-policies/internal/shared"
)

var (
	// ErrDataFileNotFound means a required input file is not in the content tree.
	ErrDataFileNotFound = errors.New("data file not found")
	// ErrAlreadyPublished is returned when Publish is called twice on one Build.
	ErrAlreadyPublished = errors.New("build already published")
	// ErrUnknownNamespace means a requested qualifier is not registered.
	ErrUnknownNamespace = errors.New("unknown namespace")
)

type Options struct {
	ContentDir      string
	AnnotationsFile string   // basename looked up below ContentDir
	BundlesFile     string   // basename looked up below ContentDir; empty skips bundles
	Rego            []string // when set, annotations are extracted from these dirs instead
	RegoVersion     string

	SiteDir     string
	DataFile    string // snapshot path relative to SiteDir
	TemplateExt string
	PageExt     string

	Rules rules.Options
	// Namespaces to document; nil means every enabled namespace in the registry.
	Namespaces []rules.Namespace
}

func (o Options) contentDir() string {
	if o.ContentDir == "" {
		return "."
	}
	return o.ContentDir
}

// OptionsFromConfig maps the loaded configuration onto pipeline options.
func OptionsFromConfig(cfg shared.Config) Options {
	return Options{
		ContentDir:      cfg.Content.Dir,
		AnnotationsFile: cfg.Content.AnnotationsFile,
		BundlesFile:     cfg.Content.BundlesFile,
		Rego:            cfg.Content.Rego,
		RegoVersion:     cfg.Content.RegoVersion,
		SiteDir:         cfg.Site.OutDir,
		DataFile:        cfg.Site.DataFile,
		TemplateExt:     cfg.Site.TemplateExt,
		PageExt:         cfg.Site.PageExt,
		Rules:           rules.Options{Sort: cfg.Rules.Sort, Strict: cfg.Rules.Strict},
	}
}

// SelectNamespaces resolves qualifiers against the registry, keeping their
// order. No qualifiers means nil, i.e. every enabled namespace.
func SelectNamespaces(qualifiers []string) ([]rules.Namespace, error) {
	if len(qualifiers) == 0 {
		return nil, nil
	}
	out := make([]rules.Namespace, 0, len(qualifiers))
	for _, q := range qualifiers {
		ns, ok := rules.Get(q)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNamespace, q)
		}
		out = append(out, ns)
	}
	return out, nil
}

// Build is the state of one generator run. Extract fills it, Publish
// consumes it. It is never shared between runs.
type Build struct {
	ID        string
	StartedAt time.Time
	Source    string // annotations file or rego dirs the records came from
	Data      reporting.Data
	Templates reporting.TemplateSet
	Warnings  []string

	published bool
}

func newBuildID(t time.Time) string {
	return "build_" + t.UTC().Format("20060102T150405.000Z")
}

// Extract loads and reshapes every input. It writes nothing.
func Extract(ctx context.Context, opts Options) (*Build, error) {
	started := time.Now()
	b := &Build{ID: newBuildID(started), StartedAt: started}

	records, err := loadRecords(ctx, opts, b)
	if err != nil {
		return nil, err
	}

	namespaces := opts.Namespaces
	if namespaces == nil {
		namespaces = rules.List()
	}
	b.Data.Annotations = make(map[string]ir.Groups, len(namespaces))
	var all []ir.Groups
	for _, ns := range namespaces {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		groups, diags, err := rules.Process(records, ns.Prefix(), opts.Rules)
		if err != nil {
			return nil, fmt.Errorf("namespace %s: %w", ns.Qualifier, err)
		}
		b.Warnings = append(b.Warnings, diags.Warnings...)
		b.Data.Namespaces = append(b.Data.Namespaces, reporting.NamespaceData{
			Name:        ns.Name,
			Qualifier:   ns.Qualifier,
			Description: ns.Description,
			Prefix:      ns.Prefix(),
			Groups:      groups,
		})
		b.Data.Annotations[ns.Qualifier] = groups
		all = append(all, groups)
		slog.Debug("namespace reshaped", "namespace", ns.Qualifier, "packages", len(groups), "rules", len(groups.Rules()))
	}
	b.Data.Collections = rules.Collections(all...)
	b.Data.CollectionInfo = rules.DescribeCollections(records, b.Data.Collections)

	if opts.BundlesFile != "" {
		path, err := findDataFile(opts.contentDir(), opts.BundlesFile)
		if err != nil {
			return nil, err
		}
		m, err := bundles.Load(path)
		if err != nil {
			return nil, err
		}
		if b.Data.Bundles, err = bundles.Process(m); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	if b.Templates, err = reporting.DiscoverTemplates(os.DirFS(opts.contentDir()), opts.TemplateExt); err != nil {
		return nil, fmt.Errorf("discover templates: %w", err)
	}

	slog.Info("extract done",
		"build", b.ID,
		"namespaces", len(b.Data.Namespaces),
		"bundles", b.Data.Bundles.EntryCount(),
		"partials", len(b.Templates.Partials),
		"pages", len(b.Templates.Pages),
		"warnings", len(b.Warnings),
	)
	return b, nil
}

func loadRecords(ctx context.Context, opts Options, b *Build) ([]ir.Record, error) {
	if len(opts.Rego) > 0 {
		b.Source = strings.Join(opts.Rego, ",")
		recs, diags, err := parser.Parse(ctx, parser.Options{RegoVersion: opts.RegoVersion}, opts.Rego...)
		if err != nil {
			return nil, err
		}
		b.Warnings = append(b.Warnings, diags.Warnings...)
		return recs, nil
	}

	path, err := findDataFile(opts.contentDir(), opts.AnnotationsFile)
	if err != nil {
		return nil, err
	}
	b.Source = path
	return parser.LoadRecords(path)
}

// findDataFile returns the first file named name below dir, in lexical walk
// order. An absolute name is used as is.
func findDataFile(dir, name string) (string, error) {
	notFound := fmt.Errorf("%w: unable to find %s in %s", ErrDataFileNotFound, name, dir)
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", notFound
		}
		return name, nil
	}

	var found string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == name {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("search %s: %w", dir, err)
	}
	if found == "" {
		return "", notFound
	}
	return found, nil
}

// Publish renders every page, then writes the data snapshot. A Build can
// be published once.
func Publish(ctx context.Context, b *Build, opts Options) (ir.Build, error) {
	if b.published {
		return ir.Build{}, ErrAlreadyPublished
	}
	b.published = true

	summary := ir.Build{
		ID:        b.ID,
		StartedAt: b.StartedAt,
		Source:    b.Source,
		IRVersion: ir.Version,
		Bundles:   b.Data.Bundles.EntryCount(),
		Warnings:  b.Warnings,
	}
	for _, ns := range b.Data.Namespaces {
		summary.Namespaces = append(summary.Namespaces, ir.NamespaceSummary{
			Qualifier: ns.Qualifier,
			Name:      ns.Name,
			Packages:  len(ns.Groups),
			Rules:     ns.Groups.Rules(),
		})
	}

	r := reporting.Renderer{OutDir: opts.SiteDir, TemplateExt: opts.TemplateExt, PageExt: opts.PageExt}
	pages, err := r.Render(ctx, b.Templates, b.Data)
	summary.Pages = pages
	if err != nil {
		return summary, err
	}

	if opts.DataFile != "" {
		path := filepath.Join(opts.SiteDir, filepath.FromSlash(opts.DataFile))
		if err := reporting.WriteSnapshot(path, b.Data); err != nil {
			return summary, fmt.Errorf("write snapshot: %w", err)
		}
		summary.DataFile = path
	}

	slog.Info("publish done", "build", b.ID, "pages", len(pages), "rules", summary.RuleCount(), "data_file", summary.DataFile)
	return summary, nil
}
