package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/enterprise-contract/ec-policies/internal/api"
	"github.com/enterprise-contract/ec-policies/internal/ir"
	"github.com/enterprise-contract/ec-policies/internal/parser"
	"github.com/enterprise-contract/ec-policies/internal/pipeline"
	"github.com/enterprise-contract/ec-policies/internal/reporting"
	"github.com/enterprise-contract/ec-policies/internal/rules"
	"github.com/enterprise-contract/ec-policies/internal/security"
	"github.com/enterprise-contract/ec-policies/internal/shared"
	"github.com/enterprise-contract/ec-policies/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "generate":
		generateCmd(os.Args[2:])
	case "inspect":
		inspectCmd(os.Args[2:])
	case "history":
		historyCmd(os.Args[2:])
	case "diff":
		diffCmd(os.Args[2:])
	case "serve":
		serveCmd(os.Args[2:])
	case "hash-password":
		hashPasswordCmd(os.Args[2:])
	case "version":
		fmt.Println("policydocs IR:", ir.Version)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `policydocs – policy documentation generator

Usage:
  policydocs generate [--content ./antora/docs] [--site ./build/site] [--rego ./policy ...] [--namespace release ...] [--strict] [--no-sort] [--db ./policydocs.db] [--out ./reports] [--config ./configs/policydocs.yaml]
  policydocs inspect  --rego <dir> [--out rule_annotations.json] [--config ./configs/policydocs.yaml]
  policydocs history  [--limit 20] [--db ./policydocs.db] [--config ./configs/policydocs.yaml]
  policydocs diff     --base <build-id> --head <build-id> [--out <reports-dir>] [--db ./policydocs.db] [--config ./configs/policydocs.yaml]
  policydocs serve    [--addr :8080] [--db ./policydocs.db] [--config ./configs/policydocs.yaml]
  policydocs hash-password <password>
  policydocs version
`)
}

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func loadConfig(cmd, path string) shared.Config {
	cfg, err := shared.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(2)
	}
	shared.InitLogger(cfg.Logging.Format, cfg.Logging.Level)
	applyRuleSettings(cfg)
	return cfg
}

func applyRuleSettings(cfg shared.Config) {
	s := rules.Settings{Disabled: map[string]bool{}}
	for _, q := range cfg.Rules.Disabled {
		s.Disabled[q] = true
	}
	for _, n := range cfg.Rules.Namespaces {
		s.Extra = append(s.Extra, rules.Namespace{Name: n.Name, Qualifier: n.Qualifier, Description: n.Description})
	}
	rules.SetSettings(s)
}

func generateCmd(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (optional)")
	contentDir := fs.String("content", "", "Content directory holding data files and templates")
	siteDir := fs.String("site", "", "Output directory for generated pages")
	var regoDirs stringList
	fs.Var(&regoDirs, "rego", "Extract annotations from this rego directory (repeatable)")
	var namespaces stringList
	fs.Var(&namespaces, "namespace", "Only document this namespace qualifier (repeatable)")
	strict := fs.Bool("strict", false, "Fail on duplicate package annotations")
	noSort := fs.Bool("no-sort", false, "Keep rules in annotation order")
	outDir := fs.String("out", "", "Output directory for build reports")
	dbPath := fs.String("db", "", "SQLite database path")
	noHistory := fs.Bool("no-history", false, "Do not record the build in the database")
	_ = fs.Parse(args)

	cfg := loadConfig("generate", *configPath)

	// precedence: flags > env > config > defaults
	opts := pipeline.OptionsFromConfig(cfg)
	if *contentDir != "" {
		opts.ContentDir = *contentDir
	}
	if *siteDir != "" {
		opts.SiteDir = *siteDir
	}
	if len(regoDirs) > 0 {
		opts.Rego = regoDirs
	}
	selected, err := pipeline.SelectNamespaces(namespaces)
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate:", err)
		os.Exit(2)
	}
	opts.Namespaces = selected
	if *strict {
		opts.Rules.Strict = true
	}
	if *noSort {
		opts.Rules.Sort = false
	}
	if *outDir == "" {
		*outDir = cfg.Reporting.OutDir
	}
	if *dbPath == "" {
		*dbPath = cfg.Database.DSN
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	build, err := pipeline.Extract(ctx, opts)
	if err != nil {
		slog.Error("extract failed", "err", err)
		os.Exit(1)
	}
	for _, w := range build.Warnings {
		slog.Warn("extract warning", "warning", w)
	}
	summary, err := pipeline.Publish(ctx, build, opts)
	if err != nil {
		slog.Error("publish failed", "build", build.ID, "err", err)
		os.Exit(1)
	}

	jsonPath, err := reporting.WriteJSON(summary.ID, *outDir, &summary)
	if err != nil {
		slog.Error("write json report", "err", err)
		os.Exit(1)
	}
	htmlPath, err := reporting.WriteHTML(summary.ID, *outDir, &summary)
	if err != nil {
		slog.Error("write html report", "err", err)
		os.Exit(1)
	}

	if !*noHistory {
		if err := recordBuild(cfg.Database.Driver, *dbPath, &summary); err != nil {
			slog.Error("db save build error", "err", err)
			os.Exit(1)
		}
	}

	slog.Info("generate complete",
		"build", summary.ID,
		"pages", len(summary.Pages),
		"rules", summary.RuleCount(),
		"json", jsonPath,
		"html", htmlPath,
	)
	fmt.Printf("Generate OK\n  Build: %s\n  Pages: %d\n  Rules: %d\n  Data: %s\n  JSON: %s\n  HTML: %s\n",
		summary.ID, len(summary.Pages), summary.RuleCount(), summary.DataFile, jsonPath, htmlPath)
}

func recordBuild(driver, dbPath string, b *ir.Build) error {
	db, err := openDB(driver, dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.SaveBuild(b)
}

func openDB(driver, dbPath string) (*storage.DB, error) {
	db, err := storage.Open(driver, dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.CreateSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (optional)")
	var regoDirs stringList
	fs.Var(&regoDirs, "rego", "Rego directory to extract annotations from (repeatable)")
	out := fs.String("out", "", "Write annotations here instead of stdout")
	_ = fs.Parse(args)

	cfg := loadConfig("inspect", *configPath)
	if len(regoDirs) == 0 {
		regoDirs = cfg.Content.Rego
	}
	if len(regoDirs) == 0 {
		fmt.Fprintln(os.Stderr, "inspect: --rego (or content.rego in config) is required")
		os.Exit(2)
	}

	recs, diags, err := parser.Parse(context.Background(), parser.Options{RegoVersion: cfg.Content.RegoVersion}, regoDirs...)
	if err != nil {
		slog.Error("parse failed", "err", err)
		os.Exit(1)
	}
	if len(diags.Warnings) > 0 {
		slog.Warn("parse warnings", "warnings", diags.Warnings)
	}

	w := os.Stdout
	if *out != "" {
		if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
			slog.Error("cannot create out dir", "err", err)
			os.Exit(1)
		}
		f, err := os.Create(*out)
		if err != nil {
			slog.Error("cannot create output", "err", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	if err := parser.WriteRecords(w, recs); err != nil {
		slog.Error("write annotations", "err", err)
		os.Exit(1)
	}
	slog.Info("inspect complete", "records", len(recs), "out", *out)
}

func historyCmd(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (optional)")
	limit := fs.Int("limit", 20, "Number of builds to list")
	dbPath := fs.String("db", "", "SQLite database path")
	_ = fs.Parse(args)

	cfg := loadConfig("history", *configPath)
	if *dbPath == "" {
		*dbPath = cfg.Database.DSN
	}
	db, err := openDB(cfg.Database.Driver, *dbPath)
	if err != nil {
		slog.Error("db open error", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rows, err := db.ListBuilds(*limit, 0)
	if err != nil {
		slog.Error("list builds", "err", err)
		os.Exit(1)
	}
	for _, r := range rows {
		fmt.Printf("%s  %s  rules=%d pages=%d bundles=%d  %s\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.Rules, r.Pages, r.Bundles, r.Source)
	}
}

func diffCmd(args []string) {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (optional)")
	base := fs.String("base", "", "Base build ID")
	head := fs.String("head", "", "Head build ID")
	outDir := fs.String("out", "", "Output directory")
	dbPath := fs.String("db", "", "SQLite database path")
	_ = fs.Parse(args)

	cfg := loadConfig("diff", *configPath)
	if *outDir == "" {
		*outDir = cfg.Reporting.OutDir
	}
	if *dbPath == "" {
		*dbPath = cfg.Database.DSN
	}
	if *base == "" || *head == "" {
		fmt.Fprintln(os.Stderr, "diff: --base and --head are required")
		os.Exit(2)
	}
	db, err := openDB(cfg.Database.Driver, *dbPath)
	if err != nil {
		slog.Error("db open error", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	var sets [2][]ir.RuleEntry
	for i, id := range []string{*base, *head} {
		ok, err := db.HasBuild(id)
		if err != nil {
			slog.Error("lookup build error", "build", id, "err", err)
			os.Exit(1)
		}
		if !ok {
			slog.Error("build not found", "build", id)
			os.Exit(1)
		}
		if sets[i], err = db.ListRules(id, ""); err != nil {
			slog.Error("list rules error", "build", id, "err", err)
			os.Exit(1)
		}
	}
	path, err := reporting.WriteDiffJSON(*base, *head, *outDir, sets[0], sets[1])
	if err != nil {
		slog.Error("write diff", "err", err)
		os.Exit(1)
	}
	fmt.Printf("Diff OK\n  %s\n", path)
}

func serveCmd(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (optional)")
	addr := fs.String("addr", "", "Listen address")
	dbPath := fs.String("db", "", "SQLite database path")
	_ = fs.Parse(args)

	cfg := loadConfig("serve", *configPath)
	if *addr == "" {
		*addr = cfg.Server.Addr
	}
	if *dbPath == "" {
		*dbPath = cfg.Database.DSN
	}
	db, err := openDB(cfg.Database.Driver, *dbPath)
	if err != nil {
		slog.Error("db open error", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	s := &api.Server{DB: db, Audit: db, Logger: slog.Default(), Users: cfg.Server.Users}
	srv := &http.Server{
		Addr:              *addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("serving", "addr", *addr, "auth", len(cfg.Server.Users) > 0)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

func hashPasswordCmd(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "hash-password: exactly one password argument is required")
		os.Exit(2)
	}
	h, err := security.HashPassword(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, "hash-password:", err)
		os.Exit(1)
	}
	fmt.Println(h)
}
