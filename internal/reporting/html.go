package reporting

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"

	"github.com/enterprise-contract/ec-policies/internal/ir"
)

// WriteHTML writes a one-page overview of the build to <outDir>/<buildID>.html.
func WriteHTML(buildID, outDir string, build *ir.Build) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outDir, buildID+".html")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	// Head + styles
	fmt.Fprintf(f, "<!doctype html><html><head><meta charset='utf-8'><title>%s</title>", html.EscapeString(buildID))
	fmt.Fprint(f, "<style>body{font-family:system-ui,Arial,sans-serif;padding:20px;line-height:1.4} table{border-collapse:collapse;margin:8px 0} td,th{border:1px solid #ddd;padding:6px} h1,h2{margin:6px 0 4px} .dim{color:#666} .mono{font-family:ui-monospace,Menlo,Consolas,monospace}</style>")
	fmt.Fprint(f, "</head><body>")

	// Title + summary
	fmt.Fprintf(f, "<h1>policydocs build – <span class='mono'>%s</span></h1>", html.EscapeString(buildID))
	fmt.Fprintf(f, "<p>Namespaces: %d &nbsp; Rules: %d &nbsp; Pages: %d &nbsp; Bundles: %d</p>",
		len(build.Namespaces), build.RuleCount(), len(build.Pages), build.Bundles)
	if !build.StartedAt.IsZero() {
		fmt.Fprintf(f, "<p class='dim'>Started %s", html.EscapeString(build.StartedAt.UTC().Format("2006-01-02 15:04:05 MST")))
		if build.Source != "" {
			fmt.Fprintf(f, " from <span class='mono'>%s</span>", html.EscapeString(build.Source))
		}
		fmt.Fprint(f, "</p>")
	}

	// Namespaces
	fmt.Fprint(f, "<h2>Namespaces</h2><table><tr><th>Namespace</th><th>Packages</th><th>Rules</th><th>Failures</th><th>Warnings</th></tr>")
	for _, ns := range build.Namespaces {
		var failures, warnings int
		for _, r := range ns.Rules {
			if r.WarningOrFailure == "warning" {
				warnings++
			} else {
				failures++
			}
		}
		fmt.Fprintf(f, "<tr><td>%s <span class='dim mono'>%s</span></td><td>%d</td><td>%d</td><td>%d</td><td>%d</td></tr>",
			html.EscapeString(ns.Name), html.EscapeString(ns.Qualifier), ns.Packages, len(ns.Rules), failures, warnings)
	}
	fmt.Fprint(f, "</table>")

	// Collections, largest first
	counts := map[string]int{}
	for _, ns := range build.Namespaces {
		for _, r := range ns.Rules {
			for _, c := range r.Collections {
				counts[c]++
			}
		}
	}
	if len(counts) > 0 {
		names := make([]string, 0, len(counts))
		for c := range counts {
			names = append(names, c)
		}
		sort.Slice(names, func(i, j int) bool {
			if counts[names[i]] == counts[names[j]] {
				return names[i] < names[j]
			}
			return counts[names[i]] > counts[names[j]]
		})
		fmt.Fprint(f, "<h2>Collections</h2><table><tr><th>Collection</th><th>Rules</th></tr>")
		for _, c := range names {
			fmt.Fprintf(f, "<tr><td class='mono'>%s</td><td>%d</td></tr>", html.EscapeString(c), counts[c])
		}
		fmt.Fprint(f, "</table>")
	}

	// Pages
	if len(build.Pages) > 0 {
		fmt.Fprint(f, "<h2>Pages</h2><table><tr><th>Page</th><th>Template</th><th>Bytes</th></tr>")
		for _, p := range build.Pages {
			fmt.Fprintf(f, "<tr><td class='mono'>%s</td><td class='mono'>%s</td><td>%d</td></tr>",
				html.EscapeString(p.Path), html.EscapeString(p.Template), p.Bytes)
		}
		fmt.Fprint(f, "</table>")
	} else {
		fmt.Fprint(f, "<h2>Pages</h2><p class='dim'>No page templates found.</p>")
	}

	// Warnings
	if len(build.Warnings) > 0 {
		fmt.Fprint(f, "<h2>Warnings</h2><ul>")
		for _, w := range build.Warnings {
			fmt.Fprintf(f, "<li>%s</li>", html.EscapeString(w))
		}
		fmt.Fprint(f, "</ul>")
	}

	fmt.Fprint(f, "</body></html>")
	return path, nil
}
