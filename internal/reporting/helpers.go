package reporting

import (
	"strings"
	"text/template"

	"github.com/enterprise-contract/ec-policies/internal/bundles"
	"github.com/enterprise-contract/ec-policies/internal/ir"
	"github.com/enterprise-contract/ec-policies/internal/rules"
	"github.com/enterprise-contract/ec-policies/internal/shared"
)

// Funcs are the helpers available to every template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"toUpper":      shared.ToUpper,
		"sentenceCase": shared.SentenceCase,
		"toWords":      shared.ToWords,
		"toTitle":      shared.ToTitle,
		"repoUrl":      bundles.RepoURL,
		"isBuiltIn":    rules.IsBuiltIn,
		"join":         strings.Join,
		"packages":     func(g ir.Groups) map[string]ir.PackageInfo { return g.Packages() },
	}
}
