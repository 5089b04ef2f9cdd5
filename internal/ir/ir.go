package ir

import "time"

const Version = "1.0"

// Build is the summary of one generator run, persisted and reported.
type Build struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Source    string    `json:"source,omitempty"`
	IRVersion string    `json:"ir_version,omitempty"`

	Namespaces []NamespaceSummary `json:"namespaces"`
	Pages      []Page             `json:"pages,omitempty"`
	Bundles    int                `json:"bundles"`
	DataFile   string             `json:"data_file,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"`
}

type NamespaceSummary struct {
	Qualifier string      `json:"qualifier"`
	Name      string      `json:"name"`
	Packages  int         `json:"packages"`
	Rules     []RuleEntry `json:"rules,omitempty"`
}

// RuleCount sums the rules over all namespaces.
func (b Build) RuleCount() int {
	n := 0
	for _, ns := range b.Namespaces {
		n += len(ns.Rules)
	}
	return n
}

// Page is one rendered document.
type Page struct {
	Template string `json:"template"`
	Path     string `json:"path"`
	Bytes    int    `json:"bytes"`
}

// Term is one element of an annotation path, e.g. {"type":"string","value":"release"}.
type Term struct {
	Type  string `json:"type" yaml:"type"`
	Value string `json:"value" yaml:"value"`
}

// Record is a flattened annotation as produced by static analysis of the rego sources.
type Record struct {
	Path        []Term       `json:"path" yaml:"path"`
	Annotations *Annotations `json:"annotations,omitempty" yaml:"annotations"`
	Location    Location     `json:"location" yaml:"location"`
}

type Annotations struct {
	Scope       string         `json:"scope" yaml:"scope"` // package|rule
	Title       string         `json:"title,omitempty" yaml:"title"`
	Description string         `json:"description,omitempty" yaml:"description"`
	Custom      map[string]any `json:"custom,omitempty" yaml:"custom"`
}

type Location struct {
	File string `json:"file" yaml:"file"`
	Row  int    `json:"row" yaml:"row"`
	Col  int    `json:"col,omitempty" yaml:"col"`
}

type PackageInfo struct {
	ShortName   string `json:"short_name"`
	FullName    string `json:"full_name"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type RuleEntry struct {
	FullPath         string         `json:"full_path"`
	PackagePath      string         `json:"package_path"`
	Package          PackageInfo    `json:"package_info"`
	ShortName        string         `json:"short_name"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Anchor           string         `json:"anchor"`
	Code             string         `json:"code"`
	RuleData         map[string]any `json:"rule_data,omitempty"`
	WarningOrFailure string         `json:"warning_or_failure"` // warning|failure
	FailureMsg       string         `json:"failure_msg,omitempty"`
	Solution         string         `json:"solution,omitempty"`
	EffectiveOn      string         `json:"effective_on,omitempty"`
	Collections      []string       `json:"collections,omitempty"`
	File             string         `json:"file"`
	Row              int            `json:"row"`
}

// Collection is a named set of rules, described by a
// policy.<ns>.collection.<name> package annotation when one exists.
type Collection struct {
	Name        string      `json:"name"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Rules       []RuleEntry `json:"rules"`
}
