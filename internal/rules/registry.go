package rules

import (
	"sort"
	"strings"
)

// Namespace is a documented group of policy packages, e.g. policy.release.
type Namespace struct {
	Name        string
	Qualifier   string
	Description string
}

// Prefix is the dotted path every package of the namespace starts with.
func (n Namespace) Prefix() string {
	return "policy." + n.Qualifier
}

var (
	registry []Namespace
	nsIndex  = map[string]int{} // lower(qualifier) -> index
)

func Register(n Namespace) {
	key := strings.ToLower(strings.TrimSpace(n.Qualifier))
	if idx, ok := nsIndex[key]; ok {
		registry[idx] = n
		return
	}
	registry = append(registry, n)
	nsIndex[key] = len(registry) - 1
}

// List returns the enabled namespaces ordered by qualifier.
func List() []Namespace {
	out := make([]Namespace, 0, len(registry))
	for _, n := range registry {
		if rsettings.Disabled[strings.ToLower(n.Qualifier)] {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Qualifier < out[j].Qualifier })
	return out
}

// Get returns a namespace by qualifier if registered.
func Get(qualifier string) (Namespace, bool) {
	idx, ok := nsIndex[strings.ToLower(strings.TrimSpace(qualifier))]
	if !ok || idx < 0 || idx >= len(registry) {
		return Namespace{}, false
	}
	return registry[idx], true
}

func init() {
	Register(Namespace{
		Name:        "Release",
		Qualifier:   "release",
		Description: "These rules are applied to pipeline run attestations associated with container images built by Konflux.",
	})
	Register(Namespace{
		Name:        "Pipeline",
		Qualifier:   "pipeline",
		Description: "These rules are applied to Tekton pipeline definitions.",
	})
	Register(Namespace{
		Name:        "Task",
		Qualifier:   "task",
		Description: "These rules are applied to Tekton task definitions.",
	})
	Register(Namespace{
		Name:        "Build Task",
		Qualifier:   "build_task",
		Description: "These rules are applied to Tekton build task definitions.",
	})
	Register(Namespace{
		Name:        "StepAction",
		Qualifier:   "stepaction",
		Description: "These rules are applied to Tekton StepAction definitions.",
	})
}
