package ir

import (
	"bytes"
	"encoding/json"
)

// Group holds the rules of one package, in output order.
type Group struct {
	Path    string      `json:"path"`
	Package PackageInfo `json:"package_info"`
	Rules   []RuleEntry `json:"rules"`
}

// Groups maps package path to rules. Slice order is the order in which each
// package path was first seen; it marshals to a JSON object keeping that order.
type Groups []Group

func (g Groups) Lookup(path string) ([]RuleEntry, bool) {
	for _, grp := range g {
		if grp.Path == path {
			return grp.Rules, true
		}
	}
	return nil, false
}

func (g Groups) Paths() []string {
	out := make([]string, 0, len(g))
	for _, grp := range g {
		out = append(out, grp.Path)
	}
	return out
}

// Rules flattens all groups back into one list.
func (g Groups) Rules() []RuleEntry {
	var out []RuleEntry
	for _, grp := range g {
		out = append(out, grp.Rules...)
	}
	return out
}

// Packages returns the package info of the first rule of every group.
func (g Groups) Packages() map[string]PackageInfo {
	out := make(map[string]PackageInfo, len(g))
	for _, grp := range g {
		if len(grp.Rules) > 0 {
			out[grp.Path] = grp.Rules[0].Package
		}
	}
	return out
}

func (g Groups) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, grp := range g {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(grp.Path)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		rules := grp.Rules
		if rules == nil {
			rules = []RuleEntry{}
		}
		v, err := json.Marshal(rules)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
