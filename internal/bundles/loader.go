package bundles

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TaskBundlesKey is the only manifest section the documentation uses;
// pipeline-bundles are not referenced by any policy.
const TaskBundlesKey = "task-bundles"

var ErrNoTaskBundles = errors.New("manifest has no " + TaskBundlesKey)

// Manifest is the acceptable bundles file, repositories in file order.
type Manifest struct {
	Repos []RepoRecords
}

type RepoRecords struct {
	Name    string
	Records []Record
}

// Record is one raw manifest entry. Fields other than tag and digest are kept
// in Extra untouched.
type Record struct {
	Tag    string
	Digest string
	Extra  map[string]any
}

func Load(path string) (Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read bundles manifest: %w", err)
	}
	m, err := Parse(b)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a manifest. The node API is used so that repository order and
// the literal text of tags (e.g. "1.0") survive.
func Parse(b []byte) (Manifest, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return Manifest{}, fmt.Errorf("parse yaml: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return Manifest{}, ErrNoTaskBundles
	}
	section := mappingValue(doc.Content[0], TaskBundlesKey)
	if section == nil || section.Kind != yaml.MappingNode {
		return Manifest{}, ErrNoTaskBundles
	}

	var m Manifest
	for i := 0; i+1 < len(section.Content); i += 2 {
		name, list := section.Content[i].Value, section.Content[i+1]
		repo := RepoRecords{Name: name}
		if list.Kind != yaml.SequenceNode {
			return Manifest{}, fmt.Errorf("repository %q: expected a list, line %d", name, list.Line)
		}
		for _, item := range list.Content {
			rec, err := decodeRecord(item)
			if err != nil {
				return Manifest{}, fmt.Errorf("repository %q: %w", name, err)
			}
			repo.Records = append(repo.Records, rec)
		}
		m.Repos = append(m.Repos, repo)
	}
	return m, nil
}

func decodeRecord(n *yaml.Node) (Record, error) {
	if n.Kind != yaml.MappingNode {
		return Record{}, fmt.Errorf("expected a mapping, line %d", n.Line)
	}
	var rec Record
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i].Value, n.Content[i+1]
		switch k {
		case "tag":
			rec.Tag = v.Value
		case "digest":
			rec.Digest = v.Value
		default:
			var val any
			if err := v.Decode(&val); err != nil {
				return Record{}, fmt.Errorf("field %q, line %d: %w", k, v.Line, err)
			}
			if rec.Extra == nil {
				rec.Extra = map[string]any{}
			}
			rec.Extra[k] = val
		}
	}
	return rec, nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}
