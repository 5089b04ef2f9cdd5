package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/enterprise-contract/ec-policies/internal/ir"
)

// annotationsFile is the layout written by WriteRecords. A bare list of
// records is accepted too.
type annotationsFile struct {
	Annotations []ir.Record `json:"annotations" yaml:"annotations"`
}

// LoadRecords reads a pre-extracted annotations data file, JSON or YAML.
// Records without annotations are dropped.
func LoadRecords(path string) ([]ir.Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read annotations: %w", err)
	}
	recs, err := DecodeRecords(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// DecodeRecords accepts a bare list of records or an object with an
// annotations list. Input starting with { or [ is read as JSON; yaml.v3
// rejects some JSON escapes such as \/ and surrogate pairs.
func DecodeRecords(b []byte) ([]ir.Record, error) {
	var recs []ir.Record
	var err error
	switch trimmed := bytes.TrimLeft(b, " \t\r\n\ufeff"); {
	case len(trimmed) == 0:
		return nil, nil
	case trimmed[0] == '{' || trimmed[0] == '[':
		recs, err = decodeJSONRecords(trimmed)
	default:
		recs, err = decodeYAMLRecords(b)
	}
	if err != nil {
		return nil, err
	}

	out := recs[:0]
	for _, r := range recs {
		if r.Annotations != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func decodeJSONRecords(b []byte) ([]ir.Record, error) {
	if b[0] == '[' {
		var recs []ir.Record
		if err := json.Unmarshal(b, &recs); err != nil {
			return nil, fmt.Errorf("parse annotations: %w", err)
		}
		return recs, nil
	}
	var f annotationsFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse annotations: %w", err)
	}
	return f.Annotations, nil
}

func decodeYAMLRecords(b []byte) ([]ir.Record, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return nil, fmt.Errorf("parse annotations: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	var recs []ir.Record
	switch node.Content[0].Kind {
	case yaml.SequenceNode:
		if err := node.Content[0].Decode(&recs); err != nil {
			return nil, fmt.Errorf("decode annotations: %w", err)
		}
	default:
		var f annotationsFile
		if err := node.Content[0].Decode(&f); err != nil {
			return nil, fmt.Errorf("decode annotations: %w", err)
		}
		recs = f.Annotations
	}
	return recs, nil
}

// WriteRecords writes records in the layout LoadRecords reads.
func WriteRecords(w io.Writer, recs []ir.Record) error {
	if recs == nil {
		recs = []ir.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(annotationsFile{Annotations: recs})
}
