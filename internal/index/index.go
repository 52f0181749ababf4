// Package index loads the static datasets (neuron models, morphologies,
// traces) that drive option lists, and answers option queries over them.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
)

// ErrMalformedRecord is returned when a dataset record lacks a required attribute
var ErrMalformedRecord = errors.New("malformed index record")

// Record is one flat dataset entry, e.g. {layer, mtype, etype, name}
type Record map[string]string

// Filter restricts a query to records whose Attr equals Value
type Filter struct {
	Attr  string
	Value string
}

// Index is an immutable, validated dataset. It is safe for concurrent use.
type Index struct {
	name    string
	records []Record
}

// Load decodes a JSON array of flat objects and validates that every record
// carries each required attribute as a non-empty string
func Load(name string, r io.Reader, required ...string) (*Index, error) {
	var raw []map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("index %s: decode: %w", name, err)
	}

	records := make([]Record, 0, len(raw))
	for i, obj := range raw {
		rec := make(Record, len(obj))
		for k, v := range obj {
			// non-string attributes are not selectable; keep strings only
			if s, ok := v.(string); ok {
				rec[k] = s
			}
		}
		for _, attr := range required {
			if rec[attr] == "" {
				return nil, fmt.Errorf("index %s: record %d: %w: missing %q", name, i, ErrMalformedRecord, attr)
			}
		}
		records = append(records, rec)
	}

	return &Index{name: name, records: records}, nil
}

// LoadFS loads an index from a file in fsys
func LoadFS(name string, fsys fs.FS, path string, required ...string) (*Index, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", name, err)
	}
	defer f.Close()
	return Load(name, f, required...)
}

// Name returns the dataset name
func (idx *Index) Name() string {
	return idx.name
}

// Len returns the number of records
func (idx *Index) Len() int {
	return len(idx.records)
}

// Options returns the distinct values of attr over the records matching every
// filter, sorted ascending in byte order. A filter with an empty value means
// an upstream selection is missing, so nothing is offered.
func (idx *Index) Options(attr string, filters ...Filter) []string {
	for _, f := range filters {
		if f.Value == "" {
			return []string{}
		}
	}

	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, rec := range idx.records {
		if !matches(rec, filters) {
			continue
		}
		v := rec[attr]
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	sort.Strings(out)
	return out
}

func matches(rec Record, filters []Filter) bool {
	for _, f := range filters {
		if rec[f.Attr] != f.Value {
			return false
		}
	}
	return true
}
