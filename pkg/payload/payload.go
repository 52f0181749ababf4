// Package payload defines the JSON documents a portal view fetches for a
// selection (distribution-plot bundles, factsheets, traces) and the
// availability gate that decides which display sections have data.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSchemaMismatch is returned when a fetched document does not have the
// shape its payload kind requires
var ErrSchemaMismatch = errors.New("payload schema mismatch")

// Kind names the shape of a fetched document
type Kind string

const (
	// KindBundle is a distribution-plot bundle: {values: [{id, ...}]}
	KindBundle Kind = "bundle"
	// KindFactsheet is a list of named facts: [{name, value, ...}] or {values: [...]}
	KindFactsheet Kind = "factsheet"
	// KindDocument is any JSON object, kept as-is (traces, electrophysiology records)
	KindDocument Kind = "document"
)

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	switch k {
	case KindBundle, KindFactsheet, KindDocument:
		return true
	}
	return false
}

// Payload is a decoded, validated document
type Payload struct {
	Kind      Kind            `json:"kind"`
	Bundle    *Bundle         `json:"bundle,omitempty"`
	Factsheet Factsheet       `json:"factsheet,omitempty"`
	Document  json.RawMessage `json:"document,omitempty"`
}

// Decode validates data against kind and returns the typed payload
func Decode(kind Kind, data []byte) (*Payload, error) {
	switch kind {
	case KindBundle:
		b, err := DecodeBundle(data)
		if err != nil {
			return nil, err
		}
		return &Payload{Kind: kind, Bundle: b}, nil
	case KindFactsheet:
		f, err := DecodeFactsheet(data)
		if err != nil {
			return nil, err
		}
		return &Payload{Kind: kind, Factsheet: f}, nil
	case KindDocument:
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
			return nil, fmt.Errorf("%w: document is not a JSON object", ErrSchemaMismatch)
		}
		return &Payload{Kind: kind, Document: json.RawMessage(trimmed)}, nil
	default:
		return nil, fmt.Errorf("unknown payload kind %q", kind)
	}
}

// Plot is one entry of a bundle
type Plot struct {
	ID          string            `json:"id"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Unit        string            `json:"unit,omitempty"`
	Bins        []float64         `json:"bins,omitempty"`
	Counts      []float64         `json:"counts,omitempty"`
	Value       json.RawMessage   `json:"value,omitempty"`
	Values      []json.RawMessage `json:"values,omitempty"`
	ValueMap    json.RawMessage   `json:"value_map,omitempty"`
}

// Bundle is a distribution-plot bundle
type Bundle struct {
	Values []Plot `json:"values"`
}

// DecodeBundle parses and validates a bundle. It needs a top-level values
// array whose entries each carry a non-empty string id.
func DecodeBundle(data []byte) (*Bundle, error) {
	var raw struct {
		Values []json.RawMessage `json:"values"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if raw.Values == nil {
		return nil, fmt.Errorf("%w: missing values array", ErrSchemaMismatch)
	}

	b := &Bundle{Values: make([]Plot, 0, len(raw.Values))}
	for i, rv := range raw.Values {
		var p Plot
		if err := json.Unmarshal(rv, &p); err != nil {
			return nil, fmt.Errorf("%w: values[%d]: %v", ErrSchemaMismatch, i, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%w: values[%d] has no id", ErrSchemaMismatch, i)
		}
		b.Values = append(b.Values, p)
	}
	return b, nil
}

// Fact is one entry of a factsheet
type Fact struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Unit        string            `json:"unit,omitempty"`
	Units       string            `json:"units,omitempty"`
	Value       json.RawMessage   `json:"value,omitempty"`
	Values      []json.RawMessage `json:"values,omitempty"`
	ValueMap    json.RawMessage   `json:"value_map,omitempty"`
}

// Factsheet is a list of facts
type Factsheet []Fact

// DecodeFactsheet accepts either a bare array of facts or {values: [...]}.
// Every fact needs a name.
func DecodeFactsheet(data []byte) (Factsheet, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty factsheet", ErrSchemaMismatch)
	}

	var facts Factsheet
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &facts); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
		}
	case '{':
		var wrapped struct {
			Values Factsheet `json:"values"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
		}
		if wrapped.Values == nil {
			return nil, fmt.Errorf("%w: missing values array", ErrSchemaMismatch)
		}
		facts = wrapped.Values
	default:
		return nil, fmt.Errorf("%w: factsheet must be an array or object", ErrSchemaMismatch)
	}

	for i, f := range facts {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: fact %d has no name", ErrSchemaMismatch, i)
		}
	}
	return facts, nil
}
