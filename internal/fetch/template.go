package fetch

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/hippocampushub/hubportal/pkg/selection"
)

var (
	// ErrNotReady is returned when expanding a template whose fields are not all set
	ErrNotReady = errors.New("template fields not set")

	// ErrUnknownDerivation is returned when a template names an unregistered derivation
	ErrUnknownDerivation = errors.New("unknown derivation")
)

// Derivation transforms a field value before it is placed into a path
type Derivation func(value string) (string, error)

// derivations are available to templates as {field|name}
var derivations = map[string]Derivation{
	"morphology": MorphologyName,
}

func lookupDerivation(name string) (Derivation, bool) {
	fn, ok := derivations[name]
	return fn, ok
}

var modelMorphologyRe = regexp.MustCompile(`^[a-zA-Z0-9]+_[a-zA-Z0-9]+_[a-zA-Z0-9]+_(.+)_[a-zA-Z0-9]+$`)

// MorphologyName extracts the morphology name from a model instance name,
// e.g. CA1_int_bAC_011127HP1_20190329115610 -> 011127HP1
func MorphologyName(instance string) (string, error) {
	m := modelMorphologyRe.FindStringSubmatch(instance)
	if m == nil {
		return "", fmt.Errorf("morphology: %q is not a model instance name", instance)
	}
	return m[1], nil
}

type segment struct {
	literal string
	field   string
	derive  string
}

// Template is a resource path with {field} and {field|derivation}
// placeholders, e.g. "model-info/{instance}/etype_factsheet.json"
type Template struct {
	raw      string
	segments []segment
	fields   []string
}

// ParseTemplate parses a path template
func ParseTemplate(raw string) (*Template, error) {
	t := &Template{raw: raw}
	seen := make(map[string]bool)

	rest := raw
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.IndexByte(rest, '}') >= 0 {
				return nil, fmt.Errorf("template %q: unmatched '}'", raw)
			}
			t.segments = append(t.segments, segment{literal: rest})
			break
		}
		if strings.IndexByte(rest[:open], '}') >= 0 {
			return nil, fmt.Errorf("template %q: unmatched '}'", raw)
		}
		if open > 0 {
			t.segments = append(t.segments, segment{literal: rest[:open]})
		}

		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, fmt.Errorf("template %q: unterminated placeholder", raw)
		}
		body := rest[open+1 : open+end]
		rest = rest[open+end+1:]

		field, derive, _ := strings.Cut(body, "|")
		field = strings.TrimSpace(field)
		derive = strings.TrimSpace(derive)
		if field == "" || strings.ContainsAny(field, "{") {
			return nil, fmt.Errorf("template %q: empty placeholder", raw)
		}
		if derive != "" {
			if _, ok := lookupDerivation(derive); !ok {
				return nil, fmt.Errorf("template %q: %w: %s", raw, ErrUnknownDerivation, derive)
			}
		}

		t.segments = append(t.segments, segment{field: field, derive: derive})
		if !seen[field] {
			seen[field] = true
			t.fields = append(t.fields, field)
		}
	}

	return t, nil
}

// MustTemplate is like ParseTemplate but panics on error
func MustTemplate(raw string) *Template {
	t, err := ParseTemplate(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the raw template
func (t *Template) String() string {
	return t.raw
}

// Fields returns the fields the template depends on, in order of appearance
func (t *Template) Fields() []string {
	return append([]string(nil), t.fields...)
}

// Ready reports whether every field of the template is set in key
func (t *Template) Ready(key selection.Key) bool {
	for _, f := range t.fields {
		if !key.IsSet(f) {
			return false
		}
	}
	return true
}

// Signature identifies the values of the template's own fields in key. Two
// keys with equal signatures expand to the same path, so a resource only
// needs fetching again when its signature changes.
func (t *Template) Signature(key selection.Key) string {
	q := url.Values{}
	for _, f := range t.fields {
		q.Set(f, key.Value(f))
	}
	return q.Encode()
}

// Expand builds the path for key. Every value is path-escaped.
func (t *Template) Expand(key selection.Key) (string, error) {
	var b strings.Builder
	for _, s := range t.segments {
		if s.field == "" {
			b.WriteString(s.literal)
			continue
		}

		v, ok := key.Get(s.field)
		if !ok {
			return "", fmt.Errorf("template %q: %w: %s", t.raw, ErrNotReady, s.field)
		}
		if s.derive != "" {
			fn, _ := lookupDerivation(s.derive)
			d, err := fn(v)
			if err != nil {
				return "", fmt.Errorf("template %q: %w", t.raw, err)
			}
			v = d
		}
		b.WriteString(url.PathEscape(v))
	}
	return b.String(), nil
}
