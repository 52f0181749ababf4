package selection

import (
	"fmt"
	"net/url"
	"strings"
)

// Key is a composite selection key: one optional string value per field of an
// Order. A Key is a value; every mutation returns a new Key.
//
// If field i is unset, every field after i is unset too.
type Key struct {
	order  Order
	values []string
}

// NewKey creates an empty key for the given order
func NewKey(order Order) Key {
	return Key{order: order, values: make([]string, order.Len())}
}

// FromValues builds a key from a field->value map.
// Fields not in the order are ignored and the result is normalized.
func FromValues(order Order, values map[string]string) Key {
	k := NewKey(order)
	for i, f := range order.fields {
		k.values[i] = values[f]
	}
	return k.normalize()
}

// FromQuery reads a key from URL query parameters. An absent or empty
// parameter means unset. Values that follow an unset field (for example a
// hand-edited URL carrying mtype without layer) are dropped.
func FromQuery(order Order, query url.Values) Key {
	k := NewKey(order)
	for i, f := range order.fields {
		k.values[i] = query.Get(f)
	}
	return k.normalize()
}

// normalize clears every value after the first unset field
func (k Key) normalize() Key {
	unset := false
	for i := range k.values {
		if unset {
			k.values[i] = ""
			continue
		}
		if k.values[i] == "" {
			unset = true
		}
	}
	return k
}

// Order returns the field order of the key
func (k Key) Order() Order {
	return k.order
}

// Get returns the value of a field and whether it is set
func (k Key) Get(field string) (string, bool) {
	i := k.order.Index(field)
	if i < 0 || k.values[i] == "" {
		return "", false
	}
	return k.values[i], true
}

// Value returns the value of a field, or "" if unset or unknown
func (k Key) Value(field string) string {
	v, _ := k.Get(field)
	return v
}

// IsSet reports whether a field holds a value
func (k Key) IsSet(field string) bool {
	_, ok := k.Get(field)
	return ok
}

// IsEmpty reports whether no field is set
func (k Key) IsEmpty() bool {
	return len(k.values) == 0 || k.values[0] == ""
}

// Set is the cascading mutation: it returns a key equal to k with field set to
// value and every field ordered after it cleared. An empty value clears the
// field itself as well.
func (k Key) Set(field, value string) (Key, error) {
	i := k.order.Index(field)
	if i < 0 {
		return k, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	next := k.clone()
	next.values[i] = value
	for j := i + 1; j < len(next.values); j++ {
		next.values[j] = ""
	}

	return next.normalize(), nil
}

// MustSet is like Set but panics on an unknown field.
// Use it only with field names that are compile-time constants.
func (k Key) MustSet(field, value string) Key {
	next, err := k.Set(field, value)
	if err != nil {
		panic(err)
	}
	return next
}

// Prefix returns the key restricted to the fields ordered before field
func (k Key) Prefix(field string) (Key, error) {
	i := k.order.Index(field)
	if i < 0 {
		return k, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	p := k.clone()
	for j := i; j < len(p.values); j++ {
		p.values[j] = ""
	}
	return p, nil
}

// Complete reports whether every field is set
func (k Key) Complete() bool {
	for _, v := range k.values {
		if v == "" {
			return false
		}
	}
	return len(k.values) > 0
}

// CompleteThrough reports whether field and every field before it are set
func (k Key) CompleteThrough(field string) bool {
	i := k.order.Index(field)
	if i < 0 {
		return false
	}
	for j := 0; j <= i; j++ {
		if k.values[j] == "" {
			return false
		}
	}
	return true
}

// Values returns the set fields as a map
func (k Key) Values() map[string]string {
	m := make(map[string]string, len(k.values))
	for i, v := range k.values {
		if v != "" {
			m[k.order.fields[i]] = v
		}
	}
	return m
}

// Query returns the key as URL query parameters; unset fields are absent
func (k Key) Query() url.Values {
	q := url.Values{}
	for i, v := range k.values {
		if v != "" {
			q.Set(k.order.fields[i], v)
		}
	}
	return q
}

// Encode returns the URL-encoded query string of the key
func (k Key) Encode() string {
	return k.Query().Encode()
}

// Equal reports whether two keys share field names and values
func (k Key) Equal(other Key) bool {
	if len(k.values) != len(other.values) {
		return false
	}
	for i := range k.values {
		if k.order.fields[i] != other.order.fields[i] || k.values[i] != other.values[i] {
			return false
		}
	}
	return true
}

// String renders the key as field=value pairs in field order
func (k Key) String() string {
	parts := make([]string, 0, len(k.values))
	for i, v := range k.values {
		if v == "" {
			break
		}
		parts = append(parts, k.order.fields[i]+"="+v)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (k Key) clone() Key {
	cp := make([]string, len(k.values))
	copy(cp, k.values)
	return Key{order: k.order, values: cp}
}
