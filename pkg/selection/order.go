// Package selection holds the composite selection key of a portal view, the
// cascading mutation rules applied to it, the navigation history that stores
// it, and the default preselection applied when a view is first mounted.
package selection

import (
	"errors"
	"fmt"
)

// ErrUnknownField is returned when a field name is not part of a view's order
var ErrUnknownField = errors.New("unknown selection field")

// Order is the strict dependency order of the fields of a composite key.
// A field's valid values depend only on the fields before it.
type Order struct {
	fields []string
	pos    map[string]int
}

// NewOrder creates an order from the given field names
func NewOrder(fields ...string) (Order, error) {
	if len(fields) == 0 {
		return Order{}, fmt.Errorf("selection order needs at least one field")
	}

	pos := make(map[string]int, len(fields))
	for i, f := range fields {
		if f == "" {
			return Order{}, fmt.Errorf("selection field %d has an empty name", i)
		}
		if _, dup := pos[f]; dup {
			return Order{}, fmt.Errorf("selection field %q listed twice", f)
		}
		pos[f] = i
	}

	cp := make([]string, len(fields))
	copy(cp, fields)

	return Order{fields: cp, pos: pos}, nil
}

// MustOrder is like NewOrder but panics on an invalid field list.
// It is meant for orders declared as package-level values.
func MustOrder(fields ...string) Order {
	o, err := NewOrder(fields...)
	if err != nil {
		panic(err)
	}
	return o
}

// Fields returns a copy of the ordered field names
func (o Order) Fields() []string {
	cp := make([]string, len(o.fields))
	copy(cp, o.fields)
	return cp
}

// Len returns the number of fields
func (o Order) Len() int {
	return len(o.fields)
}

// Index returns the position of a field, or -1 if it is not part of the order
func (o Order) Index(field string) int {
	if i, ok := o.pos[field]; ok {
		return i
	}
	return -1
}

// Equal reports whether both orders list the same fields in the same order
func (o Order) Equal(other Order) bool {
	if len(o.fields) != len(other.fields) {
		return false
	}
	for i := range o.fields {
		if o.fields[i] != other.fields[i] {
			return false
		}
	}
	return true
}

// Has reports whether field is part of the order
func (o Order) Has(field string) bool {
	_, ok := o.pos[field]
	return ok
}

// Before returns the fields ordered strictly before field
func (o Order) Before(field string) ([]string, error) {
	i := o.Index(field)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	cp := make([]string, i)
	copy(cp, o.fields[:i])
	return cp, nil
}

// After returns the fields ordered strictly after field
func (o Order) After(field string) ([]string, error) {
	i := o.Index(field)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	cp := make([]string, len(o.fields)-i-1)
	copy(cp, o.fields[i+1:])
	return cp, nil
}
