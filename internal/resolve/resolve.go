// Package resolve computes the option list of every field of a selection key
// from the fields ordered before it.
package resolve

import (
	"fmt"

	"github.com/hippocampushub/hubportal/internal/index"
	"github.com/hippocampushub/hubportal/pkg/selection"
)

// Provider produces the options of one field given the fields before it.
// prefix holds only fields ordered before the resolved field, and every one
// of them is set.
type Provider interface {
	Options(field string, prefix selection.Key) []string
}

// ProviderFunc adapts a function to Provider
type ProviderFunc func(field string, prefix selection.Key) []string

// Options calls f
func (f ProviderFunc) Options(field string, prefix selection.Key) []string {
	return f(field, prefix)
}

// IndexProvider answers options from a static index
type IndexProvider struct {
	idx   *index.Index
	attr  string
	attrs map[string]string
}

// FromIndex returns a provider projecting attr from idx, filtered by every
// prefix field. Prefix fields map to the index attribute of the same name
// unless remapped with Map.
func FromIndex(idx *index.Index, attr string) *IndexProvider {
	return &IndexProvider{idx: idx, attr: attr, attrs: map[string]string{}}
}

// Map filters the prefix field on the given index attribute instead of on an
// attribute of the same name
func (p *IndexProvider) Map(field, attr string) *IndexProvider {
	p.attrs[field] = attr
	return p
}

// Options implements Provider
func (p *IndexProvider) Options(_ string, prefix selection.Key) []string {
	var filters []index.Filter
	for _, f := range prefix.Order().Fields() {
		v, ok := prefix.Get(f)
		if !ok {
			break
		}
		attr := f
		if a, mapped := p.attrs[f]; mapped {
			attr = a
		}
		filters = append(filters, index.Filter{Attr: attr, Value: v})
	}
	return p.idx.Options(p.attr, filters...)
}

// Fixed returns a provider offering the same values regardless of the prefix
func Fixed(values ...string) Provider {
	vals := append([]string(nil), values...)
	return ProviderFunc(func(string, selection.Key) []string {
		return append([]string{}, vals...)
	})
}

// Resolver maps each field of a view to its option provider
type Resolver struct {
	order     selection.Order
	providers map[string]Provider
}

// New creates a resolver. Every field of order must have a provider.
func New(order selection.Order, providers map[string]Provider) (*Resolver, error) {
	for _, f := range order.Fields() {
		if providers[f] == nil {
			return nil, fmt.Errorf("resolver: no option provider for field %q", f)
		}
	}
	for f := range providers {
		if !order.Has(f) {
			return nil, fmt.Errorf("resolver: %w: %s", selection.ErrUnknownField, f)
		}
	}
	return &Resolver{order: order, providers: providers}, nil
}

// Order returns the field order the resolver serves
func (r *Resolver) Order() selection.Order {
	return r.order
}

// Resolve returns the options for field under key. Only the fields ordered
// before field are considered; if any of them is unset the result is empty.
func (r *Resolver) Resolve(field string, key selection.Key) ([]string, error) {
	prefix, err := key.Prefix(field)
	if err != nil {
		return nil, err
	}

	before, _ := r.order.Before(field)
	for _, f := range before {
		if !prefix.IsSet(f) {
			return []string{}, nil
		}
	}

	opts := r.providers[field].Options(field, prefix)
	if opts == nil {
		opts = []string{}
	}
	return opts, nil
}

// ResolveAll returns the option list of every field under key
func (r *Resolver) ResolveAll(key selection.Key) map[string][]string {
	out := make(map[string][]string, r.order.Len())
	for _, f := range r.order.Fields() {
		opts, err := r.Resolve(f, key)
		if err != nil {
			// fields come from the resolver's own order
			opts = []string{}
		}
		out[f] = opts
	}
	return out
}
