// Package views declares the portal views: for each one its selection
// fields, where their options come from, the default selection and the
// resources a selection points at.
package views

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hippocampushub/hubportal/internal/fetch"
	"github.com/hippocampushub/hubportal/internal/resolve"
	"github.com/hippocampushub/hubportal/pkg/payload"
	"github.com/hippocampushub/hubportal/pkg/selection"
)

// ErrUnknownView is returned when a view name is not in the catalog
var ErrUnknownView = errors.New("unknown view")

// Gate selects how a resource's plot ids are checked for availability
type Gate string

const (
	// GatePresence marks an id available when a plot with that id exists
	GatePresence Gate = "presence"
	// GateMeanStd marks an id available when its entry has exactly a mean and a std
	GateMeanStd Gate = "mean-std"
)

// Resource is one payload a view loads for a selection
type Resource struct {
	Name     string
	Template *fetch.Template
	Kind     payload.Kind
	// PlotIDs are the display sections gated on the payload
	PlotIDs []string
	Gate    Gate
	// Laminar exposes the laminar-distribution value map of the payload
	Laminar bool
}

// Availability computes the per-id flags of the resource for p. A nil or
// non-bundle payload makes every id unavailable.
func (r *Resource) Availability(p *payload.Payload) map[string]bool {
	var b *payload.Bundle
	if p != nil {
		b = p.Bundle
	}
	if r.Gate == GateMeanStd {
		return payload.MeanStdAvailability(b, r.PlotIDs)
	}
	return payload.ComputeAvailability(b, r.PlotIDs)
}

// View is one parameterised cascading-selection page
type View struct {
	Name         string
	Title        string
	Order        selection.Order
	Resolver     *resolve.Resolver
	Preselection selection.Preselection
	// CompleteAt is the field whose selection makes the view complete
	CompleteAt string
	Resources  []Resource
}

// Key parses a selection for the view from URL values
func (v *View) Key(values map[string][]string) selection.Key {
	return selection.FromQuery(v.Order, values)
}

// Complete reports whether the selection is complete enough to show data
func (v *View) Complete(key selection.Key) bool {
	return key.CompleteThrough(v.CompleteAt)
}

// Resource returns the resource with the given name
func (v *View) Resource(name string) (*Resource, bool) {
	for i := range v.Resources {
		if v.Resources[i].Name == name {
			return &v.Resources[i], true
		}
	}
	return nil, false
}

// Requests returns a fetch request for every resource whose template fields
// are all set in key
func (v *View) Requests(key selection.Key) []fetch.Request {
	var reqs []fetch.Request
	for _, r := range v.Resources {
		if !r.Template.Ready(key) {
			continue
		}
		path, err := r.Template.Expand(key)
		if err != nil {
			// a failing derivation leaves the section absent
			continue
		}
		reqs = append(reqs, fetch.Request{
			View:     v.Name,
			Resource: r.Name,
			Path:     path,
			Kind:     r.Kind,
		})
	}
	return reqs
}

// Validate checks that the resolver, preselection and every template field
// belong to the view's field order
func (v *View) Validate() error {
	if v.Name == "" {
		return errors.New("view: empty name")
	}
	if v.Resolver == nil {
		return fmt.Errorf("view %s: no resolver", v.Name)
	}
	if !v.Resolver.Order().Equal(v.Order) {
		return fmt.Errorf("view %s: resolver order differs from view order", v.Name)
	}
	if err := v.Preselection.Validate(v.Order); err != nil {
		return fmt.Errorf("view %s: %w", v.Name, err)
	}
	if defaults := selection.FromValues(v.Order, v.Preselection.Defaults); len(defaults.Values()) != len(v.Preselection.Defaults) {
		return fmt.Errorf("view %s: preselection defaults leave a gap in the field order", v.Name)
	}
	if !v.Order.Has(v.CompleteAt) {
		return fmt.Errorf("view %s: complete-at: %w: %s", v.Name, selection.ErrUnknownField, v.CompleteAt)
	}

	seen := make(map[string]bool)
	for _, r := range v.Resources {
		if r.Name == "" || seen[r.Name] {
			return fmt.Errorf("view %s: resource name %q empty or duplicated", v.Name, r.Name)
		}
		seen[r.Name] = true
		if r.Template == nil {
			return fmt.Errorf("view %s: resource %s: no template", v.Name, r.Name)
		}
		for _, f := range r.Template.Fields() {
			if !v.Order.Has(f) {
				return fmt.Errorf("view %s: resource %s: %w: %s", v.Name, r.Name, selection.ErrUnknownField, f)
			}
		}
		if !r.Kind.Valid() {
			return fmt.Errorf("view %s: resource %s: unknown payload kind %q", v.Name, r.Name, r.Kind)
		}
	}
	return nil
}

// Catalog is the set of views the portal serves
type Catalog struct {
	views map[string]*View
}

// NewCatalog validates views and indexes them by name
func NewCatalog(views ...*View) (*Catalog, error) {
	c := &Catalog{views: make(map[string]*View, len(views))}
	for _, v := range views {
		if err := v.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.views[v.Name]; dup {
			return nil, fmt.Errorf("view %s: duplicate name", v.Name)
		}
		c.views[v.Name] = v
	}
	return c, nil
}

// Get returns the named view
func (c *Catalog) Get(name string) (*View, error) {
	v, ok := c.views[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownView, name)
	}
	return v, nil
}

// Names returns the view names, sorted
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.views))
	for name := range c.views {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Views returns every view ordered by name
func (c *Catalog) Views() []*View {
	out := make([]*View, 0, len(c.views))
	for _, name := range c.Names() {
		out = append(out, c.views[name])
	}
	return out
}
