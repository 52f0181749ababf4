package selection

import "fmt"

// Preselection is the default key injected when a view is mounted without any
// of its driving fields in the URL
type Preselection struct {
	// Driving lists the fields whose presence means "the user already chose"
	Driving []string
	// Defaults is merged into the key when no driving field is present
	Defaults map[string]string
}

// Validate checks that every driving and default field belongs to order
func (p Preselection) Validate(order Order) error {
	for _, f := range p.Driving {
		if !order.Has(f) {
			return fmt.Errorf("preselection driving field: %w: %s", ErrUnknownField, f)
		}
	}
	for f := range p.Defaults {
		if !order.Has(f) {
			return fmt.Errorf("preselection default: %w: %s", ErrUnknownField, f)
		}
	}
	return nil
}

// Needed reports whether key carries none of the driving fields.
// An empty driving list means any set field counts.
func (p Preselection) Needed(key Key) bool {
	if len(p.Driving) == 0 {
		return key.IsEmpty()
	}
	for _, f := range p.Driving {
		if key.IsSet(f) {
			return false
		}
	}
	return true
}

// Merge returns key with the defaults filled into its unset fields
func (p Preselection) Merge(key Key) Key {
	values := make(map[string]string, len(p.Defaults))
	for f, v := range p.Defaults {
		values[f] = v
	}
	for f, v := range key.Values() {
		values[f] = v
	}
	return FromValues(key.Order(), values)
}

// Apply replaces the navigator's current key with the merged defaults when no
// driving field is set. It never pushes, so going back does not land on the
// empty selection again. Calling it on an already populated key is a no-op.
// It reports whether the key changed.
func (p Preselection) Apply(nav *Navigator) bool {
	if len(p.Defaults) == 0 {
		return false
	}

	current := nav.Key()
	if !p.Needed(current) {
		return false
	}

	merged := p.Merge(current)
	if merged.Equal(current) {
		return false
	}
	nav.Replace(merged)
	return true
}
