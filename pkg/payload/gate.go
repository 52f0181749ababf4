package payload

import (
	"encoding/json"
	"fmt"
	"sort"
)

// LaminarDistributionID is the plot id holding a layer x cell-type value map
const LaminarDistributionID = "laminar-distribution"

// PlotByID returns the first plot whose id equals id
func PlotByID(b *Bundle, id string) (*Plot, bool) {
	if b == nil {
		return nil, false
	}
	for i := range b.Values {
		if b.Values[i].ID == id {
			return &b.Values[i], true
		}
	}
	return nil, false
}

// ComputeAvailability maps every known id to whether the bundle holds a plot
// with exactly that id. A nil bundle makes every section unavailable.
func ComputeAvailability(b *Bundle, ids []string) map[string]bool {
	avail := make(map[string]bool, len(ids))
	for _, id := range ids {
		_, ok := PlotByID(b, id)
		avail[id] = ok
	}
	return avail
}

// MeanStdAvailability maps every known id to whether the bundle holds an
// entry with that id carrying exactly two values (mean, std)
func MeanStdAvailability(b *Bundle, ids []string) map[string]bool {
	avail := make(map[string]bool, len(ids))
	for _, id := range ids {
		avail[id] = false
		if b == nil {
			continue
		}
		for _, p := range b.Values {
			if p.ID == id && len(p.Values) == 2 {
				avail[id] = true
				break
			}
		}
	}
	return avail
}

// Available returns the ids whose flag is set, in the order of ids
func Available(avail map[string]bool, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if avail[id] {
			out = append(out, id)
		}
	}
	return out
}

// Laminar is the value map of a laminar-distribution entry:
// layer -> cell type -> fraction
type Laminar map[string]map[string]float64

// LaminarByID decodes the value map of the plot with the given id
func LaminarByID(b *Bundle, id string) (Laminar, bool, error) {
	p, ok := PlotByID(b, id)
	if !ok || len(p.ValueMap) == 0 {
		return nil, false, nil
	}

	var l Laminar
	if err := json.Unmarshal(p.ValueMap, &l); err != nil {
		return nil, false, fmt.Errorf("%w: %s value_map: %v", ErrSchemaMismatch, id, err)
	}
	return l, l != nil, nil
}

// Layers returns the layer names of the map, sorted
func (l Laminar) Layers() []string {
	return sortedKeys(map[string]map[string]float64(l))
}

// CellTypes returns the cell types of the first layer in sorted order,
// matching how the distribution is charted
func (l Laminar) CellTypes() []string {
	layers := l.Layers()
	if len(layers) == 0 {
		return nil
	}
	return sortedKeys(l[layers[0]])
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
