package views

import (
	"io/fs"

	"github.com/hippocampushub/hubportal/internal/index"
)

// LoadIndexes loads models.json, morphologies.json and traces.json from fsys,
// validating every record against RequiredAttrs
func LoadIndexes(fsys fs.FS) (Indexes, error) {
	var idx Indexes
	targets := []struct {
		name string
		dst  **index.Index
	}{
		{ModelsIndex, &idx.Models},
		{MorphologiesIndex, &idx.Morphologies},
		{TracesIndex, &idx.Traces},
	}

	for _, t := range targets {
		loaded, err := index.LoadFS(t.name, fsys, t.name+".json", RequiredAttrs[t.name]...)
		if err != nil {
			return Indexes{}, err
		}
		*t.dst = loaded
	}
	return idx, nil
}
