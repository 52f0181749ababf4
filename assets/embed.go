// Package assets embeds the sample datasets and payloads the portal serves
// when no data directory or remote data URL is configured.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed index/*.json
var indexFS embed.FS

//go:embed all:data
var dataFS embed.FS

// Index returns the static index datasets (models.json, morphologies.json, traces.json)
func Index() fs.FS {
	sub, err := fs.Sub(indexFS, "index")
	if err != nil {
		panic(err)
	}
	return sub
}

// Data returns the sample payload tree, rooted like the portal's /data directory
func Data() fs.FS {
	sub, err := fs.Sub(dataFS, "data")
	if err != nil {
		panic(err)
	}
	return sub
}
