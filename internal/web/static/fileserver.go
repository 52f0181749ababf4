// Package static serves the payload tree (JSON datasets, factsheets) the
// view resources reference, from a data directory or the embedded samples.
package static

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/hippocampushub/hubportal/internal/web/cache"
	"github.com/hippocampushub/hubportal/internal/web/response"
)

// FileServerConfig holds configuration for the static file server
type FileServerConfig struct {
	// Root is the tree to serve files from
	Root fs.FS

	// Prefix is the URL prefix to strip (e.g., "/data")
	Prefix string

	// MaxAge is the cache duration in seconds (default: 5 minutes)
	MaxAge int

	// EnableETag enables ETag header generation
	EnableETag bool

	// NotFoundHandler is called when a file is not found
	NotFoundHandler http.HandlerFunc

	// etags caches content hashes keyed by path, size and modification time
	etagCache *sync.Map
}

// DefaultFileServerConfig returns default static file server configuration
func DefaultFileServerConfig(root fs.FS) *FileServerConfig {
	return &FileServerConfig{
		Root:       root,
		Prefix:     "/data",
		MaxAge:     300,
		EnableETag: true,
		etagCache:  &sync.Map{},
	}
}

// FileServer creates a read-only file server over config.Root. Directories
// are never listed.
func FileServer(config *FileServerConfig) http.Handler {
	if config.etagCache == nil {
		config.etagCache = &sync.Map{}
	}
	notFound := config.NotFoundHandler
	if notFound == nil {
		notFound = func(w http.ResponseWriter, r *http.Request) {
			response.RenderNotFound(w, fmt.Sprintf("file not found: %s", r.URL.Path))
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			response.RenderMethodNotAllowed(w)
			return
		}

		name, ok := resolve(r.URL.Path, config.Prefix)
		if !ok {
			response.RenderBadRequest(w, "Invalid path")
			return
		}

		f, err := config.Root.Open(name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				notFound(w, r)
				return
			}
			response.RenderInternalError(w, err)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			response.RenderInternalError(w, err)
			return
		}
		if info.IsDir() {
			response.RenderForbidden(w, "Forbidden")
			return
		}

		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", config.MaxAge))
		w.Header().Set("Content-Type", detectContentType(name))

		if config.EnableETag {
			etag, err := fileETag(config.Root, name, info, config.etagCache)
			if err == nil {
				w.Header().Set("ETag", etag)
			}
		}

		content, ok := f.(io.ReadSeeker)
		if !ok {
			data, err := fs.ReadFile(config.Root, name)
			if err != nil {
				response.RenderInternalError(w, err)
				return
			}
			content = bytes.NewReader(data)
		}
		// embedded files carry a zero ModTime, which ServeContent ignores
		http.ServeContent(w, r, name, info.ModTime(), content)
	})
}

// NewFileServer creates a static file server with default configuration
func NewFileServer(root fs.FS, prefix string) http.Handler {
	config := DefaultFileServerConfig(root)
	config.Prefix = prefix
	return FileServer(config)
}

// resolve maps a URL path to an fs.FS name, rejecting traversal
func resolve(urlPath, prefix string) (string, bool) {
	if prefix != "" {
		urlPath = strings.TrimPrefix(urlPath, prefix)
	}
	for _, segment := range strings.Split(urlPath, "/") {
		if segment == ".." {
			return "", false
		}
	}
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if name == "" {
		name = "."
	}
	if !fs.ValidPath(name) {
		return "", false
	}
	return name, true
}

// detectContentType detects the content type from file extension
func detectContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		return "application/json; charset=utf-8"
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".txt", ".csv":
		return "text/plain; charset=utf-8"
	case ".svg":
		return "image/svg+xml"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".zip":
		return "application/zip"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// fileETag hashes the file content once per path, size and modification time
func fileETag(root fs.FS, name string, info fs.FileInfo, etags *sync.Map) (string, error) {
	key := fmt.Sprintf("%s:%d:%d", name, info.Size(), info.ModTime().UnixNano())
	if etag, ok := etags.Load(key); ok {
		return etag.(string), nil
	}

	data, err := fs.ReadFile(root, name)
	if err != nil {
		return "", err
	}
	etag := cache.ETag(data)
	etags.Store(key, etag)
	return etag, nil
}
