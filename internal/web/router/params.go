package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// ParamExtractor provides utilities for extracting and converting parameters
type ParamExtractor struct {
	req *http.Request
}

// NewParamExtractor creates a new parameter extractor for the given request
func NewParamExtractor(req *http.Request) *ParamExtractor {
	return &ParamExtractor{req: req}
}

// PathParam extracts a path parameter by name
func (p *ParamExtractor) PathParam(name string) string {
	return chi.URLParam(p.req, name)
}

// QueryParam extracts a query parameter by name
func (p *ParamExtractor) QueryParam(name string) string {
	return p.req.URL.Query().Get(name)
}

// QueryParamBool extracts a query parameter and converts it to bool. A
// present but empty parameter ("?wait") counts as true.
func (p *ParamExtractor) QueryParamBool(name string, defaultValue bool) bool {
	query := p.req.URL.Query()
	if !query.Has(name) {
		return defaultValue
	}
	value := query.Get(name)
	if value == "" {
		return true
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// QueryParamDuration extracts a query parameter as a Go duration
func (p *ParamExtractor) QueryParamDuration(name string, defaultValue time.Duration) time.Duration {
	value := p.req.URL.Query().Get(name)
	if value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}

// QueryParamInt extracts a query parameter as an int
func (p *ParamExtractor) QueryParamInt(name string, defaultValue int) int {
	value := p.req.URL.Query().Get(name)
	if value == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetPathParam is a convenience function to extract a path parameter
func GetPathParam(req *http.Request, name string) string {
	return chi.URLParam(req, name)
}
