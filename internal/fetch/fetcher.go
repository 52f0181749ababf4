// Package fetch expands resource path templates for a selection key, loads
// the payloads they point at and validates them at the boundary.
package fetch

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hippocampushub/hubportal/internal/metrics"
	"github.com/hippocampushub/hubportal/pkg/payload"
)

// DefaultConcurrency bounds the fetches FetchAll runs at once
const DefaultConcurrency = 8

// Request is one resource to load
type Request struct {
	View     string
	Resource string
	Path     string
	Kind     payload.Kind
}

// Result is the outcome of one Request. Exactly one of Payload and Err is set.
type Result struct {
	Request
	Payload  *payload.Payload
	Err      error
	Duration time.Duration
}

// Fetcher loads and decodes payloads from a Source
type Fetcher struct {
	source      Source
	logger      *zap.Logger
	concurrency int
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithLogger sets the logger for fetch failures
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithConcurrency bounds the number of concurrent fetches in FetchAll
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// New creates a fetcher reading from source
func New(source Source, opts ...Option) *Fetcher {
	f := &Fetcher{
		source:      source,
		logger:      zap.NewNop(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch loads one resource and decodes it by kind. There is no retry: a
// failure is returned in the result and logged.
func (f *Fetcher) Fetch(ctx context.Context, req Request) Result {
	start := time.Now()
	res := Result{Request: req}

	data, err := f.source.Fetch(ctx, req.Path)
	if err == nil {
		res.Payload, err = payload.Decode(req.Kind, data)
	}
	res.Err = err
	res.Duration = time.Since(start)

	metrics.HistogramFetchDuration.WithLabelValues(req.View, req.Resource).Observe(res.Duration.Seconds())

	if err != nil {
		// a cancelled fetch was superseded, not failed
		if ctx.Err() != nil {
			metrics.CounterFetch.WithLabelValues(req.View, req.Resource, metrics.OutcomeCancelled).Inc()
			return res
		}
		metrics.CounterFetch.WithLabelValues(req.View, req.Resource, metrics.OutcomeError).Inc()
		f.logger.Warn("fetch failed",
			zap.String("view", req.View),
			zap.String("resource", req.Resource),
			zap.String("path", req.Path),
			zap.Error(err),
		)
		return res
	}

	metrics.CounterFetch.WithLabelValues(req.View, req.Resource, metrics.OutcomeOK).Inc()
	f.logger.Debug("fetched",
		zap.String("view", req.View),
		zap.String("resource", req.Resource),
		zap.String("path", req.Path),
		zap.Duration("duration", res.Duration),
	)
	return res
}

// FetchAll issues every request concurrently and returns the results in
// request order. One failing request does not cancel the others.
func (f *Fetcher) FetchAll(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))

	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = f.Fetch(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
