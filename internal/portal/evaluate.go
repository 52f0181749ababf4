package portal

import (
	"context"

	"go.uber.org/zap"

	"github.com/hippocampushub/hubportal/internal/fetch"
	"github.com/hippocampushub/hubportal/internal/views"
	"github.com/hippocampushub/hubportal/pkg/selection"
)

// Evaluate computes the snapshot of view at key without a session. Every
// ready resource is fetched concurrently; a failed fetch leaves its resource
// without a payload.
func Evaluate(ctx context.Context, view *views.View, key selection.Key, fetcher *fetch.Fetcher, logger *zap.Logger) Snapshot {
	if logger == nil {
		logger = zap.NewNop()
	}

	fetched := make(map[string]fetch.Result)
	for _, res := range fetcher.FetchAll(ctx, view.Requests(key)) {
		fetched[res.Request.Resource] = res
	}

	resources := make(map[string]ResourceState, len(view.Resources))
	for i := range view.Resources {
		r := &view.Resources[i]
		res, ok := fetched[r.Name]
		if !ok || res.Err != nil {
			resources[r.Name] = deriveState(r, nil, "", r.Template.Ready(key), false, logger)
			continue
		}
		resources[r.Name] = deriveState(r, res.Payload, res.Request.Path, true, false, logger)
	}

	return Snapshot{
		View:      view.Name,
		Query:     key.Encode(),
		Key:       key.Values(),
		Options:   view.Resolver.ResolveAll(key),
		Complete:  view.Complete(key),
		Resources: resources,
	}
}
