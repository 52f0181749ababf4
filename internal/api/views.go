package api

import (
	"encoding/json"
	"net/http"

	"github.com/hippocampushub/hubportal/internal/portal"
	"github.com/hippocampushub/hubportal/internal/views"
	"github.com/hippocampushub/hubportal/internal/web/cache"
	"github.com/hippocampushub/hubportal/internal/web/response"
)

// ViewSummary describes one catalog view
type ViewSummary struct {
	Name         string            `json:"name"`
	Title        string            `json:"title"`
	Fields       []string          `json:"fields"`
	CompleteAt   string            `json:"complete_at"`
	Preselection map[string]string `json:"preselection,omitempty"`
	Resources    []ResourceSummary `json:"resources"`
}

// ResourceSummary describes one resource of a view
type ResourceSummary struct {
	Name     string   `json:"name"`
	Template string   `json:"template"`
	Kind     string   `json:"kind"`
	PlotIDs  []string `json:"plot_ids,omitempty"`
}

// Summarize describes v for listings
func Summarize(v *views.View) ViewSummary {
	s := ViewSummary{
		Name:         v.Name,
		Title:        v.Title,
		Fields:       v.Order.Fields(),
		CompleteAt:   v.CompleteAt,
		Preselection: v.Preselection.Defaults,
		Resources:    make([]ResourceSummary, 0, len(v.Resources)),
	}
	for _, r := range v.Resources {
		s.Resources = append(s.Resources, ResourceSummary{
			Name:     r.Name,
			Template: r.Template.String(),
			Kind:     string(r.Kind),
			PlotIDs:  r.PlotIDs,
		})
	}
	return s
}

// OptionsResponse is the stateless option lists of a view
type OptionsResponse struct {
	View     string              `json:"view"`
	Query    string              `json:"query"`
	Key      map[string]string   `json:"key"`
	Options  map[string][]string `json:"options"`
	Complete bool                `json:"complete"`
}

func (a *API) listViews(w http.ResponseWriter, r *http.Request) {
	all := a.catalog.Views()
	out := make([]ViewSummary, 0, len(all))
	for _, v := range all {
		out = append(out, Summarize(v))
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{"views": out})
}

func (a *API) viewOptions(w http.ResponseWriter, r *http.Request) {
	v, ok := a.view(w, r)
	if !ok {
		return
	}
	key := v.Key(r.URL.Query())
	response.JSON(w, http.StatusOK, OptionsResponse{
		View:     v.Name,
		Query:    key.Encode(),
		Key:      key.Values(),
		Options:  v.Resolver.ResolveAll(key),
		Complete: v.Complete(key),
	})
}

func (a *API) viewData(w http.ResponseWriter, r *http.Request) {
	v, ok := a.view(w, r)
	if !ok {
		return
	}
	a.renderEvaluation(w, r, v)
}

// viewPage is the entry point of a view: without any driving field the
// client is sent to the preselected URL, otherwise it gets the evaluation
func (a *API) viewPage(w http.ResponseWriter, r *http.Request) {
	v, ok := a.view(w, r)
	if !ok {
		return
	}

	key := v.Key(r.URL.Query())
	if len(v.Preselection.Defaults) > 0 && v.Preselection.Needed(key) {
		merged := v.Preselection.Merge(key)
		if !merged.Equal(key) {
			http.Redirect(w, r, r.URL.Path+"?"+merged.Encode(), http.StatusFound)
			return
		}
	}
	a.renderEvaluation(w, r, v)
}

func (a *API) renderEvaluation(w http.ResponseWriter, r *http.Request, v *views.View) {
	snap := portal.Evaluate(r.Context(), v, v.Key(r.URL.Query()), a.manager.Fetcher(), a.logger)
	if err := r.Context().Err(); err != nil {
		renderError(w, err)
		return
	}

	body, err := json.Marshal(snap)
	if err != nil {
		response.RenderInternalError(w, err)
		return
	}
	if cache.WriteConditional(w, r, body) {
		return
	}
	response.JSONBytes(w, http.StatusOK, body)
}
