package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/hippocampushub/hubportal/internal/portal"
	"github.com/hippocampushub/hubportal/internal/views"
	"github.com/hippocampushub/hubportal/internal/web/response"
	"github.com/hippocampushub/hubportal/pkg/selection"
)

// errNoEntry is returned by back and forward at either end of the history
var errNoEntry = errors.New("no history entry in that direction")

// renderError maps domain errors onto HTTP statuses
func renderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, views.ErrUnknownView):
		response.RenderErrorWithCode(w, http.StatusNotFound, err, "UNKNOWN_VIEW")
	case errors.Is(err, portal.ErrSessionNotFound), errors.Is(err, portal.ErrSessionClosed):
		response.RenderErrorWithCode(w, http.StatusNotFound, err, "UNKNOWN_SESSION")
	case errors.Is(err, selection.ErrUnknownField):
		response.RenderErrorWithCode(w, http.StatusBadRequest, err, "UNKNOWN_FIELD")
	case errors.Is(err, errNoEntry):
		response.RenderErrorWithCode(w, http.StatusConflict, err, "NO_HISTORY_ENTRY")
	case errors.Is(err, portal.ErrSessionLimit):
		response.RenderErrorWithCode(w, http.StatusServiceUnavailable, err, "SESSION_LIMIT")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		response.RenderErrorWithCode(w, http.StatusGatewayTimeout, err, "TIMEOUT")
	default:
		response.RenderError(w, http.StatusInternalServerError, err)
	}
}
