package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/hippocampushub/hubportal/internal/history"
	"github.com/hippocampushub/hubportal/internal/portal"
	"github.com/hippocampushub/hubportal/internal/web/response"
	"github.com/hippocampushub/hubportal/internal/web/router"
	"github.com/hippocampushub/hubportal/internal/web/websocket"
	"github.com/hippocampushub/hubportal/pkg/selection"
)

const defaultSettleTimeout = 10 * time.Second

// CreateSessionRequest mounts a view in a new session
type CreateSessionRequest struct {
	View string `json:"view"`
	// Query is the initial selection as a URL query string
	Query string `json:"query"`
}

// SetFieldRequest sets one selection field
type SetFieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// HistoryResponse lists the navigation records of one session
type HistoryResponse struct {
	SessionID string           `json:"session_id"`
	Records   []history.Record `json:"records"`
}

func (a *API) session(w http.ResponseWriter, r *http.Request) (*portal.Session, bool) {
	s, err := a.manager.Get(router.GetPathParam(r, "sessionID"))
	if err != nil {
		renderError(w, err)
		return nil, false
	}
	return s, true
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := response.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
		response.RenderError(w, http.StatusBadRequest, err)
		return
	}
	if req.View == "" {
		response.RenderBadRequest(w, "view is required")
		return
	}
	query, err := url.ParseQuery(req.Query)
	if err != nil {
		response.RenderBadRequest(w, "invalid query: "+err.Error())
		return
	}

	s, err := a.manager.Create(r.Context(), req.View, query)
	if err != nil {
		renderError(w, err)
		return
	}

	w.Header().Set("Location", "/api/sessions/"+s.ID())
	response.JSON(w, http.StatusCreated, s.Snapshot())
}

// getSession returns the session snapshot. With ?wait it first waits for
// in-flight fetches, for at most ?timeout (default 10s) and never past the
// request timeout.
func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	p := router.NewParamExtractor(r)
	if p.QueryParamBool("wait", false) {
		ctx, cancel := context.WithTimeout(r.Context(), p.QueryParamDuration("timeout", defaultSettleTimeout))
		defer cancel()
		if err := s.Settle(ctx); err != nil {
			renderError(w, err)
			return
		}
	}
	response.JSON(w, http.StatusOK, s.Snapshot())
}

func (a *API) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := a.manager.Close(router.GetPathParam(r, "sessionID")); err != nil {
		renderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setField(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}

	var req SetFieldRequest
	if err := response.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
		response.RenderError(w, http.StatusBadRequest, err)
		return
	}
	if req.Field == "" {
		response.RenderBadRequest(w, "field is required")
		return
	}

	if _, err := s.SetField(r.Context(), req.Field, req.Value); err != nil {
		renderError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, s.Snapshot())
}

func (a *API) back(w http.ResponseWriter, r *http.Request) {
	a.move(w, r, (*portal.Session).Back)
}

func (a *API) forward(w http.ResponseWriter, r *http.Request) {
	a.move(w, r, (*portal.Session).Forward)
}

func (a *API) move(w http.ResponseWriter, r *http.Request, step func(*portal.Session, context.Context) (selection.Entry, bool, error)) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}

	_, moved, err := step(s, r.Context())
	if err == nil && !moved {
		err = errNoEntry
	}
	if err != nil {
		renderError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, s.Snapshot())
}

// sessionHistory lists the recorded navigation of a session. Records outlive
// the session; a live session without records reports its in-memory log.
func (a *API) sessionHistory(w http.ResponseWriter, r *http.Request) {
	id := router.GetPathParam(r, "sessionID")

	records, err := a.manager.History().List(r.Context(), id)
	if err != nil {
		renderError(w, err)
		return
	}

	if len(records) == 0 {
		s, err := a.manager.Get(id)
		if err != nil {
			renderError(w, err)
			return
		}
		records = s.Records()
	}

	response.JSON(w, http.StatusOK, HistoryResponse{SessionID: id, Records: records})
}

func (a *API) sessionSocket(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}

	err := a.cfg.WebSocket.ServeSession(w, r, s)
	switch {
	case err == nil:
	case errors.Is(err, websocket.ErrHubStopped):
		response.RenderServiceUnavailable(w, "server is shutting down")
	default:
		// the upgrader has already answered the client
		a.logger.Debug("websocket upgrade failed", zap.String("session", s.ID()), zap.Error(err))
	}
}
