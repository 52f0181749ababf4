package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	webcontext "github.com/hippocampushub/hubportal/internal/web/context"
	"github.com/hippocampushub/hubportal/internal/web/response"
	"github.com/hippocampushub/hubportal/internal/web/router"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000
)

func (a *API) purgeCache(w http.ResponseWriter, r *http.Request) {
	if a.cfg.Cache == nil {
		response.RenderNotFound(w, "payload cache is disabled")
		return
	}
	if err := a.cfg.Cache.Clear(r.Context()); err != nil {
		response.RenderInternalError(w, err)
		return
	}

	a.logger.Info("payload cache purged", zap.String("subject", webcontext.GetSubject(r.Context())))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) recentHistory(w http.ResponseWriter, r *http.Request) {
	limit := router.NewParamExtractor(r).QueryParamInt("limit", defaultRecentLimit)
	if limit <= 0 || limit > maxRecentLimit {
		response.RenderBadRequest(w, "limit must be between 1 and 1000")
		return
	}

	records, err := a.manager.History().Recent(r.Context(), limit)
	if err != nil {
		renderError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

// SessionInfo summarizes one live session for operators
type SessionInfo struct {
	ID       string    `json:"id"`
	View     string    `json:"view"`
	Query    string    `json:"query"`
	Version  uint64    `json:"version"`
	LastUsed time.Time `json:"last_used"`
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions := a.manager.Sessions()
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		snap := s.Snapshot()
		out = append(out, SessionInfo{
			ID:       s.ID(),
			View:     snap.View,
			Query:    snap.Query,
			Version:  snap.Version,
			LastUsed: s.LastUsed(),
		})
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{"sessions": out})
}
