package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/reportproxy/reportproxy/backend/server/internal/database"
	"github.com/reportproxy/reportproxy/backend/server/internal/transform"
	"github.com/reportproxy/reportproxy/shared"
)

// Public error codes. Upstream health is deliberately invisible to public
// callers; the only failure they can observe is the absence of any cached
// success.
const (
	errorInvalidQueryId    = "invalidQueryId"
	errorNotReady          = "notReady"
	errorUnsupportedFormat = "unsupportedFormat"
)

var publicErrorMessages = map[string]string{
	errorInvalidQueryId:    "Invalid query id.",
	errorNotReady:          "The query is not yet available. Wait and try again later.",
	errorUnsupportedFormat: "The requested format is not supported for this query.",
}

type publicError struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondPublicError(w http.ResponseWriter, statusCode int, errorCode string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(publicError{
		Error:   errorCode,
		Code:    statusCode,
		Message: publicErrorMessages[errorCode],
	})
}

// publicQueryHandler serves transformed cached data to unauthenticated
// callers: GET /query?id=<queryId>&alt=<format>&callback=<name>.
//
// A read may also trigger an out-of-band refresh: resuming an abandoned
// query, or refreshing a cache entry older than the query's own interval.
// Those refreshes happen asynchronously so the caller always gets the
// current cache snapshot immediately.
func (s *Server) publicQueryHandler(w http.ResponseWriter, r *http.Request) {
	queryId := r.URL.Query().Get("id")
	if queryId == "" {
		respondPublicError(w, http.StatusNotFound, errorInvalidQueryId)
		return
	}

	query, err := s.db.QueryGet(r.Context(), queryId)
	if err != nil {
		if errors.Is(err, database.ErrQueryNotFound) {
			respondPublicError(w, http.StatusNotFound, errorInvalidQueryId)
			return
		}
		checkGormError(err)
	}
	if !query.Enabled {
		respondPublicError(w, http.StatusNotFound, errorInvalidQueryId)
		return
	}

	format := r.URL.Query().Get("alt")
	if format == "" {
		format = shared.DefaultFormat
	}
	if !shared.IsSupportedFormat(format) || !query.AllowsFormat(format) {
		respondPublicError(w, http.StatusBadRequest, errorUnsupportedFormat)
		return
	}

	now := time.Now().UTC()

	// A public read resumes an abandoned query. The first serve after
	// resumption is still the stale cache; a refresh is queued immediately.
	resumed := false
	if query.AbandonedPaused {
		checkGormError(s.db.ClearAbandonedPause(r.Context(), queryId))
		resumed = true
	}

	cached, err := s.db.ResponseGet(r.Context(), queryId)
	if err != nil {
		if errors.Is(err, database.ErrResponseNotFound) {
			s.recordAccess(r.Context(), query, now)
			if resumed {
				s.triggerAdhocRefresh(queryId)
			}
			respondPublicError(w, http.StatusBadRequest, errorNotReady)
			return
		}
		checkGormError(err)
	}

	body, err := transform.Transform(cached.Payload, format)
	if err != nil {
		respondPublicError(w, http.StatusBadRequest, errorUnsupportedFormat)
		return
	}

	callback := r.URL.Query().Get("callback")
	if callback != "" {
		body, err = transform.WrapCallback(callback, body)
		if err != nil {
			respondPublicError(w, http.StatusBadRequest, errorUnsupportedFormat)
			return
		}
	}

	s.recordAccess(r.Context(), query, now)
	if resumed || now.Sub(cached.FetchedAt) > time.Duration(query.RefreshInterval)*time.Second {
		s.triggerAdhocRefresh(queryId)
	}

	w.Header().Set("Content-Type", transform.ContentType(format, callback != ""))
	_, _ = w.Write(body)
}

func (s *Server) recordAccess(ctx context.Context, query *shared.QueryDefinition, now time.Time) {
	checkGormError(s.db.RecordPublicAccess(ctx, query.QueryId, now))
	if s.statsd != nil {
		_ = s.statsd.Incr("reportproxy.public.request", []string{}, 1.0)
	}
}

// triggerAdhocRefresh queues a refresh without blocking the public response.
// The scheduler enforces state and lease rules, so a paused or already
// in-flight query is skipped silently.
func (s *Server) triggerAdhocRefresh(queryId string) {
	if s.scheduler == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.FetchTimeout()+10*time.Second)
		defer cancel()
		if err := s.scheduler.RefreshNow(ctx, queryId); err != nil {
			shared.GetLogger().Warnf("adhoc refresh for query %s failed: %v", queryId, err)
		}
	}()
}
