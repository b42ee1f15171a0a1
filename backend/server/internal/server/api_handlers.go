package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reportproxy/reportproxy/backend/server/internal/database"
	"github.com/reportproxy/reportproxy/backend/server/internal/resolve"
	"github.com/reportproxy/reportproxy/shared"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/rodaine/table"
)

func (s *Server) validateQueryRequest(req *shared.QueryUpsertRequest) error {
	if req.Name == "" || len(req.Name) > shared.MaxNameLength {
		return fmt.Errorf("name must be between 1 and %d characters", shared.MaxNameLength)
	}
	if req.Request == "" || len(req.Request) > shared.MaxRequestLength {
		return fmt.Errorf("request must be between 1 and %d characters", shared.MaxRequestLength)
	}
	if !strings.HasPrefix(req.Request, "http://") && !strings.HasPrefix(req.Request, "https://") {
		return fmt.Errorf("request must be an absolute http(s) URL")
	}
	if req.RefreshInterval < shared.MinRefreshIntervalSeconds || req.RefreshInterval > shared.MaxRefreshIntervalSeconds {
		return fmt.Errorf("refresh_interval must be between %d and %d seconds", shared.MinRefreshIntervalSeconds, shared.MaxRefreshIntervalSeconds)
	}
	for _, format := range req.Formats {
		if !shared.IsSupportedFormat(format) {
			return fmt.Errorf("unsupported output format %#v", format)
		}
	}
	location, err := s.config.Location()
	if err != nil {
		return err
	}
	if err := resolve.NewResolver(location).ValidateTemplate(req.Request); err != nil {
		return err
	}
	return validateDateBounds(req.Request)
}

// validateDateBounds rejects registrations whose start-date/end-date query
// parameters are literal values that no date parser can make sense of.
// Placeholder values are checked by the template resolver instead.
func validateDateBounds(request string) error {
	parsed, err := url.Parse(request)
	if err != nil {
		return fmt.Errorf("request is not a valid URL: %w", err)
	}
	params := parsed.Query()
	for _, key := range []string{"start-date", "end-date"} {
		value := params.Get(key)
		if value == "" || strings.Contains(value, "{") {
			continue
		}
		if _, err := dateparse.ParseAny(value); err != nil {
			return fmt.Errorf("%s=%#v is not a recognizable date", key, value)
		}
	}
	return nil
}

func (s *Server) createQueryHandler(w http.ResponseWriter, r *http.Request) {
	var req shared.QueryUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		panic(fmt.Errorf("failed to decode: %w", err))
	}
	if err := s.validateQueryRequest(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	query := &shared.QueryDefinition{
		QueryId:         uuid.Must(uuid.NewRandom()).String(),
		OwnerRef:        req.OwnerRef,
		Name:            req.Name,
		Request:         req.Request,
		RefreshInterval: req.RefreshInterval,
		Formats:         req.Formats,
		Anonymize:       req.Anonymize,
		Enabled:         req.Enabled,
		CreatedAt:       now,
		ModifiedAt:      now,
	}
	checkGormError(s.db.QueryCreate(r.Context(), query))

	// Run the first fetch right away so the public endpoint leaves NotReady
	// as soon as possible.
	if query.Enabled {
		s.triggerAdhocRefresh(query.QueryId)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(query); err != nil {
		panic(fmt.Errorf("failed to JSON encode the created query: %w", err))
	}
}

func (s *Server) updateQueryHandler(w http.ResponseWriter, r *http.Request) {
	queryId := getRequiredQueryParam(r, "id")
	var req shared.QueryUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		panic(fmt.Errorf("failed to decode: %w", err))
	}
	if err := s.validateQueryRequest(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := s.db.QueryUpdate(r.Context(), &shared.QueryDefinition{
		QueryId:         queryId,
		Name:            req.Name,
		Request:         req.Request,
		RefreshInterval: req.RefreshInterval,
		Formats:         req.Formats,
		Anonymize:       req.Anonymize,
		Enabled:         req.Enabled,
	})
	if errors.Is(err, database.ErrQueryNotFound) {
		http.Error(w, "no query with that id", http.StatusNotFound)
		return
	}
	checkGormError(err)

	query, err := s.db.QueryGet(r.Context(), queryId)
	checkGormError(err)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(query); err != nil {
		panic(fmt.Errorf("failed to JSON encode the updated query: %w", err))
	}
}

func (s *Server) deleteQueryHandler(w http.ResponseWriter, r *http.Request) {
	queryId := getRequiredQueryParam(r, "id")
	err := s.db.QueryDelete(r.Context(), queryId)
	if errors.Is(err, database.ErrQueryNotFound) {
		http.Error(w, "no query with that id", http.StatusNotFound)
		return
	}
	checkGormError(err)

	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getQueryHandler(w http.ResponseWriter, r *http.Request) {
	queryId := getRequiredQueryParam(r, "id")
	query, err := s.db.QueryGet(r.Context(), queryId)
	if errors.Is(err, database.ErrQueryNotFound) {
		http.Error(w, "no query with that id", http.StatusNotFound)
		return
	}
	checkGormError(err)

	queryErrors, err := s.db.ErrorsForQuery(r.Context(), queryId)
	checkGormError(err)

	details := shared.QueryDetails{
		Query:  query,
		State:  query.State(),
		Errors: queryErrors,
	}
	cached, err := s.db.ResponseGet(r.Context(), queryId)
	if err == nil {
		details.HasCache = true
		details.FetchedAt = &cached.FetchedAt
	} else if !errors.Is(err, database.ErrResponseNotFound) {
		checkGormError(err)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(details); err != nil {
		panic(fmt.Errorf("failed to JSON encode the query details: %w", err))
	}
}

func (s *Server) listQueriesHandler(w http.ResponseWriter, r *http.Request) {
	ownerRef := r.URL.Query().Get("owner")
	queries, err := s.db.QueryList(r.Context(), ownerRef)
	checkGormError(err)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(queries); err != nil {
		panic(fmt.Errorf("failed to JSON encode the query list: %w", err))
	}
}

func (s *Server) setStatusHandler(w http.ResponseWriter, r *http.Request) {
	queryId := getRequiredQueryParam(r, "id")
	state := shared.QueryState(getRequiredQueryParam(r, "state"))
	switch state {
	case shared.StateActive, shared.StatePausedError, shared.StatePausedAbandoned:
	default:
		http.Error(w, fmt.Sprintf("unknown state %#v", string(state)), http.StatusBadRequest)
		return
	}

	err := s.db.SetStatus(r.Context(), queryId, state)
	if errors.Is(err, database.ErrQueryNotFound) {
		http.Error(w, "no query with that id", http.StatusNotFound)
		return
	}
	checkGormError(err)

	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) setEnabledHandler(w http.ResponseWriter, r *http.Request) {
	queryId := getRequiredQueryParam(r, "id")
	enabled := getRequiredQueryParam(r, "enabled") == "true"

	err := s.db.SetEnabled(r.Context(), queryId, enabled)
	if errors.Is(err, database.ErrQueryNotFound) {
		http.Error(w, "no query with that id", http.StatusNotFound)
		return
	}
	checkGormError(err)

	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}

// clearErrorsHandler is the manual circuit-breaker reset: it resumes an
// error-paused query without requiring a successful fetch first.
func (s *Server) clearErrorsHandler(w http.ResponseWriter, r *http.Request) {
	queryId := getRequiredQueryParam(r, "id")
	checkGormError(s.db.ClearErrors(r.Context(), queryId))

	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) deleteErrorsHandler(w http.ResponseWriter, r *http.Request) {
	queryId := getRequiredQueryParam(r, "id")
	checkGormError(s.db.DeleteErrors(r.Context(), queryId))

	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}

// dropCacheHandler discards the stored payload for a query. The public
// endpoint answers notReady until the next refresh completes.
func (s *Server) dropCacheHandler(w http.ResponseWriter, r *http.Request) {
	queryId := getRequiredQueryParam(r, "id")
	_, err := s.db.QueryGet(r.Context(), queryId)
	if errors.Is(err, database.ErrQueryNotFound) {
		http.Error(w, "no query with that id", http.StatusNotFound)
		return
	}
	checkGormError(err)
	checkGormError(s.db.ResponseDelete(r.Context(), queryId))

	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getErrorsHandler(w http.ResponseWriter, r *http.Request) {
	queryId := getRequiredQueryParam(r, "id")
	queryErrors, err := s.db.ErrorsForQuery(r.Context(), queryId)
	checkGormError(err)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(queryErrors); err != nil {
		panic(fmt.Errorf("failed to JSON encode the error log: %w", err))
	}
}

// runQueryHandler triggers a synchronous adhoc refresh. It goes through the
// scheduler, so a paused or disabled query is skipped rather than fetched.
func (s *Server) runQueryHandler(w http.ResponseWriter, r *http.Request) {
	queryId := getRequiredQueryParam(r, "id")
	if s.scheduler == nil {
		panic("no scheduler configured")
	}
	err := s.scheduler.RefreshNow(r.Context(), queryId)
	if errors.Is(err, database.ErrQueryNotFound) {
		http.Error(w, "no query with that id", http.StatusNotFound)
		return
	}
	checkGormError(err)

	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GlobalStats(r.Context())
	checkGormError(err)

	_, _ = fmt.Fprintf(w, "Num queries: %d\n", stats.NumQueries)
	_, _ = fmt.Fprintf(w, "Num active: %d\n", stats.NumActive)
	_, _ = fmt.Fprintf(w, "Num error-paused: %d\n", stats.NumErrorPaused)
	_, _ = fmt.Fprintf(w, "Num abandoned-paused: %d\n", stats.NumAbandonedPaused)
	_, _ = fmt.Fprintf(w, "Num disabled: %d\n", stats.NumDisabled)
	_, _ = fmt.Fprintf(w, "Num cached responses: %d\n", stats.NumCachedResponses)
	_, _ = fmt.Fprintf(w, "Total public requests: %d\n", stats.TotalPublicRequests)
}

func (s *Server) usageStatsHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.QueryUsageStats(r.Context())
	if err != nil {
		panic(fmt.Errorf("db.QueryUsageStats: %w", err))
	}

	tbl := table.New("Query Id", "Name", "State", "Enabled", "Public Requests", "Last Access", "Last Success", "Errors")
	tbl.WithWriter(w)
	for _, row := range rows {
		tbl.AddRow(
			row.QueryId,
			row.Name,
			row.State,
			row.Enabled,
			row.PublicRequestCount,
			formatNullableTime(row.LastPublicAccessAt),
			formatNullableTime(row.LastSuccessAt),
			row.ErrorCount,
		)
	}
	tbl.Print()
}

func formatNullableTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}
