package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/reportproxy/reportproxy/shared"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testDb *DB

const testDBDSN = "file::memory:?_journal_mode=WAL&cache=shared"

func TestMain(m *testing.M) {
	db, err := OpenSQLite(testDBDSN, &gorm.Config{})
	if err != nil {
		panic(fmt.Errorf("failed to connect to the DB: %w", err))
	}
	underlyingDb, err := db.DB.DB()
	if err != nil {
		panic(fmt.Errorf("failed to access underlying DB: %w", err))
	}
	underlyingDb.SetMaxOpenConns(1)
	db.Exec("PRAGMA journal_mode = WAL")
	if err := db.AddDatabaseTables(); err != nil {
		panic(fmt.Errorf("failed to add database tables: %w", err))
	}
	if err := db.CreateIndices(); err != nil {
		panic(fmt.Errorf("failed to create indices: %w", err))
	}
	testDb = db
	m.Run()
}

func makeTestQuery(t *testing.T, refreshInterval int) *shared.QueryDefinition {
	t.Helper()
	now := time.Date(2022, 10, 18, 12, 0, 0, 0, time.UTC)
	query := &shared.QueryDefinition{
		QueryId:         uuid.Must(uuid.NewRandom()).String(),
		OwnerRef:        "test-owner",
		Name:            "Test query",
		Request:         "https://upstream.example.com/data?ids=ga:12345&start-date={7daysago}&end-date={today}",
		RefreshInterval: refreshInterval,
		Formats:         shared.FormatList{shared.FormatJson, shared.FormatCsv},
		Enabled:         true,
		CreatedAt:       now,
		ModifiedAt:      now,
	}
	require.NoError(t, testDb.QueryCreate(context.Background(), query))
	return query
}

func dueIds(t *testing.T, now time.Time) map[string]bool {
	t.Helper()
	due, err := testDb.DueQueries(context.Background(), now)
	require.NoError(t, err)
	ids := make(map[string]bool)
	for _, query := range due {
		ids[query.QueryId] = true
	}
	return ids
}

func TestDueQueries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2022, 10, 18, 12, 0, 0, 0, time.UTC)

	neverFetched := makeTestQuery(t, 3600)
	recentlyFetched := makeTestQuery(t, 3600)
	require.NoError(t, testDb.QueryMarkAttempt(ctx, recentlyFetched.QueryId, now.Add(-10*time.Minute)))
	staleFetched := makeTestQuery(t, 3600)
	require.NoError(t, testDb.QueryMarkAttempt(ctx, staleFetched.QueryId, now.Add(-2*time.Hour)))
	disabled := makeTestQuery(t, 3600)
	require.NoError(t, testDb.SetEnabled(ctx, disabled.QueryId, false))
	errorPaused := makeTestQuery(t, 3600)
	require.NoError(t, testDb.SetStatus(ctx, errorPaused.QueryId, shared.StatePausedError))
	abandonedPaused := makeTestQuery(t, 3600)
	require.NoError(t, testDb.SetStatus(ctx, abandonedPaused.QueryId, shared.StatePausedAbandoned))

	ids := dueIds(t, now)
	require.True(t, ids[neverFetched.QueryId])
	require.True(t, ids[staleFetched.QueryId])
	require.False(t, ids[recentlyFetched.QueryId])
	require.False(t, ids[disabled.QueryId])
	require.False(t, ids[errorPaused.QueryId])
	require.False(t, ids[abandonedPaused.QueryId])

	// A query becomes due again exactly one interval after its last attempt
	require.False(t, dueIds(t, now.Add(-70*time.Minute))[staleFetched.QueryId])
	require.True(t, dueIds(t, now.Add(-time.Hour))[staleFetched.QueryId])
}

func TestRecordFetchFailureThresholdAndPruning(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2022, 10, 18, 12, 0, 0, 0, time.UTC)
	query := makeTestQuery(t, 3600)

	// Threshold 3, log capped at 2
	for i := 0; i < 5; i++ {
		paused, err := testDb.RecordFetchFailure(ctx, query.QueryId, fmt.Sprintf("failure %d", i), now.Add(time.Duration(i)*time.Minute), 3, 2)
		require.NoError(t, err)
		require.Equal(t, i == 2, paused, "only the attempt that crosses the threshold reports a pause")
	}

	loaded, err := testDb.QueryGet(ctx, query.QueryId)
	require.NoError(t, err)
	require.Equal(t, 5, loaded.ConsecutiveErrorCount)
	require.Equal(t, shared.StatePausedError, loaded.State())

	queryErrors, err := testDb.ErrorsForQuery(ctx, query.QueryId)
	require.NoError(t, err)
	require.Len(t, queryErrors, 2)
	require.Equal(t, "failure 4", queryErrors[0].Message)
	require.Equal(t, "failure 3", queryErrors[1].Message)

	// Success resets the breaker but keeps the log when asked to
	require.NoError(t, testDb.RecordFetchSuccess(ctx, query.QueryId, now.Add(time.Hour), true))
	loaded, err = testDb.QueryGet(ctx, query.QueryId)
	require.NoError(t, err)
	require.Equal(t, 0, loaded.ConsecutiveErrorCount)
	require.Equal(t, shared.StateActive, loaded.State())
	queryErrors, err = testDb.ErrorsForQuery(ctx, query.QueryId)
	require.NoError(t, err)
	require.Len(t, queryErrors, 2)
}

func TestClearErrorsResumesOnlyErrorPause(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2022, 10, 18, 12, 0, 0, 0, time.UTC)
	query := makeTestQuery(t, 3600)

	_, err := testDb.RecordFetchFailure(ctx, query.QueryId, "failure", now, 1, 10)
	require.NoError(t, err)
	require.NoError(t, testDb.MarkAbandoned(ctx, query.QueryId))

	require.NoError(t, testDb.ClearErrors(ctx, query.QueryId))
	loaded, err := testDb.QueryGet(ctx, query.QueryId)
	require.NoError(t, err)
	require.False(t, loaded.ErrorPaused)
	require.Equal(t, 0, loaded.ConsecutiveErrorCount)
	// The abandonment pause is a separate cause and survives the reset
	require.True(t, loaded.AbandonedPaused)
	require.Equal(t, shared.StatePausedAbandoned, loaded.State())

	queryErrors, err := testDb.ErrorsForQuery(ctx, query.QueryId)
	require.NoError(t, err)
	require.Empty(t, queryErrors)
}

func TestResponseSaveUpserts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2022, 10, 18, 12, 0, 0, 0, time.UTC)
	query := makeTestQuery(t, 3600)

	require.NoError(t, testDb.ResponseSave(ctx, &shared.CachedResponse{
		QueryId:         query.QueryId,
		Payload:         []byte(`{"v": 1}`),
		ResolvedRequest: "https://upstream.example.com/data?start-date=2022-10-11",
		FetchedAt:       now,
	}))
	require.NoError(t, testDb.ResponseSave(ctx, &shared.CachedResponse{
		QueryId:         query.QueryId,
		Payload:         []byte(`{"v": 2}`),
		ResolvedRequest: "https://upstream.example.com/data?start-date=2022-10-12",
		FetchedAt:       now.Add(time.Hour),
	}))

	cached, err := testDb.ResponseGet(ctx, query.QueryId)
	require.NoError(t, err)
	require.Equal(t, []byte(`{"v": 2}`), cached.Payload)
	require.Equal(t, now.Add(time.Hour), cached.FetchedAt.UTC())

	age, err := testDb.ResponseAge(ctx, query.QueryId, now.Add(90*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 30*time.Minute, age)
}

func TestQueriesToAbandon(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2022, 10, 18, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-30 * 24 * time.Hour)

	staleAccess := makeTestQuery(t, 3600)
	require.NoError(t, testDb.RecordPublicAccess(ctx, staleAccess.QueryId, cutoff.Add(-time.Hour)))
	freshAccess := makeTestQuery(t, 3600)
	require.NoError(t, testDb.RecordPublicAccess(ctx, freshAccess.QueryId, now.Add(-time.Hour)))
	// Never accessed: abandonment is measured from creation
	neverAccessedOld := makeTestQuery(t, 3600)
	require.NoError(t, testDb.Model(&shared.QueryDefinition{}).Where("query_id = ?", neverAccessedOld.QueryId).Update("created_at", cutoff.Add(-time.Hour)).Error)
	neverAccessedNew := makeTestQuery(t, 3600)

	toAbandon, err := testDb.QueriesToAbandon(ctx, cutoff)
	require.NoError(t, err)
	ids := make(map[string]bool)
	for _, query := range toAbandon {
		ids[query.QueryId] = true
	}
	require.True(t, ids[staleAccess.QueryId])
	require.True(t, ids[neverAccessedOld.QueryId])
	require.False(t, ids[freshAccess.QueryId])
	require.False(t, ids[neverAccessedNew.QueryId])

	require.NoError(t, testDb.MarkAbandoned(ctx, staleAccess.QueryId))
	toAbandon, err = testDb.QueriesToAbandon(ctx, cutoff)
	require.NoError(t, err)
	for _, query := range toAbandon {
		require.NotEqual(t, staleAccess.QueryId, query.QueryId)
	}
}

func TestQueryDeleteCascades(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2022, 10, 18, 12, 0, 0, 0, time.UTC)
	query := makeTestQuery(t, 3600)
	require.NoError(t, testDb.ResponseSave(ctx, &shared.CachedResponse{QueryId: query.QueryId, Payload: []byte(`{}`), FetchedAt: now}))
	_, err := testDb.RecordFetchFailure(ctx, query.QueryId, "failure", now, 10, 10)
	require.NoError(t, err)

	countBefore, err := testDb.CountQueries(ctx)
	require.NoError(t, err)

	require.NoError(t, testDb.QueryDelete(ctx, query.QueryId))

	countAfter, err := testDb.CountQueries(ctx)
	require.NoError(t, err)
	require.Equal(t, countBefore-1, countAfter)
	_, err = testDb.QueryGet(ctx, query.QueryId)
	require.ErrorIs(t, err, ErrQueryNotFound)
	_, err = testDb.ResponseGet(ctx, query.QueryId)
	require.ErrorIs(t, err, ErrResponseNotFound)
	count, err := testDb.CountErrors(ctx, query.QueryId)
	require.NoError(t, err)
	require.Zero(t, count)

	require.ErrorIs(t, testDb.QueryDelete(ctx, query.QueryId), ErrQueryNotFound)
}

func TestRecordPublicAccessIncrements(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2022, 10, 18, 12, 0, 0, 0, time.UTC)
	query := makeTestQuery(t, 3600)

	require.NoError(t, testDb.RecordPublicAccess(ctx, query.QueryId, now))
	require.NoError(t, testDb.RecordPublicAccess(ctx, query.QueryId, now.Add(time.Minute)))

	loaded, err := testDb.QueryGet(ctx, query.QueryId)
	require.NoError(t, err)
	require.Equal(t, int64(2), loaded.PublicRequestCount)
	require.NotNil(t, loaded.LastPublicAccessAt)
	require.Equal(t, now.Add(time.Minute), loaded.LastPublicAccessAt.UTC())
}
