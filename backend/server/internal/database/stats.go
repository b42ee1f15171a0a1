package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/reportproxy/reportproxy/shared"
)

type GlobalStats struct {
	NumQueries          int64
	NumActive           int64
	NumErrorPaused      int64
	NumAbandonedPaused  int64
	NumDisabled         int64
	NumCachedResponses  int64
	TotalPublicRequests int64
}

func (db *DB) GlobalStats(ctx context.Context) (*GlobalStats, error) {
	var stats GlobalStats
	counts := []struct {
		dest  *int64
		where string
		args  []any
	}{
		{&stats.NumQueries, "", nil},
		{&stats.NumActive, "enabled = ? AND error_paused = ? AND abandoned_paused = ?", []any{true, false, false}},
		{&stats.NumErrorPaused, "error_paused = ?", []any{true}},
		{&stats.NumAbandonedPaused, "abandoned_paused = ?", []any{true}},
		{&stats.NumDisabled, "enabled = ?", []any{false}},
	}
	for _, c := range counts {
		tx := db.WithContext(ctx).Model(&shared.QueryDefinition{})
		if c.where != "" {
			tx = tx.Where(c.where, c.args...)
		}
		if tx = tx.Count(c.dest); tx.Error != nil {
			return nil, fmt.Errorf("tx.Error: %w", tx.Error)
		}
	}

	tx := db.WithContext(ctx).Model(&shared.CachedResponse{}).Count(&stats.NumCachedResponses)
	if tx.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	row := db.WithContext(ctx).Raw("SELECT COALESCE(SUM(public_request_count), 0) FROM query_definitions").Row()
	if err := row.Scan(&stats.TotalPublicRequests); err != nil {
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	return &stats, nil
}

type QueryUsageRow struct {
	QueryId            string
	Name               string
	State              shared.QueryState
	Enabled            bool
	PublicRequestCount int64
	LastPublicAccessAt *time.Time
	LastSuccessAt      *time.Time
	ErrorCount         int64
}

// QueryUsageStats returns one row per query for the admin usage table,
// ordered by public request volume.
func (db *DB) QueryUsageStats(ctx context.Context) ([]QueryUsageRow, error) {
	queries, err := db.QueryList(ctx, "")
	if err != nil {
		return nil, err
	}
	rows := make([]QueryUsageRow, 0, len(queries))
	for _, q := range queries {
		errorCount, err := db.CountErrors(ctx, q.QueryId)
		if err != nil {
			return nil, err
		}
		rows = append(rows, QueryUsageRow{
			QueryId:            q.QueryId,
			Name:               q.Name,
			State:              q.State(),
			Enabled:            q.Enabled,
			PublicRequestCount: q.PublicRequestCount,
			LastPublicAccessAt: q.LastPublicAccessAt,
			LastSuccessAt:      q.LastSuccessAt,
			ErrorCount:         errorCount,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].PublicRequestCount > rows[j].PublicRequestCount
	})
	return rows, nil
}
