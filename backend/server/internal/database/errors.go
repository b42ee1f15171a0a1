package database

import (
	"context"
	"fmt"

	"github.com/reportproxy/reportproxy/shared"
)

// ErrorsForQuery returns the bounded error log for a query, newest first.
func (db *DB) ErrorsForQuery(ctx context.Context, queryId string) ([]*shared.QueryError, error) {
	var queryErrors []*shared.QueryError
	tx := db.WithContext(ctx).Where("query_id = ?", queryId).Order("timestamp DESC, id DESC").Find(&queryErrors)
	if tx.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return queryErrors, nil
}

// ClearErrors is the manual circuit-breaker reset: it empties the error log,
// zeroes the consecutive error counter, and lifts the error pause. An
// abandonment pause, if present, stays in place.
func (db *DB) ClearErrors(ctx context.Context, queryId string) error {
	r := db.WithContext(ctx).Delete(&shared.QueryError{}, "query_id = ?", queryId)
	if r.Error != nil {
		return fmt.Errorf("failed to delete error log: %w", r.Error)
	}
	r = db.WithContext(ctx).Model(&shared.QueryDefinition{}).Where("query_id = ?", queryId).Updates(map[string]any{
		"consecutive_error_count": 0,
		"error_paused":            false,
	})
	if r.Error != nil {
		return fmt.Errorf("failed to reset error state: %w", r.Error)
	}

	return nil
}

// DeleteErrors empties the error log without touching the error counter or
// any pause flag.
func (db *DB) DeleteErrors(ctx context.Context, queryId string) error {
	r := db.WithContext(ctx).Delete(&shared.QueryError{}, "query_id = ?", queryId)
	if r.Error != nil {
		return fmt.Errorf("failed to delete error log: %w", r.Error)
	}

	return nil
}

func (db *DB) CountErrors(ctx context.Context, queryId string) (int64, error) {
	var cnt int64
	tx := db.WithContext(ctx).Model(&shared.QueryError{}).Where("query_id = ?", queryId).Count(&cnt)
	if tx.Error != nil {
		return 0, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return cnt, nil
}
