package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reportproxy/reportproxy/shared"

	"gorm.io/gorm"
)

var ErrQueryNotFound = errors.New("no query with that id")

func (db *DB) QueryCreate(ctx context.Context, query *shared.QueryDefinition) error {
	tx := db.WithContext(ctx).Create(query)
	if tx.Error != nil {
		return fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return nil
}

func (db *DB) QueryGet(ctx context.Context, queryId string) (*shared.QueryDefinition, error) {
	var query shared.QueryDefinition
	tx := db.WithContext(ctx).Where("query_id = ?", queryId).Take(&query)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, ErrQueryNotFound
		}
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return &query, nil
}

func (db *DB) QueryList(ctx context.Context, ownerRef string) ([]*shared.QueryDefinition, error) {
	var queries []*shared.QueryDefinition
	tx := db.WithContext(ctx)
	if ownerRef != "" {
		tx = tx.Where("owner_ref = ?", ownerRef)
	}
	tx = tx.Order("created_at ASC").Find(&queries)
	if tx.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return queries, nil
}

// QueryUpdate overwrites the owner-controlled fields of an existing query and
// bumps modified_at. Scheduler bookkeeping fields are left untouched.
func (db *DB) QueryUpdate(ctx context.Context, query *shared.QueryDefinition) error {
	tx := db.WithContext(ctx).Model(&shared.QueryDefinition{}).Where("query_id = ?", query.QueryId).Updates(map[string]any{
		"name":             query.Name,
		"request":          query.Request,
		"refresh_interval": query.RefreshInterval,
		"formats":          query.Formats,
		"anonymize":        query.Anonymize,
		"enabled":          query.Enabled,
		"modified_at":      time.Now().UTC(),
	})
	if tx.Error != nil {
		return fmt.Errorf("tx.Error: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrQueryNotFound
	}

	return nil
}

// QueryDelete removes a query along with its cached response and error log.
func (db *DB) QueryDelete(ctx context.Context, queryId string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := tx.Delete(&shared.QueryDefinition{}, "query_id = ?", queryId)
		if r.Error != nil {
			return fmt.Errorf("failed to delete query: %w", r.Error)
		}
		if r.RowsAffected == 0 {
			return ErrQueryNotFound
		}
		if r := tx.Delete(&shared.CachedResponse{}, "query_id = ?", queryId); r.Error != nil {
			return fmt.Errorf("failed to delete cached response: %w", r.Error)
		}
		if r := tx.Delete(&shared.QueryError{}, "query_id = ?", queryId); r.Error != nil {
			return fmt.Errorf("failed to delete error log: %w", r.Error)
		}
		return nil
	})
}

// DueQueries returns the enabled, unpaused queries whose refresh interval has
// elapsed since the last attempt. Queries that have never been attempted are
// always due.
func (db *DB) DueQueries(ctx context.Context, now time.Time) ([]*shared.QueryDefinition, error) {
	var queries []*shared.QueryDefinition
	tx := db.WithContext(ctx).
		Where("enabled = ? AND error_paused = ? AND abandoned_paused = ?", true, false, false).
		Find(&queries)
	if tx.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	due := make([]*shared.QueryDefinition, 0, len(queries))
	for _, q := range queries {
		if q.LastAttemptAt == nil || !now.Before(q.LastAttemptAt.Add(time.Duration(q.RefreshInterval)*time.Second)) {
			due = append(due, q)
		}
	}
	return due, nil
}

func (db *DB) QueryMarkAttempt(ctx context.Context, queryId string, at time.Time) error {
	tx := db.WithContext(ctx).Model(&shared.QueryDefinition{}).Where("query_id = ?", queryId).Update("last_attempt_at", at)
	if tx.Error != nil {
		return fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return nil
}

// RecordFetchSuccess resets the consecutive error counter and stamps the
// success time. The error log is cleared only when the server is configured
// to drop errors on success.
func (db *DB) RecordFetchSuccess(ctx context.Context, queryId string, at time.Time, retainErrors bool) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := tx.Model(&shared.QueryDefinition{}).Where("query_id = ?", queryId).Updates(map[string]any{
			"consecutive_error_count": 0,
			"error_paused":            false,
			"last_success_at":         at,
		})
		if r.Error != nil {
			return fmt.Errorf("failed to record fetch success: %w", r.Error)
		}
		if !retainErrors {
			if r := tx.Delete(&shared.QueryError{}, "query_id = ?", queryId); r.Error != nil {
				return fmt.Errorf("failed to clear error log: %w", r.Error)
			}
		}
		return nil
	})
}

// RecordFetchFailure increments the consecutive error counter, appends to the
// bounded error log, and pauses the query once the counter reaches the
// threshold. Returns whether this failure tripped the pause.
func (db *DB) RecordFetchFailure(ctx context.Context, queryId string, message string, at time.Time, threshold, logSize int) (bool, error) {
	paused := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var query shared.QueryDefinition
		if r := tx.Where("query_id = ?", queryId).Take(&query); r.Error != nil {
			if errors.Is(r.Error, gorm.ErrRecordNotFound) {
				return ErrQueryNotFound
			}
			return fmt.Errorf("failed to load query: %w", r.Error)
		}

		newCount := query.ConsecutiveErrorCount + 1
		updates := map[string]any{"consecutive_error_count": newCount}
		if newCount >= threshold && !query.ErrorPaused {
			updates["error_paused"] = true
			paused = true
		}
		if r := tx.Model(&shared.QueryDefinition{}).Where("query_id = ?", queryId).Updates(updates); r.Error != nil {
			return fmt.Errorf("failed to record fetch failure: %w", r.Error)
		}

		if r := tx.Create(&shared.QueryError{QueryId: queryId, Message: message, Timestamp: at}); r.Error != nil {
			return fmt.Errorf("failed to append error log: %w", r.Error)
		}
		// Prune the log back down to its cap, dropping the oldest rows.
		pruneSql := `DELETE FROM query_errors WHERE query_id = ? AND id NOT IN (
			SELECT id FROM query_errors WHERE query_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?
		)`
		if r := tx.Exec(pruneSql, queryId, queryId, logSize); r.Error != nil {
			return fmt.Errorf("failed to prune error log: %w", r.Error)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return paused, nil
}

// SetStatus applies an owner's explicit state change. Setting a query active
// clears both pause causes and zeroes the error counter so the next tick
// starts from a clean slate.
func (db *DB) SetStatus(ctx context.Context, queryId string, state shared.QueryState) error {
	updates := map[string]any{"modified_at": time.Now().UTC()}
	switch state {
	case shared.StateActive:
		updates["error_paused"] = false
		updates["abandoned_paused"] = false
		updates["consecutive_error_count"] = 0
	case shared.StatePausedError:
		updates["error_paused"] = true
	case shared.StatePausedAbandoned:
		updates["abandoned_paused"] = true
	default:
		return fmt.Errorf("unknown query state %#v", state)
	}
	tx := db.WithContext(ctx).Model(&shared.QueryDefinition{}).Where("query_id = ?", queryId).Updates(updates)
	if tx.Error != nil {
		return fmt.Errorf("tx.Error: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrQueryNotFound
	}

	return nil
}

func (db *DB) SetEnabled(ctx context.Context, queryId string, enabled bool) error {
	tx := db.WithContext(ctx).Model(&shared.QueryDefinition{}).Where("query_id = ?", queryId).Updates(map[string]any{
		"enabled":     enabled,
		"modified_at": time.Now().UTC(),
	})
	if tx.Error != nil {
		return fmt.Errorf("tx.Error: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrQueryNotFound
	}

	return nil
}

// ClearAbandonedPause lifts the abandonment pause, leaving any error pause in
// place. Used when a public request arrives for an abandoned query.
func (db *DB) ClearAbandonedPause(ctx context.Context, queryId string) error {
	tx := db.WithContext(ctx).Model(&shared.QueryDefinition{}).Where("query_id = ?", queryId).Update("abandoned_paused", false)
	if tx.Error != nil {
		return fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return nil
}

// QueriesToAbandon returns enabled, not-yet-abandoned queries whose last
// public access (or creation, if never accessed) is older than the cutoff.
func (db *DB) QueriesToAbandon(ctx context.Context, cutoff time.Time) ([]*shared.QueryDefinition, error) {
	var queries []*shared.QueryDefinition
	tx := db.WithContext(ctx).
		Where("enabled = ? AND abandoned_paused = ?", true, false).
		Where("(last_public_access_at IS NOT NULL AND last_public_access_at < ?) OR (last_public_access_at IS NULL AND created_at < ?)", cutoff, cutoff).
		Find(&queries)
	if tx.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return queries, nil
}

func (db *DB) MarkAbandoned(ctx context.Context, queryId string) error {
	tx := db.WithContext(ctx).Model(&shared.QueryDefinition{}).Where("query_id = ?", queryId).Update("abandoned_paused", true)
	if tx.Error != nil {
		return fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return nil
}

// RecordPublicAccess bumps the public request counter and access timestamp.
func (db *DB) RecordPublicAccess(ctx context.Context, queryId string, at time.Time) error {
	tx := db.WithContext(ctx).Exec(
		"UPDATE query_definitions SET public_request_count = public_request_count + 1, last_public_access_at = ? WHERE query_id = ?",
		at, queryId)
	if tx.Error != nil {
		return fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return nil
}

func (db *DB) CountQueries(ctx context.Context) (int64, error) {
	var cnt int64
	tx := db.WithContext(ctx).Model(&shared.QueryDefinition{}).Count(&cnt)
	if tx.Error != nil {
		return 0, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return cnt, nil
}
