package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reportproxy/reportproxy/shared"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrResponseNotFound = errors.New("no cached response for that query")

// ResponseSave atomically replaces the cached payload for a query. Readers
// never observe a partially written response.
func (db *DB) ResponseSave(ctx context.Context, response *shared.CachedResponse) error {
	tx := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "query_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "resolved_request", "fetched_at"}),
	}).Create(response)
	if tx.Error != nil {
		return fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return nil
}

func (db *DB) ResponseGet(ctx context.Context, queryId string) (*shared.CachedResponse, error) {
	var response shared.CachedResponse
	tx := db.WithContext(ctx).Where("query_id = ?", queryId).Take(&response)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, ErrResponseNotFound
		}
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return &response, nil
}

// ResponseAge returns how stale the cached payload is, or ErrResponseNotFound
// if the query has never been fetched successfully.
func (db *DB) ResponseAge(ctx context.Context, queryId string, now time.Time) (time.Duration, error) {
	response, err := db.ResponseGet(ctx, queryId)
	if err != nil {
		return 0, err
	}
	return now.Sub(response.FetchedAt), nil
}

func (db *DB) ResponseDelete(ctx context.Context, queryId string) error {
	tx := db.WithContext(ctx).Delete(&shared.CachedResponse{}, "query_id = ?", queryId)
	if tx.Error != nil {
		return fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return nil
}
