// Package scheduler drives periodic and adhoc refreshes of registered
// queries: due-query selection, per-query fetch exclusivity, outcome routing
// to the response cache and the error breaker, and abandonment sweeps.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/reportproxy/reportproxy/backend/server/internal/database"
	"github.com/reportproxy/reportproxy/backend/server/internal/fetcher"
	"github.com/reportproxy/reportproxy/backend/server/internal/resolve"
	"github.com/reportproxy/reportproxy/backend/server/internal/transform"
	"github.com/reportproxy/reportproxy/shared"

	"github.com/DataDog/datadog-go/statsd"
)

// QueryFetcher performs the upstream call for a resolved query.
type QueryFetcher interface {
	Fetch(ctx context.Context, ownerRef, resolvedUri string) ([]byte, error)
}

type Scheduler struct {
	db       *database.DB
	fetcher  QueryFetcher
	resolver *resolve.Resolver
	config   shared.Config
	statsd   statsd.ClientInterface
	leases   *leaseRegistry

	// now is swappable so tests can control the clock
	now func() time.Time
}

func NewScheduler(db *database.DB, fetcher QueryFetcher, resolver *resolve.Resolver, config shared.Config, statsdClient statsd.ClientInterface) *Scheduler {
	return &Scheduler{
		db:       db,
		fetcher:  fetcher,
		resolver: resolver,
		config:   config,
		statsd:   statsdClient,
		leases:   newLeaseRegistry(),
		now:      time.Now,
	}
}

// Tick runs one scheduling round: mark abandoned queries, then refresh every
// due query with bounded parallelism. Queries whose lease is already held are
// skipped silently.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now().UTC()

	if err := s.sweepAbandoned(ctx, now); err != nil {
		shared.GetLogger().Warnf("abandonment sweep failed: %v", err)
	}

	due, err := s.db.DueQueries(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to select due queries: %w", err)
	}
	if s.statsd != nil {
		_ = s.statsd.Gauge("reportproxy.scheduler.due_queries", float64(len(due)), []string{}, 1.0)
	}

	workers := s.config.SchedulerWorkers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for _, query := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(query *shared.QueryDefinition) {
			defer wg.Done()
			defer func() { <-sem }()
			s.refresh(ctx, query)
		}(query)
	}
	wg.Wait()
	return nil
}

// RefreshNow performs an adhoc refresh for a single query, bypassing the
// due-time check. It goes through the same lease and outcome routing as a
// scheduled refresh and still respects the query's state: paused or disabled
// queries are not fetched.
func (s *Scheduler) RefreshNow(ctx context.Context, queryId string) error {
	query, err := s.db.QueryGet(ctx, queryId)
	if err != nil {
		return err
	}
	if !query.Enabled || query.State() != shared.StateActive {
		return nil
	}
	s.refresh(ctx, query)
	return nil
}

func (s *Scheduler) sweepAbandoned(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-s.config.AbandonAfter())
	abandoned, err := s.db.QueriesToAbandon(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, query := range abandoned {
		if err := s.db.MarkAbandoned(ctx, query.QueryId); err != nil {
			return err
		}
		shared.GetLogger().Infof("paused abandoned query %s (no public access since %v)", query.QueryId, query.LastPublicAccessAt)
		if s.statsd != nil {
			_ = s.statsd.Incr("reportproxy.scheduler.abandoned", []string{}, 1.0)
		}
	}
	return nil
}

// refresh runs one fetch attempt for a query under its lease. A failure of
// any kind feeds the error breaker; only a success touches the cache.
func (s *Scheduler) refresh(ctx context.Context, query *shared.QueryDefinition) {
	if !s.leases.TryAcquire(query.QueryId) {
		return
	}
	defer s.leases.Release(query.QueryId)

	now := s.now().UTC()
	if err := s.db.QueryMarkAttempt(ctx, query.QueryId, now); err != nil {
		shared.GetLogger().Errorf("failed to mark attempt for query %s: %v", query.QueryId, err)
		return
	}

	resolvedUri, err := s.resolver.Resolve(query.Request, now)
	if err != nil {
		s.recordFailure(ctx, query, err, now)
		return
	}

	payload, err := s.fetcher.Fetch(ctx, query.OwnerRef, resolvedUri)
	if err != nil {
		s.recordFailure(ctx, query, err, now)
		return
	}

	if query.Anonymize {
		payload, err = transform.Anonymize(payload)
		if err != nil {
			s.recordFailure(ctx, query, fmt.Errorf("anonymization failed: %w", err), now)
			return
		}
	}

	if err := s.db.ResponseSave(ctx, &shared.CachedResponse{
		QueryId:         query.QueryId,
		Payload:         payload,
		ResolvedRequest: resolvedUri,
		FetchedAt:       now,
	}); err != nil {
		shared.GetLogger().Errorf("failed to save response for query %s: %v", query.QueryId, err)
		return
	}
	if err := s.db.RecordFetchSuccess(ctx, query.QueryId, now, s.config.RetainErrorsOnSuccess); err != nil {
		shared.GetLogger().Errorf("failed to record fetch success for query %s: %v", query.QueryId, err)
		return
	}
	if s.statsd != nil {
		_ = s.statsd.Incr("reportproxy.fetch.success", []string{}, 1.0)
	}
}

func (s *Scheduler) recordFailure(ctx context.Context, query *shared.QueryDefinition, fetchErr error, now time.Time) {
	paused, err := s.db.RecordFetchFailure(ctx, query.QueryId, fetchErr.Error(), now, s.config.ErrorThreshold, s.config.ErrorLogSize)
	if err != nil {
		if !errors.Is(err, database.ErrQueryNotFound) {
			shared.GetLogger().Errorf("failed to record fetch failure for query %s: %v", query.QueryId, err)
		}
		return
	}
	shared.GetLogger().Warnf("fetch failed for query %s: %v", query.QueryId, fetchErr)
	if s.statsd != nil {
		_ = s.statsd.Incr("reportproxy.fetch.failure", []string{"kind:" + failureKindTag(fetchErr)}, 1.0)
	}
	if paused {
		shared.GetLogger().Warnf("query %s paused after %d consecutive errors", query.QueryId, s.config.ErrorThreshold)
		if s.statsd != nil {
			_ = s.statsd.Incr("reportproxy.scheduler.error_paused", []string{}, 1.0)
		}
	}
}

func failureKindTag(err error) string {
	var fetchErr *fetcher.FetchError
	if errors.As(err, &fetchErr) {
		return string(fetchErr.Kind)
	}
	var templateErr *resolve.TemplateError
	if errors.As(err, &templateErr) {
		return "template_error"
	}
	return "other"
}
