package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/reportproxy/reportproxy/backend/server/internal/database"
	"github.com/reportproxy/reportproxy/backend/server/internal/scheduler"
	"github.com/reportproxy/reportproxy/shared"
	httptrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/net/http"
)

type Server struct {
	db        *database.DB
	config    shared.Config
	statsd    *statsd.Client
	scheduler *scheduler.Scheduler

	isProductionEnvironment bool
	isTestEnvironment       bool
	releaseVersion          string
	adminUsername           string
	adminPassword           string
	cronFn                  CronFn
}

type CronFn func(ctx context.Context, db *database.DB, stats *statsd.Client) error
type Option func(*Server)

func WithStatsd(statsd *statsd.Client) Option {
	return func(s *Server) {
		s.statsd = statsd
	}
}

func WithScheduler(sched *scheduler.Scheduler) Option {
	return func(s *Server) {
		s.scheduler = sched
	}
}

func WithReleaseVersion(releaseVersion string) Option {
	return func(s *Server) {
		s.releaseVersion = releaseVersion
	}
}

func WithCron(cronFn CronFn) Option {
	return func(s *Server) {
		s.cronFn = cronFn
	}
}

// WithAdminCredentials sets the basic auth credentials protecting the admin
// API. With no credentials set the admin API rejects every request.
func WithAdminCredentials(username, password string) Option {
	return func(s *Server) {
		s.adminUsername = username
		s.adminPassword = password
	}
}

func IsProductionEnvironment(v bool) Option {
	return func(s *Server) {
		s.isProductionEnvironment = v
	}
}

func IsTestEnvironment(v bool) Option {
	return func(s *Server) {
		s.isTestEnvironment = v
	}
}

func NewServer(db *database.DB, config shared.Config, options ...Option) *Server {
	srv := Server{db: db, config: config}
	for _, option := range options {
		option(&srv)
	}
	if srv.isProductionEnvironment && srv.isTestEnvironment {
		panic(fmt.Errorf("cannot create a server that is both a prod environment and a test environment: %#v", srv))
	}
	return &srv
}

func (s *Server) Run(ctx context.Context, addr string) error {
	mux := httptrace.NewServeMux()

	if s.isProductionEnvironment {
		defer configureObservability(mux, s.releaseVersion)()
	}
	middlewares := mergeMiddlewares(
		withPanicGuard(),
		withLogging(s.statsd, os.Stdout),
	)
	adminMiddlewares := mergeMiddlewares(
		withPanicGuard(),
		withLogging(s.statsd, os.Stdout),
		withBasicAuth(s.adminUsername, s.adminPassword),
	)

	mux.Handle("/query", middlewares(http.HandlerFunc(s.publicQueryHandler)))
	mux.Handle("/healthcheck", middlewares(http.HandlerFunc(s.healthCheckHandler)))
	mux.Handle("/api/v1/trigger-cron", adminMiddlewares(http.HandlerFunc(s.triggerCronHandler)))
	mux.Handle("/internal/api/v1/create-query", adminMiddlewares(http.HandlerFunc(s.createQueryHandler)))
	mux.Handle("/internal/api/v1/update-query", adminMiddlewares(http.HandlerFunc(s.updateQueryHandler)))
	mux.Handle("/internal/api/v1/delete-query", adminMiddlewares(http.HandlerFunc(s.deleteQueryHandler)))
	mux.Handle("/internal/api/v1/get-query", adminMiddlewares(http.HandlerFunc(s.getQueryHandler)))
	mux.Handle("/internal/api/v1/list-queries", adminMiddlewares(http.HandlerFunc(s.listQueriesHandler)))
	mux.Handle("/internal/api/v1/set-status", adminMiddlewares(http.HandlerFunc(s.setStatusHandler)))
	mux.Handle("/internal/api/v1/set-enabled", adminMiddlewares(http.HandlerFunc(s.setEnabledHandler)))
	mux.Handle("/internal/api/v1/clear-errors", adminMiddlewares(http.HandlerFunc(s.clearErrorsHandler)))
	mux.Handle("/internal/api/v1/delete-errors", adminMiddlewares(http.HandlerFunc(s.deleteErrorsHandler)))
	mux.Handle("/internal/api/v1/get-errors", adminMiddlewares(http.HandlerFunc(s.getErrorsHandler)))
	mux.Handle("/internal/api/v1/run-query", adminMiddlewares(http.HandlerFunc(s.runQueryHandler)))
	mux.Handle("/internal/api/v1/drop-cache", adminMiddlewares(http.HandlerFunc(s.dropCacheHandler)))
	mux.Handle("/internal/api/v1/stats", adminMiddlewares(http.HandlerFunc(s.statsHandler)))
	mux.Handle("/internal/api/v1/usage-stats", adminMiddlewares(http.HandlerFunc(s.usageStatsHandler)))
	if s.isTestEnvironment {
		mux.Handle("/internal/api/v1/get-num-connections", middlewares(http.HandlerFunc(s.getNumConnectionsHandler)))
	}

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	fmt.Printf("Listening on %s\n", addr)
	if err := httpServer.ListenAndServe(); err != nil {
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http.ListenAndServe: %w", err)
		}
	}

	return nil
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		panic(fmt.Errorf("failed to ping DB: %w", err))
	}
	w.Write([]byte("OK"))
}

func (s *Server) getNumConnectionsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats()
	if err != nil {
		panic(err)
	}

	_, _ = fmt.Fprintf(w, "%#v", stats.OpenConnections)
}

func (s *Server) triggerCronHandler(w http.ResponseWriter, r *http.Request) {
	if s.cronFn == nil {
		panic("no cron function configured")
	}
	err := s.cronFn(r.Context(), s.db, s.statsd)
	if err != nil {
		panic(err)
	}

	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}
