package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/reportproxy/reportproxy/backend/server/internal/database"
	"github.com/reportproxy/reportproxy/backend/server/internal/fetcher"
	"github.com/reportproxy/reportproxy/backend/server/internal/resolve"
	"github.com/reportproxy/reportproxy/backend/server/internal/scheduler"
	"github.com/reportproxy/reportproxy/backend/server/internal/server"
	"github.com/reportproxy/reportproxy/shared"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

var ReleaseVersion string = "UNKNOWN"

func isProductionEnvironment() bool {
	return os.Getenv("REPORTPROXY_ENV") == "production"
}

func isTestEnvironment() bool {
	return os.Getenv("REPORTPROXY_TEST") != ""
}

func OpenDB() (*database.DB, error) {
	if isTestEnvironment() {
		db, err := database.OpenSQLite("file::memory:?_journal_mode=WAL&cache=shared", &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to the DB: %w", err)
		}
		underlyingDb, err := db.DB.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access underlying DB: %w", err)
		}
		underlyingDb.SetMaxOpenConns(1)
		db.Exec("PRAGMA journal_mode = WAL")
		if err := db.AddDatabaseTables(); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
		return db, nil
	}

	if isProductionEnvironment() {
		postgresDsn := os.Getenv("REPORTPROXY_POSTGRESQL_URI")
		if postgresDsn == "" {
			return nil, fmt.Errorf("REPORTPROXY_POSTGRESQL_URI must be set in production")
		}
		db, err := database.OpenPostgres(postgresDsn, &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to the DB: %w", err)
		}
		if err := db.AddDatabaseTables(); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
		if err := db.CreateIndices(); err != nil {
			return nil, fmt.Errorf("failed to create indices: %w", err)
		}
		if err := db.SetMaxIdleConns(10); err != nil {
			return nil, fmt.Errorf("failed to set max idle conns: %w", err)
		}
		return db, nil
	}

	db, err := database.OpenSQLite("reportproxy.db", &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the DB: %w", err)
	}
	if err := db.AddDatabaseTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := db.CreateIndices(); err != nil {
		return nil, fmt.Errorf("failed to create indices: %w", err)
	}
	return db, nil
}

// envCredentialSource serves a statically provisioned upstream token. Token
// minting and rotation happen outside this process; operators rotate the env
// var and restart.
type envCredentialSource struct{}

func (envCredentialSource) AccessToken(ctx context.Context, ownerRef string) (string, error) {
	token := os.Getenv("REPORTPROXY_UPSTREAM_TOKEN")
	if token == "" {
		return "", fmt.Errorf("no upstream token provisioned for owner %s", ownerRef)
	}
	return token, nil
}

func main() {
	config := shared.DefaultConfig()
	if configPath := os.Getenv("REPORTPROXY_CONFIG"); configPath != "" {
		var err error
		config, err = shared.ParseConfig(configPath)
		if err != nil {
			log.Fatalf("failed to parse config %s: %v", configPath, err)
		}
	}
	location, err := config.Location()
	if err != nil {
		log.Fatalf("invalid timezone %#v: %v", config.Timezone, err)
	}

	db, err := OpenDB()
	if err != nil {
		log.Fatalf("failed to open DB: %v", err)
	}

	var statsdClient *statsd.Client
	if isProductionEnvironment() {
		statsdClient, err = statsd.New("unix:///var/run/datadog/dsd.socket")
		if err != nil {
			fmt.Printf("Failed to start statsd: %v\n", err)
		}
	}

	upstreamFetcher := fetcher.NewFetcher(envCredentialSource{}, config.UpstreamRatePerSec, config.UpstreamRateBurst, config.FetchTimeout())
	sched := scheduler.NewScheduler(db, upstreamFetcher, resolve.NewResolver(location), config, statsdClient)

	ctx := context.Background()
	c := cron.New()
	c.Schedule(cron.Every(config.TickInterval()), cron.FuncJob(func() {
		if err := sched.Tick(ctx); err != nil {
			shared.GetLogger().Errorf("scheduler tick failed: %v", err)
		}
	}))
	c.Start()
	defer c.Stop()

	srv := server.NewServer(db, config,
		server.WithStatsd(statsdClient),
		server.WithScheduler(sched),
		server.WithReleaseVersion(ReleaseVersion),
		server.WithAdminCredentials(os.Getenv("REPORTPROXY_ADMIN_USERNAME"), os.Getenv("REPORTPROXY_ADMIN_PASSWORD")),
		server.WithCron(func(ctx context.Context, db *database.DB, stats *statsd.Client) error {
			return sched.Tick(ctx)
		}),
		server.IsProductionEnvironment(isProductionEnvironment()),
		server.IsTestEnvironment(isTestEnvironment()),
	)
	if err := srv.Run(ctx, config.ListenAddr); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
