// Package main is the entry point for the library API server.
// It wires together configuration, the document store, and the HTTP router.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aoideee/locallibrary/internal/config"
	"github.com/aoideee/locallibrary/internal/data"
	"github.com/aoideee/locallibrary/internal/docstore"
)

// appVersion is the current version of the API, shown in logs.
const appVersion = "1.0.0"

// dialTimeout bounds a single connection attempt to the store.
const dialTimeout = 10 * time.Second

// serverConfig holds the settings read from the environment, after any
// command-line overrides.
type serverConfig struct {
	port        int
	environment string
	staticDir   string
	db          struct {
		driver        string // mongo, postgres or memory
		mongoURI      string
		mongoDatabase string
		dsn           string
		retryInitial  time.Duration
		retryMax      time.Duration
		pingInterval  time.Duration
	}
	limiter struct {
		enabled bool
		rps     float64
		burst   int
	}
	cors struct {
		origin string
	}
	log struct {
		level  string
		format string
	}
}

// applicationDependencies bundles every shared resource that HTTP handlers need.
type applicationDependencies struct {
	config serverConfig
	logger *slog.Logger
	models data.Models
	store  *docstore.Manager
}

func main() {
	settings := loadConfig(config.Load(".env"), os.Args[1:])

	logger := newLogger(os.Stdout, settings.log.level, settings.log.format)

	dial, err := settings.dialer()
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	store := docstore.NewManager(dial, docstore.ManagerConfig{
		Backoff: docstore.Backoff{
			Initial: settings.db.retryInitial,
			Max:     settings.db.retryMax,
		},
		PingInterval: settings.db.pingInterval,
	}, logger)

	app := &applicationDependencies{
		config: settings,
		logger: logger,
		models: data.NewModels(store),
		store:  store,
	}

	logger.Info("starting application", "version", appVersion, "driver", settings.db.driver)

	if err := app.serve(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

// loadConfig copies cfg into a serverConfig and lets flags in args override
// it.
func loadConfig(cfg *config.Config, args []string) serverConfig {
	var settings serverConfig

	fs := flag.NewFlagSet("api", flag.ExitOnError)
	fs.IntVar(&settings.port, "port", cfg.Port, "Server port")
	fs.StringVar(&settings.environment, "env", cfg.Env, "Environment (development|staging|production)")
	fs.StringVar(&settings.staticDir, "static-dir", cfg.StaticDir, "Directory of static client files")

	fs.StringVar(&settings.db.driver, "db-driver", cfg.Driver, "Document store (mongo|postgres|memory)")
	fs.StringVar(&settings.db.mongoURI, "mongo-uri", cfg.MongoURI, "MongoDB connection URI")
	fs.StringVar(&settings.db.mongoDatabase, "mongo-database", cfg.MongoDatabase, "MongoDB database name")
	fs.StringVar(&settings.db.dsn, "db-dsn", cfg.DSN, "PostgreSQL DSN")
	fs.DurationVar(&settings.db.retryInitial, "db-retry-initial", cfg.RetryInitial, "First reconnect delay")
	fs.DurationVar(&settings.db.retryMax, "db-retry-max", cfg.RetryMax, "Longest reconnect delay")
	fs.DurationVar(&settings.db.pingInterval, "db-ping-interval", cfg.PingInterval, "Store health check interval")

	fs.BoolVar(&settings.limiter.enabled, "limiter-enabled", cfg.Limiter.Enabled, "Enable rate limiter")
	fs.Float64Var(&settings.limiter.rps, "limiter-rps", cfg.RPS, "Rate limiter maximum requests per second")
	fs.IntVar(&settings.limiter.burst, "limiter-burst", cfg.Burst, "Rate limiter maximum burst")

	fs.StringVar(&settings.cors.origin, "cors-origin", cfg.Origin, "Allowed CORS origin")
	fs.StringVar(&settings.log.level, "log-level", cfg.Level, "Log level (debug|info|warn|error)")
	fs.StringVar(&settings.log.format, "log-format", cfg.Format, "Log format (text|json)")

	fs.Parse(args)
	return settings
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// dialer returns the function the manager uses to open the configured
// backend. The memory store is created once so its documents survive a
// redial.
func (cfg serverConfig) dialer() (docstore.Dialer, error) {
	switch cfg.db.driver {
	case config.DriverMongo:
		return func(ctx context.Context) (docstore.Store, error) {
			s, err := docstore.OpenMongo(ctx, cfg.db.mongoURI, cfg.db.mongoDatabase, dialTimeout)
			if err != nil {
				return nil, err
			}
			return s, nil
		}, nil
	case config.DriverPostgres:
		return func(ctx context.Context) (docstore.Store, error) {
			s, err := docstore.OpenPostgres(ctx, cfg.db.dsn, dialTimeout)
			if err != nil {
				return nil, err
			}
			return s, nil
		}, nil
	case config.DriverMemory:
		mem := docstore.NewMemory()
		return func(ctx context.Context) (docstore.Store, error) {
			return mem, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.db.driver)
	}
}
