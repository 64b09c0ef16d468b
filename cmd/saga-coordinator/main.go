package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/jcmexdev/saga-coordinator/internal/api/httpx"
	"github.com/jcmexdev/saga-coordinator/internal/api/httpx/middlewares"
	"github.com/jcmexdev/saga-coordinator/internal/config"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/app"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/instance"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/memdb"
	"github.com/jcmexdev/saga-coordinator/internal/coordinator/sqlite"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/cache"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/commandbus"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/eventbus"
	"github.com/jcmexdev/saga-coordinator/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load(os.Getenv("SAGA_CONFIG"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	telemetry.InitLogger(cfg.Telemetry.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("saga coordinator stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	shutdown, err := telemetry.SetupTracer(ctx, telemetry.TracerConfig{
		ServiceName:  cfg.Telemetry.ServiceName,
		Environment:  cfg.Telemetry.Environment,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	repos, closeStore, err := openRepositories(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	repos, readRepos := withInstanceCache(cfg, repos)

	commands := commandbus.New()
	events := eventbus.New()
	if err := app.Register(commands, events, repos); err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}

	router := httpx.NewRouter(
		httpx.NewHandler(commands, app.NewQueries(readRepos)),
		httpx.RouterOptions{RateLimitRPM: cfg.HTTP.RateLimitRPM},
	)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           middlewares.OTelHTTP(cfg.Telemetry.ServiceName)(router),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("saga coordinator listening", "addr", cfg.HTTP.Addr, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		slog.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openRepositories builds the stores selected by cfg.
func openRepositories(cfg config.Config) (app.Repositories, func(), error) {
	var (
		repos     app.Repositories
		closeFunc = func() {}
	)

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		store, err := memdb.New()
		if err != nil {
			return app.Repositories{}, nil, err
		}
		repos = app.Repositories{
			Instances: store.Instances(),
			Steps:     store.Steps(),
			Logs:      store.Logs(),
		}
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			return app.Repositories{}, nil, fmt.Errorf("create data dir: %w", err)
		}
		db, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return app.Repositories{}, nil, err
		}
		repos = app.Repositories{
			Instances: db.Instances(),
			Steps:     db.Steps(),
			Logs:      db.Logs(),
		}
		closeFunc = func() {
			if err := db.Close(); err != nil {
				slog.Error("sqlite close error", "error", err)
			}
		}
	}

	return repos, closeFunc, nil
}

// withInstanceCache splits repos into the command side and the read side.
// With a cache address configured, queries read saga instances through redis
// while command handlers load from the store and refresh the cache on save.
func withInstanceCache(cfg config.Config, repos app.Repositories) (writes, reads app.Repositories) {
	if cfg.Cache.RedisAddr == "" {
		return repos, repos
	}
	redisCache := cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Telemetry.ServiceName)
	cached := instance.NewCachedRepository(repos.Instances, redisCache, cfg.Cache.TTL)
	slog.Info("saga instance cache enabled", "redis", cfg.Cache.RedisAddr, "ttl", cfg.Cache.TTL)

	writes, reads = repos, repos
	writes.Instances = cached.ForWrites()
	reads.Instances = cached
	return writes, reads
}
