package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/webfront-auth/config"
	"github.com/target/webfront-auth/internal/core"
	httpx "github.com/target/webfront-auth/internal/http"
)

// Infrastructure holds the optional backing stores. Either field may be nil.
type Infrastructure struct {
	DB    *sql.DB
	Redis *redis.Client
}

// Close releases the connections.
func (i Infrastructure) Close() error {
	var errs []error
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// InitInfrastructure connects the stores cfg needs and applies migrations
// when enabled.
func InitInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (Infrastructure, error) {
	var infra Infrastructure
	dbCfg := DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	if cfg.NeedsPostgres() {
		db, err := ConnectDB(ctx, dbCfg)
		if err != nil {
			return infra, fmt.Errorf("connect db: %w", err)
		}
		infra.DB = db
		if cfg.Postgres.RunMigrationsOnStart {
			if err := RunMigrations(ctx, db, logger); err != nil {
				return infra, errors.Join(err, infra.Close())
			}
		} else {
			logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
		}
	}

	if cfg.NeedsRedis() || cfg.Redis.Enabled() {
		client, err := ConnectRedis(ctx, dbCfg)
		if err != nil {
			return infra, errors.Join(fmt.Errorf("connect redis: %w", err), infra.Close())
		}
		infra.Redis = client
	}
	return infra, nil
}

// App is the assembled server.
type App struct {
	Handler       http.Handler
	Keys          KeyRingResult
	Observability Observability
}

// BuildApp wires the key ring, the user store, the providers and the router.
func BuildApp(ctx context.Context, cfg *config.AppConfig, infra Infrastructure, logger *slog.Logger) (*App, error) {
	var rc redis.UniversalClient
	if infra.Redis != nil {
		rc = infra.Redis
	}
	keys, err := BuildKeyRing(ctx, KeyRingDeps{Config: cfg.Keys, IsDev: cfg.IsDev, Redis: rc, Logger: logger})
	if err != nil {
		return nil, err
	}

	users, err := BuildUserStore(cfg.Auth.Users, infra.DB)
	if err != nil {
		return nil, err
	}

	providers, err := BuildProviders(ctx, cfg.Auth, logger)
	if err != nil {
		return nil, err
	}

	obs := BuildObservability(ctx, cfg.Observability, cfg.Version, logger)

	svc, err := BuildWebFrontService(WebFrontDeps{
		Config:    cfg,
		Keys:      keys.Ring,
		Users:     users,
		Providers: providers,
		Metrics:   obs.Recorder,
		Clock:     core.RealTimeProvider{},
		Logger:    logger,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("build webfront service: %w", err), obs.Close())
	}

	services := httpx.RouterServices{
		WebFront:  svc,
		Cookies:   httpx.CookieConfigFrom(cfg.WebFront, cfg.HTTP.TrustForwardedProto),
		EntryPath: cfg.WebFront.EntryPath,
		Allower:   NewUnsafeDirectLoginAllower(cfg.WebFront.UnsafeDirectLoginSchemes, cfg.WebFront.UnsafeDirectLoginPrefixes()),
		Metrics:   obs.Recorder,
		Logger:    logger,
	}
	if obs.Registry != nil {
		services.Gatherer = obs.Registry
	}

	return &App{
		Handler:       httpx.NewRouter(services),
		Keys:          keys,
		Observability: obs,
	}, nil
}

// Run serves the application until SIGINT or SIGTERM.
func Run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "starting webfront",
		"version", cfg.Version,
		"dev", cfg.IsDev,
		"entry_path", cfg.WebFront.EntryPath,
		"cookie_mode", cfg.WebFront.CookieMode,
		"users_source", cfg.Auth.Users.Source,
		"keys_source", cfg.Keys.Source)

	infra, err := InitInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := infra.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close infrastructure failed", "error", cerr)
		}
	}()

	app, err := BuildApp(ctx, cfg, infra, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Observability.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close statsd client failed", "error", cerr)
		}
	}()

	server := NewHTTPServer(cfg.HTTP, app.Handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ServeHTTP(server, logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		return ShutdownHTTPServer(gctx, ShutdownConfig{
			Server:  server,
			Timeout: cfg.HTTP.ShutdownTimeout,
			Logger:  logger,
		})
	})
	if app.Keys.Store != nil {
		g.Go(func() error {
			return ReloadKeys(gctx, app.Keys.Ring, app.Keys.Store, cfg.Keys.ReloadInterval, logger)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("webfront stopped")
	return nil
}
