// Package server wires the GeoCapsule backend together. It opens
// PostgreSQL, applies migrations, picks the change-event bus and runs the
// REST API, the websocket hub and the gRPC health service until shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/clock"
	"github.com/dmitrijs2005/geocapsule/internal/logging"
	"github.com/dmitrijs2005/geocapsule/internal/server/config"
	"github.com/dmitrijs2005/geocapsule/internal/server/httpapi"
	"github.com/dmitrijs2005/geocapsule/internal/server/notify"
	"github.com/dmitrijs2005/geocapsule/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/geocapsule/internal/server/services"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/geocapsule/internal/server/grpc"
)

const (
	purgeInterval   = time.Hour
	shutdownTimeout = 10 * time.Second
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	clock    clock.Clock
	db       *sql.DB
	redis    *redis.Client
	hub      *notify.Hub
	users    *services.UserService
	capsules *services.CapsuleService
	media    *services.MediaService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, err := logging.New(os.Stdout, c.LogFormat, c.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migrations error: %w", err)
	}

	app := &App{config: c, logger: logger, clock: clock.Real(), db: db}

	var bus notify.Bus
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		bus = notify.NewRedisBus(app.redis, logger)
		logger.Info(ctx, "Using redis change-event bus", "address", c.RedisAddr)
	} else {
		bus = notify.NewMemoryBus()
	}

	app.hub = notify.NewHub(bus, app.clock, logger)
	app.users = services.NewUserService(db, rm, app.clock, c)
	app.capsules = services.NewCapsuleService(db, rm, bus, app.clock, logger)
	app.media = services.NewMediaService(c, app.clock)

	return app, nil
}

// healthCheck pings the database and, when configured, redis.
func (app *App) healthCheck(ctx context.Context) error {
	if err := app.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if app.redis != nil {
		if err := app.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewHealthServer(app.config.EndpointAddrGRPC, app.healthCheck, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	api := httpapi.NewServer(app.users, app.capsules, app.media, app.hub, app.healthCheck, app.logger)
	srv := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, api.Router())

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			app.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHub(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		app.logger.Error(ctx, "event hub stopped", "error", err)
		cancelFunc()
	}
}

// purgeTokens drops expired refresh tokens every purgeInterval.
func (app *App) purgeTokens(ctx context.Context) {
	ticker := app.clock.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.users.PurgeExpiredTokens(ctx)
			if err != nil {
				app.logger.Warn(ctx, "purge expired refresh tokens", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "purged expired refresh tokens", "count", n)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	for _, start := range []func(context.Context, context.CancelFunc){
		app.startHub,
		app.startHTTPServer,
		app.startGRPCServer,
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start(ctx, cancelFunc)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.purgeTokens(ctx)
	}()

	wg.Wait()

	if app.redis != nil {
		_ = app.redis.Close()
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
