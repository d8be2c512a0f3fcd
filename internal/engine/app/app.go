// Package app wires the engine together: store, identity provider,
// realtime client and the managers that consume them.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/palmsestate/palms/internal/engine/provider/local"
	"github.com/palmsestate/palms/internal/engine/realtime"
	"github.com/palmsestate/palms/internal/engine/service"
	"github.com/palmsestate/palms/internal/engine/store"
	"github.com/palmsestate/palms/internal/engine/store/drivers/sqlite"
	"github.com/palmsestate/palms/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the engine with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	realtime realtime.Client

	// Provider is exposed for flows the session manager does not proxy,
	// e.g. redeeming an email confirmation code. The manager observes
	// the resulting auth events either way.
	Provider *local.Provider

	Sessions      *service.SessionManager
	Dashboard     *service.DashboardService
	Subscriptions *service.SubscriptionManager
	Activity      *service.ActivityService

	unsubSession func()
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "palms-engine",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	db, err := sqlite.NewStore(cfg.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	app.db = db

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			app.logger.Warn("redis unreachable, using in-process realtime",
				slog.String("addr", cfg.RedisAddr), slog.String("error", err.Error()))
			app.realtime = realtime.NewMemoryClient()
		} else {
			app.realtime = realtime.NewRedisClient(rdb, app.logger)
		}
	} else {
		app.realtime = realtime.NewMemoryClient()
	}

	app.Provider = local.New(db, app.logger, local.Config{
		Issuer:                   cfg.Issuer,
		SigningSecret:            []byte(cfg.SigningSecret),
		RequireEmailConfirmation: cfg.RequireEmailConfirmation,
	})

	app.initServices()
	return app, nil
}

func (app *Application) initServices() {
	roles := service.NewRoleResolver(app.db, app.logger)
	if app.cfg.ReservedAdminEmail != "" {
		roles.ReservedAdminEmail = app.cfg.ReservedAdminEmail
	}
	profiles := service.NewProfileService(app.db, app.logger)

	app.Sessions = service.NewSessionManager(app.Provider, roles, profiles, app.logger, app.cfg.RefreshInterval)
	app.Dashboard = service.NewDashboardService(app.db, app.logger, app.cfg.FetchFloor)
	app.Subscriptions = service.NewSubscriptionManager(app.realtime, app.Dashboard, app.logger, app.cfg.Debounce)
	app.Activity = service.NewActivityService(app.db, app.realtime, app.logger)

	// Session transitions drive the dashboard and subscription set: a
	// new user gets a fresh fetch and channel set, sign-out releases
	// both.
	app.unsubSession = app.Sessions.OnChange(func(snap service.SessionSnapshot) {
		ctx := context.Background()
		if snap.IsAuthenticated {
			uid := snap.User.Identity.ID
			app.Subscriptions.SetUser(ctx, uid)
			app.Dashboard.SetUser(uid)
			app.Dashboard.Fetch(ctx, false)
		} else {
			app.Subscriptions.SetUser(ctx, "")
			app.Dashboard.SetUser("")
		}
	})
}

// Run starts the engine and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.Sessions.Start(context.Background())

	app.logger.Info("engine started", "version", BuildVersion)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	app.logger.Info("shutdown signal received", "signal", sig)
	return app.Shutdown()
}

// Shutdown releases every resource in dependency order.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down engine...")

	if app.unsubSession != nil {
		app.unsubSession()
	}
	app.Subscriptions.Close()
	app.Sessions.Close()

	if err := app.realtime.Close(); err != nil {
		app.logger.Error("error closing realtime client", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("engine shutdown complete")
	return nil
}
