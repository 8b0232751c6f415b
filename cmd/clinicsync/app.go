package main

import (
	"context"
	"errors"
	"fmt"

	"clinicsync/backend"
	"clinicsync/backend/sqlite"
	"clinicsync/internal/config"
	"clinicsync/internal/session"
	engine "clinicsync/internal/sync"
	"clinicsync/internal/tracing"
	"clinicsync/internal/utils"
)

// App holds what every engine command needs: config, both stores and the session
type App struct {
	config  *config.Config
	store   *sqlite.Store
	remote  backend.RemoteStore
	session *session.Holder

	shutdownTracing tracing.ShutdownFunc
}

// NewApp opens the local store and the configured remote.
// A remote that cannot be built is logged and the app runs local-only.
func NewApp(ctx context.Context) (*App, error) {
	cfg := config.GetConfig()
	if cfg.Logging.Verbose {
		utils.SetVerboseMode(true)
	}

	shutdown, err := tracing.Init(ctx, tracing.Config{
		Exporter:     tracing.ExporterType(cfg.Tracing.Exporter),
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, err
	}

	remote, err := engine.OpenRemote(cfg)
	if err != nil {
		utils.Warnf("remote unavailable, working locally: %v", err)
		remote = nil
	}

	app := &App{
		config:          cfg,
		store:           store,
		remote:          remote,
		shutdownTracing: shutdown,
	}

	if username != "" {
		holder, err := session.Login(ctx, store, username)
		if err != nil {
			app.Close()
			if errors.Is(err, session.ErrUnknownUser) {
				return nil, utils.ErrUserNotFound(username)
			}
			return nil, err
		}
		app.session = holder
	}
	return app, nil
}

// Close releases the stores and flushes spans
func (a *App) Close() {
	a.session.Logout()
	if a.remote != nil {
		a.remote.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.shutdownTracing != nil {
		a.shutdownTracing(context.Background())
	}
}

// CurrentUser returns the session user or a not-logged-in error
func (a *App) CurrentUser() (backend.User, error) {
	user, err := a.session.Current()
	if errors.Is(err, session.ErrNotLoggedIn) {
		return backend.User{}, utils.ErrNotLoggedIn()
	}
	return user, err
}

// FindUser looks a user up by username in the local store
func (a *App) FindUser(ctx context.Context, name string) (backend.User, error) {
	row, err := a.store.QueryOne(ctx, "SELECT * FROM users WHERE username = ?", name)
	if err != nil {
		return backend.User{}, err
	}
	if row == nil {
		return backend.User{}, utils.ErrUserNotFound(name)
	}
	t, err := backend.LookupTable(backend.TableUsers)
	if err != nil {
		return backend.User{}, err
	}
	rec, err := t.Decode(row)
	if err != nil {
		return backend.User{}, err
	}
	return *rec.(*backend.User), nil
}

// NewCoordinator creates a coordinator over the app's stores
func (a *App) NewCoordinator() (*engine.Coordinator, error) {
	return engine.NewCoordinator(a.store, a.remote)
}
