// Package server wires configuration, storage, the account service and the
// HTTP endpoint into a runnable application.
package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/ritw/internal/cryptox"
	"github.com/dmitrijs2005/ritw/internal/logging"
	"github.com/dmitrijs2005/ritw/internal/server/auth"
	"github.com/dmitrijs2005/ritw/internal/server/config"
	"github.com/dmitrijs2005/ritw/internal/server/httpapi"
	"github.com/dmitrijs2005/ritw/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/ritw/internal/server/services"
	"github.com/dmitrijs2005/ritw/internal/server/storage"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	gateway     *storage.Gateway
	userService *services.UserService
}

// GatewayOptions translates the config into storage options.
func GatewayOptions(c *config.Config) (storage.Options, error) {
	dialect, err := storage.ParseDialect(c.DBDriver)
	if err != nil {
		return storage.Options{}, err
	}
	return storage.Options{
		Dialect:           dialect,
		Host:              c.PostgresHost,
		Port:              c.PostgresPort,
		Database:          c.PostgresDB,
		User:              c.PostgresUser,
		Password:          c.PostgresPassword,
		SQLitePath:        c.SQLitePath,
		KeepaliveInterval: c.KeepaliveInterval,
	}, nil
}

// NewLogger builds the JSON logger the server writes to w.
func NewLogger(w io.Writer, c *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.NewJSONLogger(w, level), nil
}

// Bootstrap opens the gateway, provisions the schema and compiles every
// statement. Any failure here must stop the process.
func Bootstrap(ctx context.Context, c *config.Config, logger logging.Logger) (*storage.Gateway, repomanager.RepositoryManager, error) {
	opts, err := GatewayOptions(c)
	if err != nil {
		return nil, nil, err
	}

	gw := storage.NewGateway(logger)
	if err := gw.Init(ctx, opts); err != nil {
		return nil, nil, fmt.Errorf("db init error: %w", err)
	}

	m := repomanager.NewSQLRepositoryManager(gw)
	if err := m.ProvisionSchema(ctx); err != nil {
		_ = gw.Close()
		return nil, nil, fmt.Errorf("schema provisioning error: %w", err)
	}
	if err := warm(m); err != nil {
		_ = gw.Close()
		return nil, nil, err
	}

	logger.Info(ctx, "database initialized")
	return gw, m, nil
}

func warm(m repomanager.RepositoryManager) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()
	m.Warm()
	return nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := NewLogger(os.Stdout, c)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	signer, err := cryptox.NewSigner(c.SignKey)
	if err != nil {
		return nil, fmt.Errorf("signer init error: %w", err)
	}

	logger.Info(ctx, "connecting to database...", "driver", c.DBDriver)
	gw, m, err := Bootstrap(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	issuer := auth.NewIssuer(signer, c.TokenValidity)
	us := services.NewUserService(m.Users(), issuer, logger)

	return &App{config: c, logger: logger, gateway: gw, userService: us}, nil
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then closes
// the gateway.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...")

	s := httpapi.NewServer(httpapi.Options{
		Address:           app.config.ListenAddr,
		AllowedOrigins:    app.config.AllowedOrigins,
		RevealUnknownUser: app.config.RevealUnknownUser,
	}, app.logger, app.userService, app.gateway)

	runErr := s.Run(ctx)
	if runErr != nil {
		app.logger.Error(ctx, "http server failed", "error", runErr)
	}

	if err := app.gateway.Close(); err != nil {
		app.logger.Warn(ctx, "gateway close failed", "error", err)
	}

	app.logger.Info(ctx, "App stopped")
	return runErr
}
