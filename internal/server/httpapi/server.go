// Package httpapi exposes the account flows over HTTP. The session is a
// sealed token carried in an HttpOnly cookie.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/ritw/internal/logging"
	"github.com/dmitrijs2005/ritw/internal/server/models"
)

// UserService is the part of services.UserService the handlers use.
type UserService interface {
	Signup(ctx context.Context, dto models.UserCreateInfo) (*models.User, string, error)
	Signin(ctx context.Context, dto models.UserCreateInfo) (*models.User, string, error)
	Authenticate(ctx context.Context, cookie string) (*models.User, error)
	ChangePassword(ctx context.Context, id, current, next string) error
	DeleteAccount(ctx context.Context, id string) error
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Address           string
	AllowedOrigins    []string
	RevealUnknownUser bool
}

type Server struct {
	opts   Options
	users  UserService
	store  Pinger
	logger logging.Logger
}

func NewServer(opts Options, l logging.Logger, us UserService, store Pinger) *Server {
	return &Server{
		opts:   opts,
		users:  us,
		store:  store,
		logger: l.With("module", "http_server"),
	}
}

const shutdownTimeout = 10 * time.Second

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		stopped <- srv.Shutdown(sctx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-stopped
}
