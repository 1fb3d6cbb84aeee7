// Package ctl implements ritwctl, the administration tool: schema
// provisioning, account maintenance and token inspection against the same
// store the server uses.
package ctl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/ritw/internal/common"
	"github.com/dmitrijs2005/ritw/internal/cryptox"
	"github.com/dmitrijs2005/ritw/internal/logging"
	"github.com/dmitrijs2005/ritw/internal/server"
	"github.com/dmitrijs2005/ritw/internal/server/auth"
	"github.com/dmitrijs2005/ritw/internal/server/config"
	"github.com/dmitrijs2005/ritw/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/ritw/internal/server/services"
	"github.com/dmitrijs2005/ritw/internal/server/storage"
)

const usage = `usage: ritwctl <command> [flags]

commands:
  genkey                     print a fresh RITW_SIGNKEY value
  provision                  create the schema
  useradd -id ID [-name N]   create an account (password read from the terminal)
  passwd -id ID              reset the password of an account
  userdel -id ID             delete an account
  token [flags] VALUE        decode a ritw-token cookie value

Configuration flags (-c, -env, -d, -f) and environment variables are the
same as for the server.`

var ErrUsage = errors.New("invalid usage")

type App struct {
	out     io.Writer
	in      *bufio.Reader
	environ []string
	logger  logging.Logger
	now     func() time.Time
}

func NewApp(in io.Reader, out io.Writer, environ []string, logger logging.Logger) *App {
	return &App{
		out:     out,
		in:      bufio.NewReader(in),
		environ: environ,
		logger:  logger,
		now:     time.Now,
	}
}

// session is an open store plus the services built on it.
type session struct {
	gateway *storage.Gateway
	repos   repomanager.RepositoryManager
	users   *services.UserService
}

func (a *App) loadConfig(args []string) (*config.Config, error) {
	return config.Load(args, a.environ)
}

func (a *App) issuer(cfg *config.Config) (*auth.Issuer, error) {
	signer, err := cryptox.NewSigner(cfg.SignKey)
	if err != nil {
		return nil, err
	}
	return auth.NewIssuer(signer, cfg.TokenValidity, auth.WithClock(a.now)), nil
}

func (a *App) open(ctx context.Context, args []string) (*session, error) {
	cfg, err := a.loadConfig(args)
	if err != nil {
		return nil, err
	}

	issuer, err := a.issuer(cfg)
	if err != nil {
		return nil, err
	}

	gw, m, err := server.Bootstrap(ctx, cfg, a.logger)
	if err != nil {
		return nil, err
	}

	return &session{
		gateway: gw,
		repos:   m,
		users:   services.NewUserService(m.Users(), issuer, a.logger),
	}, nil
}

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]

	switch cmd {
	case "help", "-h", "--help":
		fmt.Fprintln(a.out, usage)
		return nil
	case "genkey":
		return a.GenKey()
	case "token":
		return a.Token(rest)
	case "provision":
		return a.withSession(ctx, rest, a.Provision)
	case "useradd":
		return a.withSession(ctx, rest, a.UserAdd)
	case "passwd":
		return a.withSession(ctx, rest, a.Passwd)
	case "userdel":
		return a.withSession(ctx, rest, a.UserDel)
	}

	fmt.Fprintln(a.out, usage)
	return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
}

func (a *App) withSession(ctx context.Context, args []string, fn func(context.Context, *session, []string) error) error {
	s, err := a.open(ctx, args)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.gateway.Close(); err != nil {
			a.logger.Warn(ctx, "gateway close failed", "error", err)
		}
	}()
	return fn(ctx, s, args)
}

// GenKey prints a random signing key.
func (a *App) GenKey() error {
	key, err := common.MakeRandHexString(32)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, key)
	return nil
}
