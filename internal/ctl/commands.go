package ctl

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/ritw/internal/common"
	"github.com/dmitrijs2005/ritw/internal/flagx"
	"github.com/dmitrijs2005/ritw/internal/server/config"
	"github.com/dmitrijs2005/ritw/internal/server/models"
)

// commandFlags parses the flags a command owns and ignores the rest, which
// belong to the configuration layers.
func commandFlags(name string, args []string, define func(fs *flag.FlagSet)) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	define(fs)

	var own []string
	fs.VisitAll(func(f *flag.Flag) { own = append(own, "-"+f.Name) })

	if err := fs.Parse(flagx.FilterArgs(args, own)); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	return nil
}

func requireID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: -id is required", ErrUsage)
	}
	return nil
}

// Provision creates the schema. Opening the session already provisions
// and compiles every statement, so this only reports.
func (a *App) Provision(ctx context.Context, s *session, _ []string) error {
	if err := s.repos.ProvisionSchema(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "schema provisioned")
	return nil
}

func (a *App) UserAdd(ctx context.Context, s *session, args []string) error {
	var id, name string
	err := commandFlags("useradd", args, func(fs *flag.FlagSet) {
		fs.StringVar(&id, "id", "", "account id")
		fs.StringVar(&name, "name", "", "display name")
	})
	if err != nil {
		return err
	}
	if err := requireID(id); err != nil {
		return err
	}

	if name == "" {
		if name, err = GetSimpleText(a.in, "Enter name", a.out); err != nil {
			return err
		}
	}

	password, err := GetNewPassword(a.out)
	if err != nil {
		return err
	}

	user, _, err := s.users.Signup(ctx, models.UserCreateInfo{ID: id, Name: name, Password: password})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "created %s (%s)\n", user.ID, user.Name)
	return nil
}

// Passwd sets a new password without asking for the current one.
func (a *App) Passwd(ctx context.Context, s *session, args []string) error {
	var id string
	err := commandFlags("passwd", args, func(fs *flag.FlagSet) {
		fs.StringVar(&id, "id", "", "account id")
	})
	if err != nil {
		return err
	}
	if err := requireID(id); err != nil {
		return err
	}

	users := s.repos.Users()
	stored, err := users.Read(ctx, id)
	if err != nil {
		return err
	}

	password, err := GetNewPassword(a.out)
	if err != nil {
		return err
	}

	updated := users.FromDTO(models.UserCreateInfo{ID: stored.ID, Name: stored.Name, Password: password})
	if err := users.Update(ctx, stored, updated); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "password of %s changed\n", id)
	return nil
}

func (a *App) UserDel(ctx context.Context, s *session, args []string) error {
	var id string
	err := commandFlags("userdel", args, func(fs *flag.FlagSet) {
		fs.StringVar(&id, "id", "", "account id")
	})
	if err != nil {
		return err
	}
	if err := requireID(id); err != nil {
		return err
	}

	if err := s.users.DeleteAccount(ctx, id); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "deleted %s\n", id)
	return nil
}

// Token decodes a cookie value with the configured key. It needs no
// database.
func (a *App) Token(args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[len(args)-1], "-") {
		return fmt.Errorf("%w: token value is required", ErrUsage)
	}
	value := args[len(args)-1]

	cfg, err := config.Resolve(args[:len(args)-1], a.environ)
	if err != nil {
		return err
	}
	if cfg.SignKey == "" {
		return config.ErrMissingSignKey
	}

	issuer, err := a.issuer(cfg)
	if err != nil {
		return err
	}

	tok, err := issuer.Inspect(value)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "subject: %s\ndue:     %s\nexpired: %t\n",
		tok.ID, tok.Due.Format(time.RFC3339Nano), tok.Expired(a.now()))
	if tok.Expired(a.now()) {
		return common.ErrTokenExpired
	}
	return nil
}
