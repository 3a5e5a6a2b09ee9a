package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"

	predictform "github.com/inferx-ml/go-predictform"
)

// EnvToken lets scripts log in without a prompt.
const EnvToken = "INFERX_TOKEN"

type loginCommand struct {
	token string
}

func (*loginCommand) Name() string     { return "login" }
func (*loginCommand) Synopsis() string { return "store an access token" }
func (*loginCommand) Usage() string {
	return `login [-token <token>]:
  Persist the bearer token sent with every backend request. Without -token
  the token is read from $INFERX_TOKEN or asked for.
`
}

func (l *loginCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&l.token, "token", "", "access token")
}

func (l *loginCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	return run(ctx, args, func(c *cli, app *predictform.App) error {
		token := strings.TrimSpace(l.token)
		if token == "" {
			token = strings.TrimSpace(os.Getenv(EnvToken))
		}
		if token == "" {
			asked, err := c.terminal(app).AskToken(ctx)
			if err != nil {
				return err
			}
			token = asked
		}
		if err := app.Auth.Login(token); err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, "logged in")
		if exp, ok := app.Auth.Expiry(); ok {
			fmt.Fprintf(c.stdout, "token expires %s\n", exp.Format(time.RFC3339))
		}
		return nil
	})
}

type logoutCommand struct{}

func (*logoutCommand) Name() string     { return "logout" }
func (*logoutCommand) Synopsis() string { return "forget the stored access token" }
func (*logoutCommand) Usage() string {
	return `logout:
  Remove the persisted token.
`
}

func (*logoutCommand) SetFlags(*flag.FlagSet) {}

func (*logoutCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	return run(ctx, args, func(c *cli, app *predictform.App) error {
		if err := app.Auth.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, "logged out")
		return nil
	})
}

type statusCommand struct{}

func (*statusCommand) Name() string     { return "status" }
func (*statusCommand) Synopsis() string { return "show login state and backend health" }
func (*statusCommand) Usage() string {
	return `status:
  Report whether a token is stored, when it expires and whether the
  backend answers its health check.
`
}

func (*statusCommand) SetFlags(*flag.FlagSet) {}

func (*statusCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	return run(ctx, args, func(c *cli, app *predictform.App) error {
		fmt.Fprintf(c.stdout, "backend: %s\n", app.Config.APIURL)
		if _, ok := app.Auth.CurrentToken(); !ok {
			fmt.Fprintln(c.stdout, "auth: logged out")
		} else if exp, ok := app.Auth.Expiry(); ok {
			state := "valid until"
			if app.Auth.Expired() {
				state = "expired at"
			}
			fmt.Fprintf(c.stdout, "auth: logged in, token %s %s\n", state, exp.Format(time.RFC3339))
		} else {
			fmt.Fprintln(c.stdout, "auth: logged in")
		}

		health, err := app.Client.Health(ctx)
		if err != nil {
			fmt.Fprintf(c.stdout, "health: unavailable (%v)\n", err)
			return reported(err)
		}
		fmt.Fprintf(c.stdout, "health: %s (%s)\n", health.Status, health.Service)
		return nil
	})
}
