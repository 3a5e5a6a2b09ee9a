package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	predictform "github.com/inferx-ml/go-predictform"
)

type serveCommand struct {
	addr    string
	variant string
}

func (*serveCommand) Name() string     { return "serve" }
func (*serveCommand) Synopsis() string { return "run the local web front-end" }
func (*serveCommand) Usage() string {
	return `serve [-addr host:port] [-theme-variant name]:
  Serve the prediction pages until interrupted.
`
}

func (s *serveCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.addr, "addr", "", "listen address (default from config, localhost:8080)")
	f.StringVar(&s.variant, "theme-variant", "", "theme variant, e.g. dark")
}

func (s *serveCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if c, ok := extract(args); ok {
		c.overlay.Server.Addr = s.addr
		c.overlay.Server.ThemeVariant = s.variant
	}
	return run(ctx, args, func(c *cli, app *predictform.App) error {
		srv, err := app.NewServer()
		if err != nil {
			return err
		}
		return srv.Run(ctx, app.Config.Server.Addr)
	})
}
