package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/subcommands"

	predictform "github.com/inferx-ml/go-predictform"
	"github.com/inferx-ml/go-predictform/internal/config"
	"github.com/inferx-ml/go-predictform/internal/logging"
	"github.com/inferx-ml/go-predictform/pkg/auth"
	"github.com/inferx-ml/go-predictform/pkg/renderers/tui"
)

const expiredMessage = "session expired, run inferx login"

// cli carries the global flags and the process streams into every command.
type cli struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	overlay    config.Config

	// driver replaces the survey prompts; set by tests.
	driver tui.PromptDriver
	// store replaces the on-disk token store; set by tests.
	store auth.Store
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{stdout: stdout, stderr: stderr}
}

func (c *cli) register(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to the YAML config file (default $INFERX_CONFIG or ./inferx.yaml)")
	f.StringVar(&c.overlay.APIURL, "api-url", "", "backend API root, e.g. http://localhost:5000/api")
	f.StringVar(&c.overlay.Timeout, "timeout", "", "backend request timeout, e.g. 30s")
	f.StringVar(&c.overlay.AuthDir, "auth-dir", "", "directory holding the persisted token")
	f.StringVar(&c.overlay.Log.Level, "log-level", "", "log level: debug, info, warn or error")
	f.StringVar(&c.overlay.Log.Format, "log-format", "", "log format: text or json")
	f.StringVar(&c.overlay.Schema.Dir, "schema-dir", "", "directory (or single file) of local ui_schema files")
	f.StringVar(&c.overlay.Schema.OpenAPI, "schema-openapi", "", "OpenAPI document to derive input schemas from")
}

// open loads the configuration and wires the application. A forced logout
// prints a hint on stderr.
func (c *cli) open(ctx context.Context) (*predictform.App, error) {
	cfg, err := config.Load(c.configPath, &c.overlay)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(c.stderr, cfg.Log)
	if err != nil {
		return nil, err
	}
	opts := []predictform.Option{predictform.WithLogger(logger)}
	if c.store != nil {
		opts = append(opts, predictform.WithAuthStore(c.store))
	}
	app, err := predictform.Open(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	app.Auth.OnLogout(func() {
		fmt.Fprintln(c.stderr, expiredMessage)
	})
	return app, nil
}

func (c *cli) terminal(app *predictform.App) *tui.Renderer {
	return app.NewTerminal(c.driver)
}

// extract finds the *cli passed to Commander.Execute.
func extract(args []any) (*cli, bool) {
	for _, a := range args {
		if c, ok := a.(*cli); ok {
			return c, true
		}
	}
	return nil, false
}

// run is the shared Execute body: it opens the app and maps errors to exit
// statuses.
func run(ctx context.Context, args []any, fn func(*cli, *predictform.App) error) subcommands.ExitStatus {
	c, ok := extract(args)
	if !ok {
		return subcommands.ExitFailure
	}
	app, err := c.open(ctx)
	if err != nil {
		fmt.Fprintf(c.stderr, "inferx: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := fn(c, app); err != nil {
		return c.fail(err, app.Logger)
	}
	return subcommands.ExitSuccess
}

var errUsage = errors.New("usage error")

// reportedError marks an error the command already printed.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

func reported(err error) error { return reportedError{err: err} }

func (c *cli) fail(err error, logger *slog.Logger) subcommands.ExitStatus {
	var shown reportedError
	switch {
	case errors.As(err, &shown):
		logger.Debug("command failed", "error", err)
		return subcommands.ExitFailure
	case errors.Is(err, errUsage):
		fmt.Fprintf(c.stderr, "inferx: %v\n", err)
		return subcommands.ExitUsageError
	case errors.Is(err, tui.ErrAborted):
		fmt.Fprintln(c.stderr, "inferx: aborted")
		return subcommands.ExitFailure
	default:
		logger.Debug("command failed", "error", err)
		fmt.Fprintf(c.stderr, "inferx: %v\n", err)
		return subcommands.ExitFailure
	}
}
