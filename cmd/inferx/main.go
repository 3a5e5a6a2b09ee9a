// Command inferx talks to an InferX-ML backend: it lists models, shows their
// input schemas, runs predictions from terminal prompts and serves a local web
// front-end.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	env := newCLI(os.Stdout, os.Stderr)
	env.register(flag.CommandLine)

	commander := newCommander(flag.CommandLine)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	os.Exit(int(commander.Execute(ctx, env)))
}

func newCommander(top *flag.FlagSet) *subcommands.Commander {
	cdr := subcommands.NewCommander(top, "inferx")
	cdr.Register(cdr.HelpCommand(), "")
	cdr.Register(cdr.FlagsCommand(), "")
	cdr.Register(cdr.CommandsCommand(), "")

	cdr.Register(&modelsCommand{}, "backend")
	cdr.Register(&schemaCommand{}, "backend")
	cdr.Register(&predictCommand{}, "backend")

	cdr.Register(&loginCommand{}, "session")
	cdr.Register(&logoutCommand{}, "session")
	cdr.Register(&statusCommand{}, "session")

	cdr.Register(&serveCommand{}, "web")
	return cdr
}
