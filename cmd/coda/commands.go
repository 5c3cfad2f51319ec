package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/phrazzld/coda-batch/internal/config"
	"github.com/phrazzld/coda-batch/internal/credentials"
	"github.com/phrazzld/coda-batch/internal/platform/coda"
	"github.com/phrazzld/coda-batch/internal/platform/logger"
	"github.com/phrazzld/coda-batch/internal/redact"
)

const (
	exitInterrupted = 130

	invalidKeyText = "Api key is invalid. Provide the new one"
)

// command is one subcommand with the number of arguments it accepts.
type command struct {
	name    string
	minArgs int
	maxArgs int
	run     func(ctx context.Context, app *application, args []string) error
}

var commands = []command{
	{name: "list-ws", run: listWorkspaces},
	{name: "list-doc", maxArgs: 1, run: listDocuments},
	{name: "rename_pages", minArgs: 2, maxArgs: 2, run: renamePages},
	{name: "rename-pages", minArgs: 2, maxArgs: 2, run: renamePages},
}

func lookupCommand(name string, nargs int) (command, bool) {
	for _, c := range commands {
		if c.name == name && nargs >= c.minArgs && nargs <= c.maxArgs {
			return c, true
		}
	}
	return command{}, false
}

// run executes one invocation of the tool and returns its exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	switch {
	case opts.command == "":
		fmt.Fprint(stdout, helpText)
		return exitOK
	case opts.command == "help" && len(opts.args) == 0:
		fmt.Fprint(stdout, helpText)
		return exitOK
	}

	cmd, ok := lookupCommand(opts.command, len(opts.args))
	if !ok {
		fmt.Fprintln(stdout, unknownCommandText)
		return exitUsage
	}

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	log, err := logger.Setup(cfg.Log, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	ctx = logger.WithLogger(ctx, log.With("command", cmd.name))

	keyFile := credentials.NewKeyFile(cfg.API.KeyFile)
	apiKey, err := resolveAPIKey(cfg.API.Key, keyFile, stdin, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	out, err := newPrinter(opts.output, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	app, err := newApplication(cfg, apiKey, opts, log, out)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", redact.Error(err))
		return exitError
	}

	err = cmd.run(ctx, app, opts.args)
	app.cleanup(ctx)
	if err == nil {
		return exitOK
	}

	log.Debug("command failed", "command", cmd.name, "error", redact.Error(err))

	switch {
	case errors.Is(err, coda.ErrInvalidAPIKey):
		fmt.Fprintln(stdout, invalidKeyText)
		if rmErr := keyFile.Remove(); rmErr != nil {
			log.Warn("failed to remove rejected API key", "error", rmErr)
		}
		return exitError
	case errors.Is(err, coda.ErrSessionRequired):
		fmt.Fprintf(stderr, "Error: workspace names need a signed-in browser session; export your %s cookies to %s\n",
			cfg.Session.CookieDomain, cfg.Session.CookieFile)
		return exitError
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		fmt.Fprintln(stderr, "Interrupted")
		return exitInterrupted
	default:
		fmt.Fprintf(stderr, "Error: %s\n", redact.Error(err))
		return exitError
	}
}

func listWorkspaces(ctx context.Context, app *application, _ []string) error {
	workspaces, err := app.documents.ListWorkspaces(ctx)
	if err != nil {
		return err
	}
	return app.out.Workspaces(workspaces)
}

func listDocuments(ctx context.Context, app *application, args []string) error {
	workspaceID := ""
	if len(args) == 1 {
		workspaceID = args[0]
	}
	docs, err := app.documents.ListDocuments(ctx, workspaceID)
	if err != nil {
		return err
	}
	return app.out.Documents(docs)
}

func renamePages(ctx context.Context, app *application, args []string) error {
	if err := app.out.RenameStarted(); err != nil {
		return err
	}
	result, err := app.pages.RenamePages(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	return app.out.RenameFinished(result)
}
