package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

const helpText = `
    Help
    - help:                           this page
    - list-ws:                        list all workspaces
    - list-doc:                       list all docs
    - list-doc <ws-id>:               list all docs in workspace <ws-id>
    - rename_pages <doc-id> <prefix>: adds prefix <prefix> to all pages in document <doc-id>
`

const unknownCommandText = "Unknown command. Please use 'help'"

// options holds the global flags, which precede the command.
type options struct {
	configFile  string
	output      string
	logLevel    string
	metricsFile string
	command     string
	args        []string
}

// errUsage marks argument errors that should print the usage hint.
var errUsage = errors.New("usage error")

func parseOptions(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("coda", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringVar(&opts.configFile, "config", "", "configuration file (YAML, JSON or TOML)")
	fs.StringVar(&opts.output, "output", "text", "output format: text, json or yaml")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level override: debug, info, warn or error")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "write pool metrics in Prometheus text format to this file")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage:\n  coda [options] <command> [arguments]\n%s\nOptions:\n", helpText)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}

	opts.output = strings.ToLower(opts.output)
	if _, err := newPrinter(opts.output, io.Discard); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}

	rest := fs.Args()
	if len(rest) > 0 {
		opts.command = rest[0]
		opts.args = rest[1:]
	}
	return opts, nil
}
