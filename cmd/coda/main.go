// Package main implements the coda command line tool, which runs batch
// operations against Coda documents: listing workspaces and documents and
// prefixing the names of every page of a document.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// main is the entry point for the coda command. It cancels the run on
// SIGINT or SIGTERM and exits with the code returned by run.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
