// Package main is the entry point for reviewctl, the service-review client.
//
// MAIN PACKAGE:
// main only reads configuration, builds the App and runs one command. All
// behaviour lives in internal/app and below, so it can be tested without a
// process.
//
// EXIT CODES:
//
//	0  the command succeeded, or help was asked for
//	1  the command failed; the reason was already shown to the user
//	2  the command line could not be parsed
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sakif/service-review/internal/app"
	"github.com/sakif/service-review/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Ctrl+C cancels whatever request or sign-in is in flight.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "reviewctl: %v\n", err)
		return 1
	}

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "reviewctl: %v\n", err)
		return 1
	}
	defer a.Close()

	err = a.Run(ctx, os.Args[1:])
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, app.ErrUsage):
		return 2
	default:
		fmt.Fprintf(os.Stderr, "reviewctl: %v\n", err)
		return 1
	}
}
