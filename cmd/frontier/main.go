// Package main is the frontier command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"

	"github.com/aristath/frontier/internal/cli"
	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/di"
	"github.com/aristath/frontier/pkg/logger"
)

var (
	plain    = flag.Bool("plain", false, "print raw markdown instead of terminal output")
	width    = flag.Int("width", 100, "terminal width for the report")
	logLevel = flag.String("log-level", "", "override LOG_LEVEL")
)

// open wires the same databases and services the dashboard uses, so runs
// from the command line show up in the dashboard history.
func open(ctx context.Context) (*cli.Deps, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
		Output: os.Stderr,
	})

	container, err := di.Wire(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to wire dependencies: %w", err)
	}

	deps := &cli.Deps{
		Data:     container.MarketDataService,
		Analysis: container.AnalysisService,
		Defaults: container.SettingsService,
	}
	closeFn := func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close databases")
		}
	}
	return deps, closeFn, nil
}

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	app := &cli.App{
		Out:  os.Stdout,
		Err:  os.Stderr,
		Open: open,
	}
	cli.Register(commander, app)

	flag.Parse()

	app.Render = cli.PlainRenderer
	if !*plain {
		render, err := cli.TerminalRenderer(*width)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(int(subcommands.ExitFailure))
		}
		app.Render = render
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}
