package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/ruslanjan/arrow/internal/compile"
	"github.com/ruslanjan/arrow/internal/config"
	"github.com/ruslanjan/arrow/internal/isolate"
	"github.com/ruslanjan/arrow/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "arrow",
		Usage: "judge submissions of competitive programming problems",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "dotenv files read before the environment",
			},
		},
		Commands: []*cli.Command{
			workerCommand(),
			runCommand(),
			enqueueCommand(),
			clearCacheCommand(),
			healthCommand(),
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and the logger every command starts with.
func setup(c *cli.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.StringSlice("env-file")...)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	log := logging.New(os.Stderr, cfg.LogLevel)
	slog.SetDefault(log)
	return cfg, log, nil
}

func newIsolate(cfg config.Config, log *slog.Logger) *isolate.Isolate {
	icfg := isolate.DefaultConfig()
	icfg.Binary = cfg.IsolateBinary
	icfg.CGroups = cfg.IsolateCGroups
	icfg.FirstBoxID = cfg.IsolateFirstBox
	icfg.BoxCount = cfg.IsolateBoxes
	return isolate.New(icfg, log)
}

func compileConfig(cfg config.Config) (compile.Config, error) {
	ccfg := compile.DefaultConfig()
	header, err := cfg.ReadTestlib()
	if err != nil {
		return compile.Config{}, err
	}
	ccfg.TestlibHeader = header
	return ccfg, nil
}
