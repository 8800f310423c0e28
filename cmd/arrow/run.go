package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/ruslanjan/arrow/internal/behave"
	"github.com/ruslanjan/arrow/internal/config"
	"github.com/ruslanjan/arrow/internal/gatherer/termgath"
	"github.com/ruslanjan/arrow/internal/tester"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "judge the scenarios of a TOML file locally and check their expectations",
		ArgsUsage: "<scenarios.toml>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "work-root",
				Usage: "directory for the attempt workspaces",
				Value: config.LocalWorkRoot(),
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "only print the scenario results",
			},
		},
		Action: runScenarios,
	}
}

func runScenarios(ctx context.Context, c *cli.Command) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("missing scenario file")
	}
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	cases, err := behave.Parse(path)
	if err != nil {
		return err
	}
	ccfg, err := compileConfig(cfg)
	if err != nil {
		return err
	}

	env := behave.Env{
		Executor: newIsolate(cfg, log),
		Compile:  ccfg,
		Tester:   tester.DefaultConfig(),
		WorkRoot: c.String("work-root"),
		Logger:   log,
	}
	if !c.Bool("quiet") {
		env.Gatherer = termgath.New()
	}

	pass := color.New(color.FgGreen, color.Bold)
	fail := color.New(color.FgRed, color.Bold)
	failed := 0
	for _, tc := range cases {
		out, err := behave.Run(ctx, tc, env)
		if err != nil {
			return err
		}
		if out.Passed() {
			pass.Printf("PASS ")
			fmt.Println(tc.Name)
			continue
		}
		failed++
		fail.Printf("FAIL ")
		fmt.Println(tc.Name)
		for _, m := range out.Mismatches {
			fmt.Printf("     %s\n", m)
		}
	}

	fmt.Printf("%d/%d scenarios passed\n", len(cases)-failed, len(cases))
	if failed > 0 {
		return cli.Exit("", 1)
	}
	return nil
}
