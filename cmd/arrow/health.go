package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/ruslanjan/arrow/internal/isolate"
	"github.com/ruslanjan/arrow/internal/lang"
	"github.com/ruslanjan/arrow/internal/sandbox"
	"github.com/ruslanjan/arrow/internal/workspace"
)

type health int

const (
	healthy health = iota
	degraded
	broken
)

type feedbackRow struct {
	unit    string
	health  health
	message string
}

var helloWorld = map[lang.Language]string{
	lang.Cpp17:   "#include <cstdio>\nint main() { std::puts(\"hello\"); }\n",
	lang.Python3: "print(\"hello\")\n",
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "check that isolate and every language toolchain work",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			iso := newIsolate(cfg, log)

			feedback := []feedbackRow{ensureIsolateOk(ctx, iso)}
			if feedback[0].health != broken {
				feedback = append(feedback, ensureLanguagesOk(ctx, iso, cfg.WorkRoot)...)
			}
			outputFeedback(feedback)
			for _, row := range feedback {
				if row.health == broken {
					return cli.Exit("", 1)
				}
			}
			return nil
		},
	}
}

func ensureIsolateOk(ctx context.Context, iso *isolate.Isolate) feedbackRow {
	version, err := iso.Version(ctx)
	if err != nil {
		return feedbackRow{unit: "Isolate", health: broken, message: err.Error()}
	}
	return feedbackRow{unit: "Isolate", health: healthy, message: firstLine(version)}
}

func ensureLanguagesOk(ctx context.Context, exec sandbox.Executor, workRoot string) []feedbackRow {
	res := make([]feedbackRow, 0, len(lang.All))
	for _, l := range lang.All {
		row := feedbackRow{unit: l.String()}
		took, err := helloLanguage(ctx, exec, workRoot, l)
		switch {
		case err != nil:
			row.health = broken
			row.message = err.Error()
		case took > time.Second:
			row.health = degraded
			row.message = fmt.Sprintf("slow: %s", took.Round(time.Millisecond))
		default:
			row.message = fmt.Sprintf("ran in %s", took.Round(time.Millisecond))
		}
		res = append(res, row)
	}
	return res
}

// helloLanguage builds and runs a hello world program and returns its cpu
// time.
func helloLanguage(ctx context.Context, exec sandbox.Executor, workRoot string, l lang.Language) (time.Duration, error) {
	cmds, err := l.Commands()
	if err != nil {
		return 0, err
	}
	ws, err := workspace.New(workRoot)
	if err != nil {
		return 0, err
	}
	defer ws.Close()

	if err := ws.WriteFile(cmds.SourceFname, []byte(helloWorld[l]), 0o644); err != nil {
		return 0, err
	}
	lim := sandbox.Limits{CPUTime: 10 * time.Second, WallTime: 20 * time.Second, MemoryKB: 512 * 1024, Processes: 64}
	o, err := exec.Execute(ctx, sandbox.Request{Argv: cmds.CompileArgv, Workdir: ws.Dir(), Stderr: "compile.err", Limits: lim})
	if err != nil {
		return 0, err
	}
	if o.Status != sandbox.Completed {
		msg, _ := ws.ReadFileLimit("compile.err", 1024)
		return 0, fmt.Errorf("compile %s: %s", o.Status, firstLine(msg))
	}

	o, err = exec.Execute(ctx, sandbox.Request{Argv: cmds.RunArgv, Workdir: ws.Dir(), Stdout: "out.txt", Limits: lim})
	if err != nil {
		return 0, err
	}
	if o.Status != sandbox.Completed {
		return 0, fmt.Errorf("run %s", o.Status)
	}
	out, err := ws.ReadFileLimit("out.txt", 1024)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(out) != "hello" {
		return 0, fmt.Errorf("unexpected output %q", out)
	}
	return o.Time, nil
}

func outputFeedback(rows []feedbackRow) {
	width := 0
	for _, r := range rows {
		width = max(width, len(r.unit))
	}
	status := map[health]*color.Color{
		healthy:  color.New(color.FgGreen),
		degraded: color.New(color.FgYellow),
		broken:   color.New(color.FgRed, color.Bold),
	}
	label := map[health]string{healthy: "OK", degraded: "WARN", broken: "ERROR"}
	for _, r := range rows {
		fmt.Fprintf(os.Stdout, "%-*s  ", width, r.unit)
		status[r.health].Fprintf(os.Stdout, "%-5s", label[r.health])
		fmt.Fprintf(os.Stdout, "  %s\n", r.message)
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
