// Package tester runs a compiled submission against a problem's tests, one
// test at a time.
package tester

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ruslanjan/arrow/internal/compile"
	"github.com/ruslanjan/arrow/internal/model"
	"github.com/ruslanjan/arrow/internal/sandbox"
	"github.com/ruslanjan/arrow/internal/strtrim"
	"github.com/ruslanjan/arrow/internal/verdict"
	"github.com/ruslanjan/arrow/internal/workspace"
)

// per-test files in the workspace root
const (
	inputFile      = "input.txt"
	outputFile     = "output.txt"
	answerFile     = "answer.txt"
	resultFile     = "result.txt"
	submissionErr  = "submission.err"
	generatorErr   = "generator.err"
	referenceErr   = "reference.err"
	interactorErr  = "interactor.err"
	checkerOut     = "checker.out"
	checkerErr     = "checker.err"
	debugMaxHeight = 40
	debugMaxWidth  = 200
)

var testFiles = []string{
	inputFile, outputFile, answerFile, resultFile, submissionErr,
	generatorErr, referenceErr, interactorErr, checkerOut, checkerErr,
}

type Config struct {
	// WallTime is the wall clock ceiling of every submission run.
	WallTime  time.Duration
	ExtraTime time.Duration
	Processes int
	// Reference limits apply to generators, the reference solution, the
	// checker and the interactor.
	Reference     sandbox.Limits
	MaxDebugBytes int64
}

func DefaultConfig() Config {
	return Config{
		WallTime:  10 * time.Second,
		ExtraTime: 200 * time.Millisecond,
		Processes: 1,
		Reference: sandbox.Limits{
			CPUTime:   10 * time.Second,
			WallTime:  20 * time.Second,
			MemoryKB:  1024 * 1024,
			Processes: 1,
		},
		MaxDebugBytes: 16 << 10,
	}
}

// Plan is everything needed to run the tests of one attempt.
type Plan struct {
	Problem   *model.Problem
	Mode      model.ScoringMode
	Artifacts *compile.Artifacts
	Workspace *workspace.Workspace
}

type Result struct {
	Test model.Test
	// Position is the 1-based place of the test in grading order.
	Position int

	Verdict          verdict.Verdict
	Message          string
	DebugMessage     string
	DebugDescription string

	// Executed is set when the submission actually ran on the test.
	Executed bool
	Time     time.Duration
	MemoryKB int64
	Points   float64
}

type Runner struct {
	exec sandbox.Executor
	cfg  Config
	log  *slog.Logger
}

func New(exec sandbox.Executor, cfg Config, logger *slog.Logger) *Runner {
	return &Runner{exec: exec, cfg: cfg, log: logger}
}

// Run grades the tests in ascending index order. Each result is produced
// only when the consumer asks for it, so stopping the iteration stops the
// run. An infrastructure failure is yielded as an error and ends the
// sequence.
func (r *Runner) Run(ctx context.Context, plan Plan) iter.Seq2[*Result, error] {
	return func(yield func(*Result, error) bool) {
		for i, t := range plan.Problem.OrderedTests() {
			if err := ctx.Err(); err != nil {
				yield(nil, sandbox.Infra("test", err))
				return
			}
			res, err := r.runTest(ctx, plan, i+1, t)
			if err != nil {
				yield(nil, fmt.Errorf("failed to run test %d: %w", t.Index, err))
				return
			}
			if !yield(res, nil) {
				return
			}
		}
	}
}

func (r *Runner) runTest(ctx context.Context, plan Plan, pos int, t model.Test) (*Result, error) {
	ws := plan.Workspace
	res := &Result{Test: t, Position: pos}

	if err := ws.Remove(testFiles...); err != nil {
		return nil, sandbox.Infra("reset test files", err)
	}

	ok, err := r.materializeInput(ctx, plan, res)
	if err != nil || !ok {
		return res, err
	}

	var done bool
	if plan.Problem.IsInteractive {
		done, err = r.runInteractive(ctx, plan, res)
	} else {
		done, err = r.runSubmission(ctx, plan, res)
	}
	if err != nil || done {
		return res, err
	}

	if done, err = r.runReference(ctx, plan, res); err != nil || done {
		return res, err
	}
	return res, r.runChecker(ctx, plan, res)
}

func (r *Runner) submissionLimits(p *model.Problem) sandbox.Limits {
	return sandbox.Limits{
		CPUTime:   time.Duration(p.TimeLimit * float64(time.Second)),
		ExtraTime: r.cfg.ExtraTime,
		WallTime:  r.cfg.WallTime,
		MemoryKB:  p.MemoryLimit,
		Processes: r.cfg.Processes,
	}
}

// setupFault records a problem side failure on the test.
func (r *Runner) setupFault(res *Result, v verdict.Verdict, debug string, desc string) {
	res.Verdict = v
	res.Message = v.OnTest(res.Position)
	res.DebugMessage = debug
	res.DebugDescription = desc
	r.log.Warn("problem setup fault", "test", res.Test.Index, "verdict", v, "reason", debug)
}

func (r *Runner) materializeInput(ctx context.Context, plan Plan, res *Result) (bool, error) {
	t := res.Test
	ws := plan.Workspace
	if !t.UseGenerator {
		if err := ws.WriteFile(inputFile, []byte(t.Data), 0o644); err != nil {
			return false, sandbox.Infra("write input", err)
		}
		return true, nil
	}

	var gen, found = plan.Artifacts.Generators[derefID(t.GeneratorID)]
	if !found {
		r.setupFault(res, verdict.TestError, "Generator is not compiled", "")
		return false, nil
	}
	argv := append(append([]string{}, gen.RunArgv...), strings.Fields(t.Data)...)
	out, err := r.exec.Execute(ctx, sandbox.Request{
		Argv:    argv,
		Workdir: ws.Dir(),
		Stdout:  inputFile,
		Stderr:  generatorErr,
		Limits:  r.cfg.Reference,
	})
	if err != nil {
		return false, err
	}
	if out.Status != sandbox.Completed {
		r.setupFault(res, verdict.TestError,
			fmt.Sprintf("Generator failed: %s", describe(out)),
			r.readDebug(ws, generatorErr))
		return false, nil
	}
	return true, nil
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func (r *Runner) recordUsage(res *Result, out *sandbox.Outcome) {
	res.Executed = true
	res.Time = out.Time
	res.MemoryKB = out.MemoryKB
}

// submissionFault maps a sandbox status of the submission to its verdict.
// It reports false for a clean run.
func (r *Runner) submissionFault(plan Plan, res *Result, out *sandbox.Outcome) bool {
	var v verdict.Verdict
	debug := describe(out)
	switch out.Status {
	case sandbox.Completed:
		return false
	case sandbox.RuntimeError:
		v = verdict.RuntimeError
	case sandbox.TimeLimitExceeded:
		v = verdict.TimeLimitExceeded
	case sandbox.MemoryLimitExceeded:
		v = verdict.MemoryLimitExceeded
	case sandbox.WallTimeExceeded:
		v = verdict.WallTimeExceeded
		debug = "Wall time limit exceeded, the judge may be overloaded: " + debug
	}
	res.Verdict = v
	res.Message = v.OnTest(res.Position)
	res.DebugMessage = debug
	res.DebugDescription = r.readDebug(plan.Workspace, submissionErr)
	return true
}

func (r *Runner) runSubmission(ctx context.Context, plan Plan, res *Result) (bool, error) {
	out, err := r.exec.Execute(ctx, sandbox.Request{
		Argv:    plan.Artifacts.Submission.RunArgv,
		Workdir: plan.Workspace.Dir(),
		Stdin:   inputFile,
		Stdout:  outputFile,
		Stderr:  submissionErr,
		Limits:  r.submissionLimits(plan.Problem),
	})
	if err != nil {
		return false, err
	}
	r.recordUsage(res, out)
	return r.submissionFault(plan, res, out), nil
}

func (r *Runner) interactorLimits() sandbox.Limits {
	lim := r.cfg.Reference
	lim.WallTime = max(lim.WallTime, r.cfg.WallTime)
	return lim
}

// runInteractive runs the submission against the interactor. The
// submission's own resource faults win over whatever the interactor says.
func (r *Runner) runInteractive(ctx context.Context, plan Plan, res *Result) (bool, error) {
	inter := plan.Artifacts.Interactor
	if inter == nil {
		r.setupFault(res, verdict.TestError, "Interactor is not compiled", "")
		return true, nil
	}
	ws := plan.Workspace
	solOut, interOut, err := r.exec.ExecuteInteractive(ctx,
		sandbox.Request{
			Argv:    plan.Artifacts.Submission.RunArgv,
			Workdir: ws.Dir(),
			Stderr:  submissionErr,
			Limits:  r.submissionLimits(plan.Problem),
		},
		sandbox.Request{
			Argv:    append(append([]string{}, inter.RunArgv...), inputFile, outputFile),
			Workdir: ws.Dir(),
			Stderr:  interactorErr,
			Limits:  r.interactorLimits(),
		})
	if err != nil {
		return false, err
	}
	r.recordUsage(res, solOut)

	switch solOut.Status {
	case sandbox.TimeLimitExceeded, sandbox.MemoryLimitExceeded, sandbox.WallTimeExceeded:
		return r.submissionFault(plan, res, solOut), nil
	}
	if !interOut.Exited() {
		r.setupFault(res, verdict.TestFailed, "Interactor "+describe(interOut), r.readDebug(ws, interactorErr))
		return true, nil
	}
	if interOut.ExitCode != 0 {
		v := verdict.FromCheckerExit(interOut.ExitCode, false)
		res.Verdict = v
		res.Message = v.OnTest(res.Position)
		res.DebugMessage = fmt.Sprintf("Interactor exited with code %d", interOut.ExitCode)
		res.DebugDescription = r.readDebug(ws, interactorErr)
		return true, nil
	}
	return r.submissionFault(plan, res, solOut), nil
}

func (r *Runner) runReference(ctx context.Context, plan Plan, res *Result) (bool, error) {
	ws := plan.Workspace
	sol := plan.Artifacts.Solution

	var out *sandbox.Outcome
	if plan.Problem.IsInteractive {
		var interOut *sandbox.Outcome
		var err error
		out, interOut, err = r.exec.ExecuteInteractive(ctx,
			sandbox.Request{Argv: sol.RunArgv, Workdir: ws.Dir(), Stderr: referenceErr, Limits: r.cfg.Reference},
			sandbox.Request{
				Argv:    append(append([]string{}, plan.Artifacts.Interactor.RunArgv...), inputFile, answerFile),
				Workdir: ws.Dir(),
				Stderr:  interactorErr,
				Limits:  r.interactorLimits(),
			})
		if err != nil {
			return false, err
		}
		if interOut.Status != sandbox.Completed {
			r.setupFault(res, verdict.TestError,
				"Reference solution rejected by interactor: "+describe(interOut),
				r.readDebug(ws, interactorErr))
			return true, nil
		}
	} else {
		var err error
		out, err = r.exec.Execute(ctx, sandbox.Request{
			Argv:    sol.RunArgv,
			Workdir: ws.Dir(),
			Stdin:   inputFile,
			Stdout:  answerFile,
			Stderr:  referenceErr,
			Limits:  r.cfg.Reference,
		})
		if err != nil {
			return false, err
		}
	}
	if out.Status != sandbox.Completed {
		r.setupFault(res, verdict.TestError, "Reference solution failed: "+describe(out), r.readDebug(ws, referenceErr))
		return true, nil
	}
	return false, nil
}

func (r *Runner) runChecker(ctx context.Context, plan Plan, res *Result) error {
	ws := plan.Workspace
	argv := append(append([]string{}, plan.Artifacts.Checker.RunArgv...), inputFile, outputFile, answerFile, resultFile)
	out, err := r.exec.Execute(ctx, sandbox.Request{
		Argv:    argv,
		Workdir: ws.Dir(),
		Stdout:  checkerOut,
		Stderr:  checkerErr,
		Limits:  r.cfg.Reference,
	})
	if err != nil {
		return err
	}

	desc := r.checkerDebug(ws)
	if !out.Exited() {
		r.setupFault(res, verdict.TestFailed, "Checker "+describe(out), desc)
		return nil
	}

	graded := plan.Mode == model.Graded
	v := verdict.FromCheckerExit(out.ExitCode, graded)
	res.Verdict = v
	res.DebugMessage = fmt.Sprintf("Checker exited with code %d", out.ExitCode)
	res.DebugDescription = desc

	switch v {
	case verdict.Accepted:
		res.Message = v.Verbose()
		if graded {
			res.Points = res.Test.Points
		}
	case verdict.Points:
		p, ok := r.reportedPoints(ws)
		if !ok {
			r.setupFault(res, verdict.TestFailed, "Checker reported points without a finite value", desc)
			return nil
		}
		res.Points = clampPoints(p, res.Test.Points)
		res.Message = fmt.Sprintf("%s points on test #%d", formatPoints(res.Points), res.Position)
	default:
		res.Message = v.OnTest(res.Position)
		if v.IsSetupFault() || v == verdict.UnknownCode {
			r.log.Warn("checker malfunction", "test", res.Test.Index, "exit", out.ExitCode)
		}
	}
	return nil
}

func (r *Runner) checkerDebug(ws *workspace.Workspace) string {
	var parts []string
	for _, f := range []string{checkerOut, checkerErr, resultFile} {
		if s := strings.TrimSpace(r.readDebug(ws, f)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// reportedPoints reads the first finite number the checker wrote to the
// result file, or failing that to its output.
func (r *Runner) reportedPoints(ws *workspace.Workspace) (float64, bool) {
	for _, f := range []string{resultFile, checkerOut, checkerErr} {
		s, _ := ws.ReadFileLimit(f, r.cfg.MaxDebugBytes)
		for _, tok := range strings.Fields(s) {
			p, err := strconv.ParseFloat(strings.Trim(tok, `"'=,;:`), 64)
			if err == nil && !math.IsNaN(p) && !math.IsInf(p, 0) {
				return p, true
			}
		}
	}
	return 0, false
}

// clampPoints keeps p within [0, limit]. A test worth nothing earns nothing.
func clampPoints(p, limit float64) float64 {
	return min(max(p, 0), max(limit, 0))
}

func formatPoints(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func (r *Runner) readDebug(ws *workspace.Workspace, name string) string {
	s, err := ws.ReadFileLimit(name, r.cfg.MaxDebugBytes)
	if err != nil {
		return ""
	}
	return strtrim.ToRect(s, debugMaxHeight, debugMaxWidth)
}

func describe(o *sandbox.Outcome) string {
	switch {
	case o.Signal != 0:
		return fmt.Sprintf("%s, killed by signal %d", o.Status, o.Signal)
	case o.Status == sandbox.RuntimeError:
		return fmt.Sprintf("%s, exit code %d", o.Status, o.ExitCode)
	case o.Status == sandbox.TimeLimitExceeded:
		return fmt.Sprintf("%s, cpu time %.3fs", o.Status, o.Time.Seconds())
	case o.Status == sandbox.WallTimeExceeded:
		return fmt.Sprintf("%s, wall time %.3fs", o.Status, o.WallTime.Seconds())
	case o.Status == sandbox.MemoryLimitExceeded:
		return fmt.Sprintf("%s, %d KB", o.Status, o.MemoryKB)
	}
	return o.Status.String()
}
