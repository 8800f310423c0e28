// Package judge drives one judging attempt of a submission from a clean
// slate to its final verdict.
package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ruslanjan/arrow/api"
	"github.com/ruslanjan/arrow/internal/compile"
	"github.com/ruslanjan/arrow/internal/gatherer"
	"github.com/ruslanjan/arrow/internal/lock"
	"github.com/ruslanjan/arrow/internal/metrics"
	"github.com/ruslanjan/arrow/internal/model"
	"github.com/ruslanjan/arrow/internal/scoring"
	"github.com/ruslanjan/arrow/internal/store"
	"github.com/ruslanjan/arrow/internal/strtrim"
	"github.com/ruslanjan/arrow/internal/tester"
	"github.com/ruslanjan/arrow/internal/verdict"
	"github.com/ruslanjan/arrow/internal/workspace"
)

// ErrInfrastructure marks attempts that failed for reasons outside the
// submission and the problem. Such attempts may be retried.
var ErrInfrastructure = errors.New("judge infrastructure failure")

type Config struct {
	// WorkRoot holds the per-attempt workspaces.
	WorkRoot string
	// AttemptTimeout bounds a whole attempt.
	AttemptTimeout time.Duration
	SystemInfo     string
}

func DefaultConfig() Config {
	return Config{
		WorkRoot:       "/var/lib/arrow/work",
		AttemptTimeout: 300 * time.Second,
	}
}

type Deps struct {
	Store    store.Store
	Compiler *compile.Compiler
	Runner   *tester.Runner
	Locker   lock.Locker
	// Gatherers defaults to gatherer.NopFactory.
	Gatherers gatherer.Factory
	// Metrics defaults to metrics.Discard().
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Judge struct {
	store     store.Store
	compiler  *compile.Compiler
	runner    *tester.Runner
	locker    lock.Locker
	gatherers gatherer.Factory
	metrics   *metrics.Metrics
	cfg       Config
	log       *slog.Logger
}

func New(deps Deps, cfg Config) *Judge {
	j := &Judge{
		store:     deps.Store,
		compiler:  deps.Compiler,
		runner:    deps.Runner,
		locker:    deps.Locker,
		gatherers: deps.Gatherers,
		metrics:   deps.Metrics,
		cfg:       cfg,
		log:       deps.Logger,
	}
	if j.gatherers == nil {
		j.gatherers = gatherer.NopFactory
	}
	if j.metrics == nil {
		j.metrics = metrics.Discard()
	}
	if j.log == nil {
		j.log = slog.Default()
	}
	if j.cfg.AttemptTimeout <= 0 {
		j.cfg.AttemptTimeout = DefaultConfig().AttemptTimeout
	}
	return j
}

// setupFault is a terminal failure caused by the problem, not the
// submission.
type setupFault struct {
	kind        string
	debug       string
	description string
}

func (e *setupFault) Error() string { return e.debug }

// attempt is the state of one judging attempt.
type attempt struct {
	id      string
	sub     *model.Submission
	log     *slog.Logger
	gath    gatherer.Gatherer
	started time.Time
}

// Judge erases every previous result of the submission and judges it again.
// A rejudge of a submission that is being judged waits for the running
// attempt. Returned errors wrapping ErrInfrastructure are worth retrying;
// any other error is terminal.
func (j *Judge) Judge(ctx context.Context, submissionID int64) error {
	release, err := j.locker.Acquire(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}
	defer release()

	sub, err := j.store.Submission(ctx, submissionID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load submission: %w", err)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to load submission: %w", ErrInfrastructure, err)
	}

	a := &attempt{
		id:      uuid.NewString(),
		sub:     sub,
		started: time.Now(),
	}
	a.log = j.log.With("submission_id", submissionID, "attempt_id", a.id)
	a.gath = j.gatherers(submissionID, a.id)

	if err := j.store.ResetSubmission(ctx, submissionID, a.id); err != nil {
		return fmt.Errorf("%w: failed to reset submission: %w", ErrInfrastructure, err)
	}
	sub.Erase()
	sub.AttemptID = a.id

	j.metrics.AttemptsInFlight.Inc()
	defer j.metrics.AttemptsInFlight.Dec()

	a.log.Info("judging started")
	a.gath.StartJob(j.cfg.SystemInfo)

	actx, cancel := context.WithTimeout(ctx, j.cfg.AttemptTimeout)
	defer cancel()

	err = j.run(actx, a)
	var sf *setupFault
	switch {
	case err == nil:
		return nil
	case errors.As(err, &sf):
		return j.finishSetupFault(ctx, a, sf)
	default:
		return j.fail(ctx, a, err)
	}
}

func (j *Judge) run(ctx context.Context, a *attempt) error {
	p, err := j.store.Problem(ctx, a.sub.ProblemID)
	if errors.Is(err, store.ErrNotFound) {
		return &setupFault{kind: "problem", debug: err.Error()}
	}
	if err != nil {
		return fmt.Errorf("failed to load problem: %w", err)
	}
	mode, err := p.ScoringMode()
	if err != nil {
		return &setupFault{kind: "scoring_mode", debug: err.Error()}
	}

	ws, err := workspace.New(j.cfg.WorkRoot)
	if err != nil {
		return err
	}
	defer func() {
		if err := ws.Close(); err != nil {
			a.log.Warn("failed to remove workspace", "dir", ws.Dir(), "error", err)
		}
	}()

	if err := j.setState(ctx, a, model.Compiling); err != nil {
		return err
	}
	a.gath.StartCompile()
	res, err := j.compiler.CompileAll(ctx, ws, p, a.sub)
	var se *compile.SetupError
	if errors.As(err, &se) {
		return &setupFault{kind: se.Artifact, debug: se.Error(), description: se.Diagnostics}
	}
	if err != nil {
		return err
	}
	if !res.Ready() {
		a.gath.FinishCompile(gatherer.RuntimeData(res.Usage, "", res.CompileError.Diagnostics))
		return j.finishCompilationError(ctx, a, res.CompileError)
	}
	a.gath.FinishCompile(gatherer.RuntimeData(res.Usage, "", ""))

	if err := j.setState(ctx, a, model.Testing); err != nil {
		return err
	}
	sum, resultIDs, err := j.test(ctx, a, tester.Plan{
		Problem:   p,
		Mode:      mode,
		Artifacts: res.Artifacts,
		Workspace: ws,
	})
	if err != nil {
		return err
	}
	return j.finish(ctx, a, p, sum, resultIDs)
}

// test runs and stores the tests. It returns the stored result row id of
// every test that ran.
func (j *Judge) test(ctx context.Context, a *attempt, plan tester.Plan) (scoring.Summary, map[int64]int64, error) {
	agg := scoring.New(plan.Mode, plan.Problem.TestGroups, plan.Problem.Tests)
	rows := make(map[int64]int64, len(plan.Problem.Tests))

	for res, err := range j.runner.Run(ctx, plan) {
		if err != nil {
			return scoring.Summary{}, nil, err
		}
		a.gath.ReachTest(res.Test.ID, res.Position)

		row := &model.SubmissionTestResult{
			SubmissionID:            a.sub.ID,
			TestID:                  res.Test.ID,
			Verdict:                 res.Verdict,
			VerdictMessage:          res.Message,
			VerdictDebugMessage:     res.DebugMessage,
			VerdictDebugDescription: res.DebugDescription,
			TimeUsed:                res.Time.Seconds(),
			MemoryUsed:              res.MemoryKB,
			Points:                  res.Points,
		}
		if err := j.store.CreateTestResult(ctx, row); err != nil {
			return scoring.Summary{}, nil, fmt.Errorf("failed to store test result: %w", err)
		}
		rows[res.Test.ID] = row.ID

		if res.Verdict.IsSetupFault() {
			j.metrics.SetupFaults.WithLabelValues("test_" + strings.ToLower(string(res.Verdict))).Inc()
			a.log.Error("problem setup fault on test",
				"test_id", res.Test.ID, "verdict", res.Verdict, "debug", res.DebugMessage)
		}
		a.gath.FinishTest(gatherer.TestResult(res))

		if !agg.Add(res) {
			break
		}
	}
	return agg.Finish(), rows, nil
}

func (j *Judge) finish(ctx context.Context, a *attempt, p *model.Problem, sum scoring.Summary, rows map[int64]int64) error {
	wctx := context.WithoutCancel(ctx)
	for _, g := range sum.Groups {
		ids := make([]int64, 0, len(g.TestIDs))
		for _, tid := range g.TestIDs {
			if id, ok := rows[tid]; ok {
				ids = append(ids, id)
			}
		}
		gr := &model.SubmissionTestGroupResult{
			SubmissionID: a.sub.ID,
			ProblemID:    p.ID,
			TestGroupID:  g.Group.ID,
			Points:       g.Points,
		}
		if err := j.store.CreateTestGroupResult(wctx, gr, ids); err != nil {
			return fmt.Errorf("failed to store test group result: %w", err)
		}
	}

	sub := a.sub
	sub.Verdict = sum.Verdict
	sub.VerdictMessage = sum.Message
	sub.VerdictDebugMessage = sum.DebugMessage
	sub.VerdictDebugDescription = sum.DebugDescription
	sub.MaxTimeUsed = sum.MaxTime.Seconds()
	sub.MaxMemoryUsed = sum.MaxMemoryKB
	sub.Points = sum.Points
	if err := j.complete(wctx, a); err != nil {
		return err
	}
	a.gath.FinishJob(api.Summary{
		Verdict:       string(sum.Verdict),
		Message:       sum.Message,
		Points:        sum.Points,
		MaxCpuMillis:  sum.MaxTime.Milliseconds(),
		MaxRamKiBytes: sum.MaxMemoryKB,
	})
	return nil
}

func (j *Judge) finishCompilationError(ctx context.Context, a *attempt, ce *compile.CompilationError) error {
	diag := strtrim.ToRect(ce.Diagnostics, 200, 400)
	a.sub.Verdict = verdict.CompilationError
	a.sub.VerdictMessage = verdict.CompilationError.Verbose()
	a.sub.VerdictDescription = diag
	a.sub.VerdictDebugDescription = diag
	if err := j.complete(context.WithoutCancel(ctx), a); err != nil {
		return err
	}
	a.gath.CompileError(diag)
	return nil
}

func (j *Judge) finishSetupFault(ctx context.Context, a *attempt, sf *setupFault) error {
	j.metrics.SetupFaults.WithLabelValues(sf.kind).Inc()
	a.log.Error("problem setup fault", "kind", sf.kind, "debug", sf.debug)

	a.sub.Verdict = verdict.TestError
	a.sub.VerdictMessage = verdict.TestError.Verbose()
	a.sub.VerdictDebugMessage = sf.debug
	a.sub.VerdictDebugDescription = strtrim.ToRect(sf.description, 200, 400)
	if err := j.complete(context.WithoutCancel(ctx), a); err != nil {
		return j.fail(ctx, a, err)
	}
	a.gath.FinishJob(api.Summary{Verdict: string(verdict.TestError), Message: a.sub.VerdictMessage})
	return nil
}

// complete moves the submission to its final tested state.
func (j *Judge) complete(ctx context.Context, a *attempt) error {
	a.sub.SetState(model.Tested)
	if err := j.store.UpdateSubmission(ctx, a.sub); err != nil {
		return fmt.Errorf("failed to store verdict: %w", err)
	}
	j.metrics.Verdicts.WithLabelValues(string(a.sub.Verdict)).Inc()
	j.metrics.ObserveAttempt(string(model.Tested), a.started)
	a.log.Info("judging finished",
		"verdict", a.sub.Verdict, "message", a.sub.VerdictMessage,
		"duration", time.Since(a.started).Round(time.Millisecond))
	return nil
}

// fail drops the results of the attempt and records an infrastructure
// failure on the submission.
func (j *Judge) fail(ctx context.Context, a *attempt, cause error) error {
	j.metrics.InfrastructureFailures.WithLabelValues(string(a.sub.State)).Inc()
	j.metrics.ObserveAttempt(string(model.Failed), a.started)
	a.log.Error("judging failed", "error", cause)
	a.gath.InternalError(cause.Error())

	// Rows of the aborted attempt must not sit next to the final verdict.
	ctx = context.WithoutCancel(ctx)
	if err := j.store.ResetSubmission(ctx, a.sub.ID, a.id); err != nil {
		a.log.Error("failed to drop partial results", "error", err)
	}
	a.sub.Erase()
	a.sub.SetState(model.Failed)
	a.sub.Verdict = verdict.TestError
	a.sub.VerdictMessage = "Test failed"
	a.sub.VerdictDebugMessage = cause.Error()
	if err := j.store.UpdateSubmission(ctx, a.sub); err != nil {
		a.log.Error("failed to store failed state", "error", err)
	}
	return fmt.Errorf("%w: submission %d: %w", ErrInfrastructure, a.sub.ID, cause)
}

func (j *Judge) setState(ctx context.Context, a *attempt, st model.State) error {
	a.sub.SetState(st)
	if err := j.store.UpdateSubmission(ctx, a.sub); err != nil {
		return fmt.Errorf("failed to move submission to %s: %w", st, err)
	}
	return nil
}
