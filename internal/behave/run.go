package behave

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/ruslanjan/arrow/internal/compile"
	"github.com/ruslanjan/arrow/internal/gatherer"
	"github.com/ruslanjan/arrow/internal/judge"
	"github.com/ruslanjan/arrow/internal/lock"
	"github.com/ruslanjan/arrow/internal/model"
	"github.com/ruslanjan/arrow/internal/sandbox"
	"github.com/ruslanjan/arrow/internal/store/memstore"
	"github.com/ruslanjan/arrow/internal/tester"
)

// Env is what scenarios are judged with.
type Env struct {
	Executor sandbox.Executor
	Compile  compile.Config
	Tester   tester.Config
	WorkRoot string
	// Gatherer, when set, receives the progress of every scenario.
	Gatherer gatherer.Gatherer
	Logger   *slog.Logger
}

type Outcome struct {
	Submission  *model.Submission
	TestResults []model.SubmissionTestResult
	// Mismatches lists every expectation the outcome broke.
	Mismatches []string
}

func (o *Outcome) Passed() bool { return len(o.Mismatches) == 0 }

// Run judges c against a fresh in-memory store and compares the result
// with the expectations. The error is only set when judging itself failed.
func Run(ctx context.Context, c Case, env Env) (*Outcome, error) {
	log := env.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	st := memstore.New()
	pid := st.AddProblem(c.Problem)
	sub := c.Submission
	sub.ProblemID = pid
	id := st.AddSubmission(&sub)

	gatherers := gatherer.NopFactory
	if env.Gatherer != nil {
		gatherers = func(int64, string) gatherer.Gatherer { return env.Gatherer }
	}
	j := judge.New(judge.Deps{
		Store:     st,
		Compiler:  compile.New(env.Executor, st, env.Compile, log),
		Runner:    tester.New(env.Executor, env.Tester, log),
		Locker:    lock.NewLocal(),
		Gatherers: gatherers,
		Logger:    log,
	}, judge.Config{WorkRoot: env.WorkRoot})

	if err := j.Judge(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to judge %q: %w", c.Name, err)
	}
	judged, err := st.Submission(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Submission: judged, TestResults: st.TestResults(id)}
	out.Mismatches = compare(c.Expect, out)
	return out, nil
}

func compare(e SpecExpect, o *Outcome) []string {
	var bad []string
	if e.Verdict != "" && string(o.Submission.Verdict) != e.Verdict {
		bad = append(bad, fmt.Sprintf("verdict: expected %s, got %s (%s)",
			e.Verdict, o.Submission.Verdict, o.Submission.VerdictMessage))
	}
	if e.Points != nil && math.Abs(*e.Points-o.Submission.Points) > 1e-9 {
		bad = append(bad, fmt.Sprintf("points: expected %g, got %g", *e.Points, o.Submission.Points))
	}
	if len(e.TestResults) == 0 {
		return bad
	}
	if len(e.TestResults) != len(o.TestResults) {
		bad = append(bad, fmt.Sprintf("test results: expected %d, got %d", len(e.TestResults), len(o.TestResults)))
		return bad
	}
	for i, want := range e.TestResults {
		if got := o.TestResults[i].Verdict; string(got) != want.Verdict {
			bad = append(bad, fmt.Sprintf("test #%d: expected %s, got %s", i+1, want.Verdict, got))
		}
	}
	return bad
}
