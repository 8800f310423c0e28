package tester

import (
	"context"
	"log/slog"
	"testing"

	"github.com/ruslanjan/arrow/internal/compile"
	"github.com/ruslanjan/arrow/internal/model"
	"github.com/ruslanjan/arrow/internal/sandbox"
	"github.com/ruslanjan/arrow/internal/sandbox/sandboxtest"
	"github.com/ruslanjan/arrow/internal/store/memstore"
	"github.com/ruslanjan/arrow/internal/verdict"
	"github.com/ruslanjan/arrow/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticTests(data ...string) []model.Test {
	tests := make([]model.Test, len(data))
	for i, d := range data {
		tests[i] = model.Test{Index: i + 1, Data: d, Points: 1}
	}
	return tests
}

func echoProblem(tests ...model.Test) *model.Problem {
	return &model.Problem{
		Name:        "echo",
		TimeLimit:   1,
		MemoryLimit: 65536,
		Solution:    "echo",
		Checker:     "checker",
		Tests:       tests,
	}
}

type fixture struct {
	exec *sandboxtest.Executor
	plan Plan
}

func prepare(t *testing.T, p *model.Problem, code string) *fixture {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.DiscardHandler)
	exec := sandboxtest.New()
	st := memstore.New()
	p.ID = st.AddProblem(p)
	stored, err := st.Problem(ctx, p.ID)
	require.NoError(t, err)

	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	res, err := compile.New(exec, st, compile.DefaultConfig(), log).
		CompileAll(ctx, ws, stored, &model.Submission{SubmissionType: "CPP17", Data: code})
	require.NoError(t, err)
	require.True(t, res.Ready())

	mode, err := stored.ScoringMode()
	require.NoError(t, err)
	return &fixture{
		exec: exec,
		plan: Plan{Problem: stored, Mode: mode, Artifacts: res.Artifacts, Workspace: ws},
	}
}

func (f *fixture) runAll(t *testing.T) ([]*Result, error) {
	t.Helper()
	runner := New(f.exec, DefaultConfig(), slog.New(slog.DiscardHandler))
	var results []*Result
	for res, err := range runner.Run(context.Background(), f.plan) {
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func TestRunsInIndexOrder(t *testing.T) {
	p := echoProblem(
		model.Test{Index: 5, Data: "five"},
		model.Test{Index: 1, Data: "one"},
		model.Test{Index: 3, Data: "three"},
	)
	f := prepare(t, p, "echo")

	results, err := f.runAll(t)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, want := range []int{1, 3, 5} {
		assert.Equal(t, want, results[i].Test.Index)
		assert.Equal(t, i+1, results[i].Position)
		assert.Equal(t, verdict.Accepted, results[i].Verdict)
		assert.Equal(t, "Accepted", results[i].Message)
		assert.True(t, results[i].Executed)
	}
}

func TestMessageUsesPositionNotIndex(t *testing.T) {
	p := echoProblem(
		model.Test{Index: 0, Data: "a"},
		model.Test{Index: 2, Data: "b"},
		model.Test{Index: 7, Data: "c"},
	)
	f := prepare(t, p, "echo\non c out nope")

	results, err := f.runAll(t)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, verdict.WrongAnswer, results[2].Verdict)
	assert.Equal(t, "Wrong answer on test #3", results[2].Message)
	assert.Contains(t, results[2].DebugDescription, "wrong answer")
}

func TestSubmissionResourceFaults(t *testing.T) {
	f := prepare(t, echoProblem(staticTests("1", "2", "3", "4", "5")...),
		"echo\non 2 tle\non 3 mle\non 4 re\non 5 wte")

	results, err := f.runAll(t)
	require.NoError(t, err)
	require.Len(t, results, 5)

	assert.Equal(t, verdict.Accepted, results[0].Verdict)
	assert.Equal(t, verdict.TimeLimitExceeded, results[1].Verdict)
	assert.Equal(t, "Time limit exceeded on test #2", results[1].Message)
	assert.Equal(t, verdict.MemoryLimitExceeded, results[2].Verdict)
	assert.Equal(t, int64(65536), results[2].MemoryKB)
	assert.Equal(t, verdict.RuntimeError, results[3].Verdict)
	assert.Contains(t, results[3].DebugDescription, "segmentation fault")
	assert.Equal(t, verdict.WallTimeExceeded, results[4].Verdict)
	assert.Contains(t, results[4].DebugMessage, "overloaded")

	// neither the reference solution nor the checker ran on faulty tests
	assert.Equal(t, 1, f.exec.CountArgv0("./checker"))
}

func TestStoppingIterationStopsExecution(t *testing.T) {
	f := prepare(t, echoProblem(staticTests("1", "2", "3")...), "echo\non 2 tle")
	runner := New(f.exec, DefaultConfig(), slog.New(slog.DiscardHandler))

	var seen []*Result
	for res, err := range runner.Run(context.Background(), f.plan) {
		require.NoError(t, err)
		seen = append(seen, res)
		if res.Verdict != verdict.Accepted {
			break
		}
	}
	require.Len(t, seen, 2)
	assert.Equal(t, 2, f.exec.CountArgv0("./a.out"))
}

func TestGeneratedInput(t *testing.T) {
	gid := int64(100)
	p := echoProblem(model.Test{Index: 1, UseGenerator: true, GeneratorID: &gid, Data: "5  7"})
	p.Generators = []model.Generator{{ID: gid, Name: "pair", Source: "gen"}}
	f := prepare(t, p, "echo")

	results, err := f.runAll(t)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, verdict.Accepted, results[0].Verdict)

	in, err := f.plan.Workspace.ReadFile(inputFile)
	require.NoError(t, err)
	assert.Equal(t, "5 7\n", string(in))

	calls := f.exec.Calls()
	var genArgv []string
	for _, c := range calls {
		if c.Argv[0] == "./gen-100" {
			genArgv = c.Argv
		}
	}
	assert.Equal(t, []string{"./gen-100", "5", "7"}, genArgv)
}

func TestGeneratorFailureIsTestError(t *testing.T) {
	gid := int64(100)
	p := echoProblem(
		model.Test{Index: 1, Data: "x"},
		model.Test{Index: 2, UseGenerator: true, GeneratorID: &gid, Data: "1"},
	)
	p.Generators = []model.Generator{{ID: gid, Name: "broken", Source: "exit 3"}}
	f := prepare(t, p, "echo")

	results, err := f.runAll(t)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, verdict.TestError, results[1].Verdict)
	assert.Equal(t, "Test error on test #2", results[1].Message)
	assert.Contains(t, results[1].DebugMessage, "Generator failed")
	assert.False(t, results[1].Executed)
}

func TestReferenceFailureIsTestError(t *testing.T) {
	p := echoProblem(staticTests("1", "2")...)
	p.Solution = "echo\non 2 re"
	f := prepare(t, p, "echo")

	results, err := f.runAll(t)
	require.NoError(t, err)
	assert.Equal(t, verdict.Accepted, results[0].Verdict)
	assert.Equal(t, verdict.TestError, results[1].Verdict)
	assert.Contains(t, results[1].DebugMessage, "Reference solution failed")
	assert.True(t, results[1].Executed)
}

func TestCheckerKilledIsTestFailed(t *testing.T) {
	p := echoProblem(staticTests("1")...)
	p.Checker = "checker\non 1 tle"
	f := prepare(t, p, "echo")

	results, err := f.runAll(t)
	require.NoError(t, err)
	assert.Equal(t, verdict.TestFailed, results[0].Verdict)
	assert.Equal(t, "Test failed on test #1", results[0].Message)
}

func TestCheckerExitCodes(t *testing.T) {
	p := echoProblem(staticTests("1", "2", "3", "4")...)
	p.Checker = "checker\non 1 exit 2\non 2 exit 3\non 3 exit 8\non 4 exit 42"
	f := prepare(t, p, "echo")

	results, err := f.runAll(t)
	require.NoError(t, err)
	got := make([]verdict.Verdict, len(results))
	for i, r := range results {
		got[i] = r.Verdict
	}
	assert.Equal(t, []verdict.Verdict{
		verdict.PresentationError,
		verdict.TestFailed,
		verdict.UnexpectedEOF,
		verdict.UnknownCode,
	}, got)
}

func TestPointsExitOutsideGradedModeIsUnknownCode(t *testing.T) {
	p := echoProblem(staticTests("1")...)
	p.Checker = "points 5"
	f := prepare(t, p, "echo")

	results, err := f.runAll(t)
	require.NoError(t, err)
	assert.Equal(t, verdict.UnknownCode, results[0].Verdict)
	assert.Zero(t, results[0].Points)
}

func TestGradedPointsAreClamped(t *testing.T) {
	tests := staticTests("1", "2")
	tests[0].Points = 3
	tests[1].Points = 10
	p := echoProblem(tests...)
	p.IsGraded = true
	p.Checker = "points 5"
	f := prepare(t, p, "echo")

	results, err := f.runAll(t)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, verdict.Points, results[0].Verdict)
	assert.Equal(t, 3.0, results[0].Points)
	assert.Equal(t, 5.0, results[1].Points)
	assert.Equal(t, "5 points on test #2", results[1].Message)
}

func TestGradedZeroPointTestEarnsNothing(t *testing.T) {
	tests := staticTests("1")
	tests[0].Points = 0
	p := echoProblem(tests...)
	p.IsGraded = true
	p.Checker = "points 50"
	f := prepare(t, p, "echo")

	results, err := f.runAll(t)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, verdict.Points, results[0].Verdict)
	assert.Equal(t, 0.0, results[0].Points)
	assert.Equal(t, "0 points on test #1", results[0].Message)
}

func TestGradedNonFinitePointsAreTestFailed(t *testing.T) {
	for _, reported := range []string{"NaN", "Inf", "-Infinity"} {
		t.Run(reported, func(t *testing.T) {
			tests := staticTests("1")
			tests[0].Points = 10
			p := echoProblem(tests...)
			p.IsGraded = true
			p.Checker = "points " + reported
			f := prepare(t, p, "echo")

			results, err := f.runAll(t)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, verdict.TestFailed, results[0].Verdict)
			assert.Zero(t, results[0].Points)
		})
	}
}

func TestGradedAcceptedEarnsTestPoints(t *testing.T) {
	tests := staticTests("1")
	tests[0].Points = 4
	p := echoProblem(tests...)
	p.IsGraded = true
	f := prepare(t, p, "echo")

	results, err := f.runAll(t)
	require.NoError(t, err)
	assert.Equal(t, verdict.Accepted, results[0].Verdict)
	assert.Equal(t, 4.0, results[0].Points)
}

func interactiveProblem(tests ...model.Test) *model.Problem {
	p := echoProblem(tests...)
	p.IsInteractive = true
	p.Interactor = "interactor"
	return p
}

func TestInteractive(t *testing.T) {
	f := prepare(t, interactiveProblem(staticTests("1", "2", "3")...), "echo\non 2 re\non 3 tle")

	results, err := f.runAll(t)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, verdict.Accepted, results[0].Verdict)
	assert.Equal(t, verdict.UnexpectedEOF, results[1].Verdict, "interactor saw the solution die")
	assert.Equal(t, verdict.TimeLimitExceeded, results[2].Verdict, "own limits win over the interactor")
	assert.Equal(t, 1, f.exec.CountArgv0("./checker"))
}

func TestInteractorKilledIsTestFailed(t *testing.T) {
	p := interactiveProblem(staticTests("1")...)
	p.Interactor = "interactor\non 1 tle"
	f := prepare(t, p, "echo")

	results, err := f.runAll(t)
	require.NoError(t, err)
	assert.Equal(t, verdict.TestFailed, results[0].Verdict)
}

func TestInfrastructureErrorEndsRun(t *testing.T) {
	f := prepare(t, echoProblem(staticTests("1", "2", "3")...), "echo\non 2 xx")

	results, err := f.runAll(t)
	require.ErrorIs(t, err, sandbox.ErrInfrastructure)
	assert.Len(t, results, 1)
	assert.Equal(t, 2, f.exec.CountArgv0("./a.out"))
}

func TestCancelledContextIsInfrastructureError(t *testing.T) {
	f := prepare(t, echoProblem(staticTests("1")...), "echo")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := New(f.exec, DefaultConfig(), slog.New(slog.DiscardHandler))
	for _, err := range runner.Run(ctx, f.plan) {
		require.ErrorIs(t, err, sandbox.ErrInfrastructure)
	}
}
