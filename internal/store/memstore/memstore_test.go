package memstore

import (
	"context"
	"testing"

	"github.com/ruslanjan/arrow/internal/model"
	"github.com/ruslanjan/arrow/internal/store"
	"github.com/ruslanjan/arrow/internal/verdict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetTwiceIsSafe(t *testing.T) {
	ctx := context.Background()
	s := New()
	pid := s.AddProblem(&model.Problem{Name: "a+b"})
	sid := s.AddSubmission(&model.Submission{ProblemID: pid, Data: "x"})

	sub, err := s.Submission(ctx, sid)
	require.NoError(t, err)
	sub.Verdict = verdict.WrongAnswer
	sub.VerdictMessage = "Wrong answer on test #1"
	sub.SetState(model.Tested)
	require.NoError(t, s.UpdateSubmission(ctx, sub))
	require.NoError(t, s.CreateTestResult(ctx, &model.SubmissionTestResult{SubmissionID: sid, Verdict: verdict.WrongAnswer}))
	require.NoError(t, s.CreateTestGroupResult(ctx, &model.SubmissionTestGroupResult{SubmissionID: sid}, nil))

	require.NoError(t, s.ResetSubmission(ctx, sid, "a1"))
	require.NoError(t, s.ResetSubmission(ctx, sid, "a2"))

	sub, err = s.Submission(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, verdict.None, sub.Verdict)
	assert.Empty(t, sub.VerdictMessage)
	assert.Equal(t, model.Queued, sub.State)
	assert.Equal(t, "a2", sub.AttemptID)
	assert.Empty(t, s.TestResults(sid))
	assert.Empty(t, s.GroupResults(sid))
}

func TestGroupBackLink(t *testing.T) {
	ctx := context.Background()
	s := New()
	r1 := &model.SubmissionTestResult{SubmissionID: 7}
	r2 := &model.SubmissionTestResult{SubmissionID: 7}
	require.NoError(t, s.CreateTestResult(ctx, r1))
	require.NoError(t, s.CreateTestResult(ctx, r2))

	g := &model.SubmissionTestGroupResult{SubmissionID: 7, Points: 40}
	require.NoError(t, s.CreateTestGroupResult(ctx, g, []int64{r1.ID}))

	rows := s.TestResults(7)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].TestGroupResultID)
	assert.Equal(t, g.ID, *rows[0].TestGroupResultID)
	assert.Nil(t, rows[1].TestGroupResultID)
}

func TestArtifacts(t *testing.T) {
	ctx := context.Background()
	s := New()
	pid := s.AddProblem(&model.Problem{Generators: []model.Generator{{Name: "gen"}}})
	p, err := s.Problem(ctx, pid)
	require.NoError(t, err)
	gid := p.Generators[0].ID

	require.NoError(t, s.SaveProblemArtifact(ctx, pid, model.CheckerArtifact, []byte("bin")))
	require.NoError(t, s.SaveGeneratorArtifact(ctx, gid, []byte("gen")))
	p, err = s.Problem(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, []byte("bin"), p.CheckerCompiled)
	assert.Equal(t, []byte("gen"), p.Generators[0].Compiled)

	require.NoError(t, s.ClearArtifacts(ctx, pid))
	p, err = s.Problem(ctx, pid)
	require.NoError(t, err)
	assert.Nil(t, p.CheckerCompiled)
	assert.Nil(t, p.Generators[0].Compiled)

	require.ErrorIs(t, s.SaveGeneratorArtifact(ctx, 999, nil), store.ErrNotFound)
	_, err = s.Submission(ctx, 12345)
	require.ErrorIs(t, err, store.ErrNotFound)
}
