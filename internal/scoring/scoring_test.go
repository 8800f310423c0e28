package scoring

import (
	"testing"
	"time"

	"github.com/ruslanjan/arrow/internal/model"
	"github.com/ruslanjan/arrow/internal/tester"
	"github.com/ruslanjan/arrow/internal/verdict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(test model.Test, pos int, v verdict.Verdict) *tester.Result {
	msg := v.OnTest(pos)
	if v == verdict.Accepted {
		msg = v.Verbose()
	}
	return &tester.Result{
		Test:     test,
		Position: pos,
		Verdict:  v,
		Message:  msg,
		Executed: true,
		Time:     time.Duration(pos) * 100 * time.Millisecond,
		MemoryKB: int64(pos) * 1000,
	}
}

func TestStrictStopsAtFirstFailure(t *testing.T) {
	tests := []model.Test{{ID: 1, Index: 1}, {ID: 2, Index: 2}, {ID: 3, Index: 3}}
	a := New(model.Strict, nil, tests)

	assert.True(t, a.Add(result(tests[0], 1, verdict.Accepted)))
	assert.False(t, a.Add(result(tests[1], 2, verdict.TimeLimitExceeded)))

	s := a.Finish()
	assert.Equal(t, verdict.TimeLimitExceeded, s.Verdict)
	assert.Equal(t, "Time limit exceeded on test #2", s.Message)
	assert.Equal(t, 200*time.Millisecond, s.MaxTime)
	assert.Equal(t, int64(2000), s.MaxMemoryKB)
	assert.Len(t, s.Results, 2)
}

func TestStrictAllAccepted(t *testing.T) {
	tests := []model.Test{{ID: 1, Index: 1}, {ID: 2, Index: 2}}
	a := New(model.Strict, nil, tests)
	for i, tt := range tests {
		require.True(t, a.Add(result(tt, i+1, verdict.Accepted)))
	}
	s := a.Finish()
	assert.Equal(t, verdict.Accepted, s.Verdict)
	assert.Equal(t, "Accepted", s.Message)
}

func TestStrictIgnoresUsageOfUnexecutedTests(t *testing.T) {
	tests := []model.Test{{ID: 1, Index: 1}}
	a := New(model.Strict, nil, tests)
	r := result(tests[0], 5, verdict.TestError)
	r.Executed = false
	a.Add(r)
	s := a.Finish()
	assert.Zero(t, s.MaxTime)
	assert.Equal(t, verdict.TestError, s.Verdict)
}

func subTaskSetup() ([]model.TestGroup, []model.Test) {
	g1, g2 := int64(10), int64(20)
	groups := []model.TestGroup{
		{ID: g1, Index: 1, Points: 40},
		{ID: g2, Index: 2, Points: 60},
	}
	tests := []model.Test{
		{ID: 1, Index: 1, GroupID: &g1},
		{ID: 2, Index: 2, GroupID: &g1},
		{ID: 3, Index: 3, GroupID: &g2},
		{ID: 4, Index: 4, GroupID: &g2},
		{ID: 5, Index: 5},
	}
	return groups, tests
}

func TestSubTask(t *testing.T) {
	for _, tc := range []struct {
		name     string
		verdicts []verdict.Verdict
		points   float64
		awarded  []int64
	}{
		{
			name:     "all accepted",
			verdicts: []verdict.Verdict{verdict.Accepted, verdict.Accepted, verdict.Accepted, verdict.Accepted, verdict.Accepted},
			points:   100,
			awarded:  []int64{10, 20},
		},
		{
			name:     "one group broken",
			verdicts: []verdict.Verdict{verdict.Accepted, verdict.WrongAnswer, verdict.Accepted, verdict.Accepted, verdict.Accepted},
			points:   60,
			awarded:  []int64{20},
		},
		{
			name:     "ungrouped failure does not matter",
			verdicts: []verdict.Verdict{verdict.Accepted, verdict.Accepted, verdict.Accepted, verdict.Accepted, verdict.RuntimeError},
			points:   100,
			awarded:  []int64{10, 20},
		},
		{
			name:     "nothing",
			verdicts: []verdict.Verdict{verdict.TimeLimitExceeded, verdict.Accepted, verdict.Accepted, verdict.MemoryLimitExceeded, verdict.Accepted},
			points:   0,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			groups, tests := subTaskSetup()
			a := New(model.SubTask, groups, tests)
			for i, v := range tc.verdicts {
				require.True(t, a.Add(result(tests[i], i+1, v)), "sub-task mode never stops early")
			}
			s := a.Finish()
			assert.Equal(t, verdict.Accepted, s.Verdict)
			assert.Equal(t, tc.points, s.Points)

			var got []int64
			for _, g := range s.Groups {
				got = append(got, g.Group.ID)
				assert.Len(t, g.TestIDs, 2)
			}
			assert.Equal(t, tc.awarded, got)
		})
	}
}

func TestSubTaskMessage(t *testing.T) {
	groups, tests := subTaskSetup()
	a := New(model.SubTask, groups, tests)
	for i := range tests {
		v := verdict.Accepted
		if i == 0 {
			v = verdict.WrongAnswer
		}
		a.Add(result(tests[i], i+1, v))
	}
	s := a.Finish()
	assert.Equal(t, "Points: 60", s.Message)
	assert.Contains(t, s.DebugMessage, "Wrong answer on test #1")
}

func TestEmptyGroupIsNotAwarded(t *testing.T) {
	groups := []model.TestGroup{{ID: 1, Points: 10}}
	a := New(model.SubTask, groups, nil)
	s := a.Finish()
	assert.Zero(t, s.Points)
	assert.Empty(t, s.Groups)
}

func TestGraded(t *testing.T) {
	tests := []model.Test{{ID: 1, Index: 1, Points: 2}, {ID: 2, Index: 2, Points: 3}, {ID: 3, Index: 3, Points: 5}}
	a := New(model.Graded, nil, tests)

	ok := result(tests[0], 1, verdict.Accepted)
	ok.Points = 2
	partial := result(tests[1], 2, verdict.Points)
	partial.Points = 1.5
	wrong := result(tests[2], 3, verdict.WrongAnswer)

	assert.True(t, a.Add(ok))
	assert.True(t, a.Add(partial))
	assert.True(t, a.Add(wrong))

	s := a.Finish()
	assert.Equal(t, verdict.Accepted, s.Verdict)
	assert.Equal(t, 3.5, s.Points)
	assert.Equal(t, "Points: 3.5", s.Message)
}
