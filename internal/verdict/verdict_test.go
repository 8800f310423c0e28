package verdict_test

import (
	"testing"

	"github.com/ruslanjan/arrow/internal/verdict"
	"github.com/stretchr/testify/assert"
)

func TestFromCheckerExit(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		points bool
		want   verdict.Verdict
	}{
		{"ok", 0, false, verdict.Accepted},
		{"wrong answer", 1, false, verdict.WrongAnswer},
		{"presentation", 2, false, verdict.PresentationError},
		{"checker failed", 3, false, verdict.TestFailed},
		{"points when graded", 7, true, verdict.Points},
		{"points on strict problem", 7, false, verdict.UnknownCode},
		{"unexpected eof", 8, false, verdict.UnexpectedEOF},
		{"unknown", 42, true, verdict.UnknownCode},
		{"negative", -1, false, verdict.UnknownCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, verdict.FromCheckerExit(tt.code, tt.points))
		})
	}
}

func TestOnTest(t *testing.T) {
	assert.Equal(t, "Time limit exceeded on test #2", verdict.TimeLimitExceeded.OnTest(2))
	assert.Equal(t, "Wrong answer on test #10", verdict.WrongAnswer.OnTest(10))
}

func TestVerbose(t *testing.T) {
	assert.Equal(t, "Accepted", verdict.Accepted.Verbose())
	assert.Equal(t, "XYZ", verdict.Verdict("XYZ").Verbose())
	assert.False(t, verdict.Verdict("XYZ").Valid())
	assert.True(t, verdict.WallTimeExceeded.Valid())
	assert.True(t, verdict.TestError.IsSetupFault())
	assert.False(t, verdict.WrongAnswer.IsSetupFault())
}
