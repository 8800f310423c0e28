package termgath

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/ruslanjan/arrow/api"
	"github.com/stretchr/testify/assert"
)

func TestPrintsProgress(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	g := NewWriter(&buf)

	g.StartJob("")
	g.StartCompile()
	g.FinishCompile(&api.RuntimeData{CpuMillis: 120})
	g.ReachTest(42, 1)
	g.FinishTest(api.TestResult{TestID: 42, Position: 1, Verdict: "TLE", CpuMillis: 1001})
	g.FinishJob(api.Summary{Verdict: "TLE", Message: "Time limit exceeded on test #1"})

	out := buf.String()
	assert.Contains(t, out, "-> Test #1 (id 42)")
	assert.Contains(t, out, "<- Test #1 TLE cpu=1001ms")
	assert.Contains(t, out, "== TLE: Time limit exceeded on test #1 ==")
}
