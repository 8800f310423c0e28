// Package gatherer defines the sink of judging progress events.
package gatherer

import (
	"github.com/ruslanjan/arrow/api"
	"github.com/ruslanjan/arrow/internal/sandbox"
	"github.com/ruslanjan/arrow/internal/strtrim"
	"github.com/ruslanjan/arrow/internal/tester"
)

// Gatherer receives progress events of one judging attempt, in order.
// Implementations must not block judging for long.
type Gatherer interface {
	StartJob(systemInfo string)

	StartCompile()
	FinishCompile(data *api.RuntimeData)

	ReachTest(testID int64, position int)
	FinishTest(res api.TestResult)

	CompileError(msg string)
	InternalError(msg string)
	FinishJob(summary api.Summary)
}

// Factory makes the gatherer of one attempt.
type Factory func(submissionID int64, attemptID string) Gatherer

type Nop struct{}

func (Nop) StartJob(string) {}
func (Nop) StartCompile() {}
func (Nop) FinishCompile(*api.RuntimeData) {}
func (Nop) ReachTest(int64, int) {}
func (Nop) FinishTest(api.TestResult) {}
func (Nop) CompileError(string) {}
func (Nop) InternalError(string) {}
func (Nop) FinishJob(api.Summary) {}
func NopFactory(int64, string) Gatherer { return Nop{} }

// Multi fans every event out to all of its gatherers.
type Multi []Gatherer

func (m Multi) StartJob(systemInfo string) {
	for _, g := range m {
		g.StartJob(systemInfo)
	}
}

func (m Multi) StartCompile() {
	for _, g := range m {
		g.StartCompile()
	}
}

func (m Multi) FinishCompile(data *api.RuntimeData) {
	for _, g := range m {
		g.FinishCompile(data)
	}
}

func (m Multi) ReachTest(testID int64, position int) {
	for _, g := range m {
		g.ReachTest(testID, position)
	}
}

func (m Multi) FinishTest(res api.TestResult) {
	for _, g := range m {
		g.FinishTest(res)
	}
}

func (m Multi) CompileError(msg string) {
	for _, g := range m {
		g.CompileError(msg)
	}
}

func (m Multi) InternalError(msg string) {
	for _, g := range m {
		g.InternalError(msg)
	}
}

func (m Multi) FinishJob(summary api.Summary) {
	for _, g := range m {
		g.FinishJob(summary)
	}
}

// RuntimeData converts a sandbox outcome for streaming, trimming its
// output to the streaming bounds.
func RuntimeData(o *sandbox.Outcome, stdout, stderr string) *api.RuntimeData {
	if o == nil {
		return nil
	}
	rd := &api.RuntimeData{
		Stdout:      strtrim.ToRect(stdout, api.MaxRuntimeDataHeight, api.MaxRuntimeDataWidth),
		Stderr:      strtrim.ToRect(stderr, api.MaxRuntimeDataHeight, api.MaxRuntimeDataWidth),
		ExitCode:    int64(o.ExitCode),
		CpuMillis:   o.Time.Milliseconds(),
		WallMillis:  o.WallTime.Milliseconds(),
		RamKiBytes:  o.MemoryKB,
		CtxSwV:      o.CswVoluntary,
		CtxSwF:      o.CswForced,
		CgOomKilled: o.OOMKilled,
	}
	if o.Signal != 0 {
		sig := int64(o.Signal)
		rd.ExitSignal = &sig
	}
	if o.IsolateStatus != "" {
		st := o.IsolateStatus
		rd.IsolateStatus = &st
	}
	if o.Message != "" {
		msg := o.Message
		rd.IsolateMsg = &msg
	}
	return rd
}

func TestResult(r *tester.Result) api.TestResult {
	return api.TestResult{
		TestID:     r.Test.ID,
		Position:   r.Position,
		Verdict:    string(r.Verdict),
		Message:    r.Message,
		CpuMillis:  r.Time.Milliseconds(),
		RamKiBytes: r.MemoryKB,
		Points:     r.Points,
		Executed:   r.Executed,
	}
}
