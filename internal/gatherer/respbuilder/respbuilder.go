package respbuilder

import (
	"sync"
	"time"

	"github.com/ruslanjan/arrow/api"
	"github.com/ruslanjan/arrow/internal/gatherer"
)

// Builder gathers judging events and builds a complete api.JudgeReport.
type Builder struct {
	mu sync.Mutex

	submissionID int64
	attemptID    string
	systemInfo   string

	started  time.Time
	finished *time.Time

	compileResult api.CompileResult
	testResults   []api.TestResult
	summary       *api.Summary

	status       api.JobStatus
	errorMessage *string
}

var _ gatherer.Gatherer = (*Builder)(nil)

func New(submissionID int64, attemptID string) *Builder {
	return &Builder{
		submissionID: submissionID,
		attemptID:    attemptID,
		started:      time.Now(),
		status:       api.Success,
	}
}

func (b *Builder) StartJob(systemInfo string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.systemInfo = systemInfo
}

func (b *Builder) StartCompile() {}

func (b *Builder) FinishCompile(data *api.RuntimeData) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compileResult.Success = true
	if data != nil {
		cpu := data.CpuMillis
		wall := data.WallMillis
		mem := data.RamKiBytes
		b.compileResult.CpuMillis = &cpu
		b.compileResult.WallMillis = &wall
		b.compileResult.RamKiBytes = &mem
	}
}

func (b *Builder) ReachTest(int64, int) {}

func (b *Builder) FinishTest(res api.TestResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.testResults = append(b.testResults, res)
}

func (b *Builder) CompileError(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = api.CompileError
	b.compileResult.Success = false
	b.compileResult.Error = &msg
	b.finish()
}

func (b *Builder) InternalError(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = api.InternalError
	b.errorMessage = &msg
	b.finish()
}

func (b *Builder) FinishJob(summary api.Summary) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.summary = &summary
	b.finish()
}

func (b *Builder) finish() {
	now := time.Now()
	b.finished = &now
}

// Report builds the api.JudgeReport from gathered data.
func (b *Builder) Report() api.JudgeReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := b.started.Format(time.RFC3339)
	finish := start
	total := int64(0)
	if b.finished != nil {
		finish = b.finished.Format(time.RFC3339)
		total = b.finished.Sub(b.started).Milliseconds()
	}
	return api.JudgeReport{
		SubmissionID: b.submissionID,
		AttemptID:    b.attemptID,
		Status:       b.status,
		Compilation:  b.compileResult,
		TestResults:  append([]api.TestResult(nil), b.testResults...),
		Summary: func() *api.Summary {
			if b.summary == nil {
				return nil
			}
			v := *b.summary
			return &v
		}(),
		ErrorMessage: func() *string {
			if b.errorMessage == nil {
				return nil
			}
			v := *b.errorMessage
			return &v
		}(),
		StartTime:   start,
		FinishTime:  finish,
		TotalTimeMs: total,
		SystemInfo: func() *string {
			if b.systemInfo == "" {
				return nil
			}
			v := b.systemInfo
			return &v
		}(),
	}
}
