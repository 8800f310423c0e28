package api

// Non-streaming report of a whole judging attempt

// CompileResult represents compilation outcome
type CompileResult struct {
	Success bool    `json:"success"`
	Error   *string `json:"error,omitempty"`

	// Resource usage of the submission's compiler
	CpuMillis  *int64 `json:"cpu_ms,omitempty"`
	WallMillis *int64 `json:"wall_ms,omitempty"`
	RamKiBytes *int64 `json:"ram_kib,omitempty"`
}

type JobStatus string

const (
	Success       JobStatus = "success"
	CompileError  JobStatus = "compile_error"
	InternalError JobStatus = "internal_error"
)

// JudgeReport is a complete report of one judging attempt.
type JudgeReport struct {
	SubmissionID int64  `json:"submission_id"`
	AttemptID    string `json:"attempt_id"`

	Status      JobStatus     `json:"status"`
	Compilation CompileResult `json:"compilation"`

	// Test results in grading order (empty if compilation failed)
	TestResults []TestResult `json:"test_results"`
	Summary     *Summary     `json:"summary,omitempty"`

	// Overall error message (for internal errors)
	ErrorMessage *string `json:"error_message,omitempty"`

	StartTime   string `json:"start_time"`
	FinishTime  string `json:"finish_time"`
	TotalTimeMs int64  `json:"total_time_ms"`

	SystemInfo *string `json:"system_info,omitempty"`
}
