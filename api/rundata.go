package api

// RuntimeData contains execution information for a process.
type RuntimeData struct {
	Stdout   string `json:"out"`
	Stderr   string `json:"err"`
	ExitCode int64  `json:"exit"`

	CpuMillis  int64 `json:"cpu_ms"`
	WallMillis int64 `json:"wall_ms"`
	RamKiBytes int64 `json:"ram_kib"`

	CtxSwV int64 `json:"ctx_sw_v"`
	CtxSwF int64 `json:"ctx_sw_f"`

	ExitSignal  *int64 `json:"signal"`
	CgOomKilled bool   `json:"cg_oom_killed"` // killed on memory allocation?

	IsolateStatus *string `json:"isolate_status"`
	IsolateMsg    *string `json:"isolate_msg"`
}

// TestResult is the judged outcome of one test.
type TestResult struct {
	TestID int64 `json:"test_id"`
	// Position is the 1-based place of the test in grading order.
	Position int    `json:"position"`
	Verdict  string `json:"verdict"`
	Message  string `json:"message"`

	CpuMillis  int64   `json:"cpu_ms"`
	RamKiBytes int64   `json:"ram_kib"`
	Points     float64 `json:"points"`
	Executed   bool    `json:"executed"`
}

// Summary is the final verdict of a submission.
type Summary struct {
	Verdict       string  `json:"verdict"`
	Message       string  `json:"message"`
	Points        float64 `json:"points"`
	MaxCpuMillis  int64   `json:"max_cpu_ms"`
	MaxRamKiBytes int64   `json:"max_ram_kib"`
}
