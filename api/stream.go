package api

import "time"

// MsgType is a message type for streaming responses
type MsgType string

// Streaming message type constants
const (
	StartJobMsg      MsgType = "job_start"
	StartCompileMsg  MsgType = "compile_start"
	FinishCompileMsg MsgType = "compile_finish"
	ReachTestMsg     MsgType = "test_reach"
	FinishTestMsg    MsgType = "test_finish"
	FinishJobMsg     MsgType = "job_finish"
)

// Runtime data size constraints for streaming
const (
	MaxRuntimeDataHeight = 40
	MaxRuntimeDataWidth  = 80
)

// Header is the common header for all streaming response messages
type Header struct {
	SubmissionID int64   `json:"submission_id"`
	AttemptID    string  `json:"attempt_id"`
	MsgType      MsgType `json:"msg_type"`
}

// StartJob message sent when judging begins
type StartJob struct {
	Header
	SystemInfo  string `json:"system_info"`
	StartedTime string `json:"started_time"`
}

// StartCompile message sent when compilation begins
type StartCompile struct {
	Header
}

// FinishCompile message sent when the submission has been compiled
type FinishCompile struct {
	Header
	RuntimeData *RuntimeData `json:"runtime_data"`
}

// ReachTest message sent when a test is reached
type ReachTest struct {
	Header
	TestID   int64 `json:"test_id"`
	Position int   `json:"position"`
}

// FinishTest message sent when a test completes
type FinishTest struct {
	Header
	Result TestResult `json:"result"`
}

// FinishJob message sent when judging completes. Summary is nil when the
// attempt ended with an error.
type FinishJob struct {
	Header
	Summary       *Summary `json:"summary"`
	ErrorMessage  *string  `json:"error_message"`
	CompileError  bool     `json:"compile_error"`
	InternalError bool     `json:"internal_error"`
}

func NewHeader(submissionID int64, attemptID string, msgType MsgType) Header {
	return Header{
		SubmissionID: submissionID,
		AttemptID:    attemptID,
		MsgType:      msgType,
	}
}

func NewStartJob(h Header, systemInfo string) StartJob {
	h.MsgType = StartJobMsg
	return StartJob{
		Header:      h,
		SystemInfo:  systemInfo,
		StartedTime: time.Now().Format(time.RFC3339),
	}
}

func NewStartCompile(h Header) StartCompile {
	h.MsgType = StartCompileMsg
	return StartCompile{Header: h}
}

func NewFinishCompile(h Header, runtimeData *RuntimeData) FinishCompile {
	h.MsgType = FinishCompileMsg
	return FinishCompile{Header: h, RuntimeData: runtimeData}
}

func NewReachTest(h Header, testID int64, position int) ReachTest {
	h.MsgType = ReachTestMsg
	return ReachTest{Header: h, TestID: testID, Position: position}
}

func NewFinishTest(h Header, res TestResult) FinishTest {
	h.MsgType = FinishTestMsg
	return FinishTest{Header: h, Result: res}
}

func NewFinishJob(h Header, summary *Summary, errorMessage *string, compileError, internalError bool) FinishJob {
	h.MsgType = FinishJobMsg
	return FinishJob{
		Header:        h,
		Summary:       summary,
		ErrorMessage:  errorMessage,
		CompileError:  compileError,
		InternalError: internalError,
	}
}
