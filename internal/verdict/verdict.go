package verdict

import "fmt"

// Verdict is the categorical outcome of judging a submission or a single test.
// The string values are stored as is in the submission tables.
type Verdict string

const (
	None                Verdict = ""
	Accepted            Verdict = "OK"
	WrongAnswer         Verdict = "WA"
	PresentationError   Verdict = "PE"
	TestFailed          Verdict = "TF"
	Points              Verdict = "PTS"
	UnexpectedEOF       Verdict = "EOF"
	UnknownCode         Verdict = "UC"
	TestError           Verdict = "TE"
	TimeLimitExceeded   Verdict = "TLE"
	MemoryLimitExceeded Verdict = "MLE"
	RuntimeError        Verdict = "RE"
	CompilationError    Verdict = "CP"
	WallTimeExceeded    Verdict = "WTE"
)

var verbose = map[Verdict]string{
	Accepted:            "Accepted",
	WrongAnswer:         "Wrong answer",
	PresentationError:   "Presentation error",
	TestFailed:          "Test failed",
	Points:              "Points",
	UnexpectedEOF:       "Unexpected EOF",
	UnknownCode:         "Unknown checker code",
	TestError:           "Test error",
	TimeLimitExceeded:   "Time limit exceeded",
	MemoryLimitExceeded: "Memory limit exceeded",
	RuntimeError:        "Runtime error",
	CompilationError:    "Compilation error",
	WallTimeExceeded:    "Wall time limit exceeded",
}

// Verbose returns the human readable name shown to users.
func (v Verdict) Verbose() string {
	if s, ok := verbose[v]; ok {
		return s
	}
	return string(v)
}

func (v Verdict) Valid() bool {
	_, ok := verbose[v]
	return ok
}

// OnTest formats the per-test message, e.g. "Wrong answer on test #3".
func (v Verdict) OnTest(position int) string {
	return fmt.Sprintf("%s on test #%d", v.Verbose(), position)
}

// IsSetupFault reports verdicts that point at a broken problem setup or
// judge malfunction rather than at the submitted code.
func (v Verdict) IsSetupFault() bool {
	return v == TestFailed || v == TestError
}

// testlib exit codes
const (
	exitOK     = 0
	exitWA     = 1
	exitPE     = 2
	exitFail   = 3
	exitPoints = 7
	exitEOF    = 8
)

// FromCheckerExit maps a checker or interactor exit code to a verdict.
// Exit code 7 means points and is only meaningful when the problem awards
// per-test points; anywhere else it is reported as an unknown code.
func FromCheckerExit(code int, pointsAllowed bool) Verdict {
	switch code {
	case exitOK:
		return Accepted
	case exitWA:
		return WrongAnswer
	case exitPE:
		return PresentationError
	case exitFail:
		return TestFailed
	case exitPoints:
		if pointsAllowed {
			return Points
		}
		return UnknownCode
	case exitEOF:
		return UnexpectedEOF
	default:
		return UnknownCode
	}
}
