package sandbox

import (
	"fmt"
	"strings"
	"time"
)

type Status int

const (
	Completed Status = iota
	RuntimeError
	TimeLimitExceeded
	MemoryLimitExceeded
	WallTimeExceeded
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case RuntimeError:
		return "runtime error"
	case TimeLimitExceeded:
		return "time limit exceeded"
	case MemoryLimitExceeded:
		return "memory limit exceeded"
	case WallTimeExceeded:
		return "wall time exceeded"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

type Outcome struct {
	Status   Status
	ExitCode int
	Signal   int

	Time     time.Duration
	WallTime time.Duration
	MemoryKB int64

	CswVoluntary int64
	CswForced    int64
	OOMKilled    bool

	// IsolateStatus is the raw two letter status code, empty on success.
	IsolateStatus string
	Message       string
}

// Exited reports whether the program terminated by itself, so that ExitCode
// is meaningful. Programs exiting with a nonzero code are reported as
// RuntimeError by the sandbox but still exited.
func (o *Outcome) Exited() bool {
	if o.Signal != 0 {
		return false
	}
	return o.Status == Completed || o.Status == RuntimeError
}

// Classify turns parsed execution metadata into an outcome. Statuses the
// sandbox uses for its own faults become infrastructure errors.
func Classify(m *Meta, lim Limits) (*Outcome, error) {
	o := &Outcome{
		ExitCode:      m.ExitCode,
		Signal:        m.ExitSignal,
		Time:          seconds(m.TimeSec),
		WallTime:      seconds(m.TimeWallSec),
		MemoryKB:      m.MaxRssKB,
		CswVoluntary:  m.CswVoluntary,
		CswForced:     m.CswForced,
		OOMKilled:     m.CgOOMKilled,
		IsolateStatus: m.Status,
		Message:       m.Message,
	}

	switch m.Status {
	case "":
		if m.ExitCode != 0 {
			o.Status = RuntimeError
		} else {
			o.Status = Completed
		}
	case "RE":
		o.Status = RuntimeError
		if m.CgOOMKilled {
			o.Status = MemoryLimitExceeded
		}
	case "SG":
		o.Status = RuntimeError
		if m.CgOOMKilled || (lim.MemoryKB > 0 && m.MaxRssKB >= lim.MemoryKB) {
			o.Status = MemoryLimitExceeded
		}
	case "TO":
		o.Status = TimeLimitExceeded
		if wallClockKill(m, lim) {
			o.Status = WallTimeExceeded
		}
	case "XX":
		return nil, Infra("run", fmt.Errorf("internal error: %s", m.Message))
	default:
		return nil, Infra("run", fmt.Errorf("unknown status %q", m.Status))
	}
	return o, nil
}

func wallClockKill(m *Meta, lim Limits) bool {
	if strings.Contains(strings.ToLower(m.Message), "wall") {
		return true
	}
	if lim.CPUTime <= 0 || lim.WallTime <= 0 {
		return false
	}
	return seconds(m.TimeSec) < lim.CPUTime && seconds(m.TimeWallSec) >= lim.WallTime
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
