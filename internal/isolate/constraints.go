package isolate

import (
	"fmt"
	"time"

	"github.com/ruslanjan/arrow/internal/sandbox"
)

type Constraints struct {
	CpuTimeLimInSec      float64
	ExtraCpuTimeLimInSec float64
	WallTimeLimInSec     float64
	MemoryLimitInKB      int64
	MaxProcesses         int
	MaxOpenFiles         int
}

func DefaultConstraints() Constraints {
	return Constraints{
		CpuTimeLimInSec:      50.0,
		ExtraCpuTimeLimInSec: 0.5,
		WallTimeLimInSec:     10.0,
		MemoryLimitInKB:      2048000,
		MaxProcesses:         128,
		MaxOpenFiles:         128,
	}
}

// ConstraintsFrom fills unset limits with the defaults.
func ConstraintsFrom(lim sandbox.Limits) Constraints {
	c := DefaultConstraints()
	if lim.CPUTime > 0 {
		c.CpuTimeLimInSec = secs(lim.CPUTime)
	}
	if lim.ExtraTime > 0 {
		c.ExtraCpuTimeLimInSec = secs(lim.ExtraTime)
	}
	if lim.WallTime > 0 {
		c.WallTimeLimInSec = secs(lim.WallTime)
	}
	if lim.MemoryKB > 0 {
		c.MemoryLimitInKB = lim.MemoryKB
	}
	if lim.Processes > 0 {
		c.MaxProcesses = lim.Processes
	}
	if lim.OpenFiles > 0 {
		c.MaxOpenFiles = lim.OpenFiles
	}
	return c
}

func secs(d time.Duration) float64 { return d.Seconds() }

// ToArgs renders the constraints as isolate flags. With control groups the
// memory limit applies to the whole process tree.
func (constraints *Constraints) ToArgs(cgroups bool) []string {
	return []string{
		constraints.MemLimArg(cgroups),
		constraints.CpuTimeLimArg(),
		constraints.ExtraCpuTimeLimArg(),
		constraints.WallTimeLimArg(),
		constraints.MaxProcessesArg(),
		constraints.MaxOpenFilesArg(),
	}
}

func (constraints *Constraints) MemLimArg(cgroups bool) string {
	if cgroups {
		return fmt.Sprintf("--cg-mem=%d", constraints.MemoryLimitInKB)
	}
	return fmt.Sprintf("--mem=%d", constraints.MemoryLimitInKB)
}

func (constraints *Constraints) CpuTimeLimArg() string {
	return fmt.Sprintf("--time=%.3f", constraints.CpuTimeLimInSec)
}

func (constraints *Constraints) ExtraCpuTimeLimArg() string {
	return fmt.Sprintf("--extra-time=%.3f", constraints.ExtraCpuTimeLimInSec)
}

func (constraints *Constraints) WallTimeLimArg() string {
	return fmt.Sprintf("--wall-time=%.3f", constraints.WallTimeLimInSec)
}

func (constraints *Constraints) MaxProcessesArg() string {
	return fmt.Sprintf("--processes=%d", constraints.MaxProcesses)
}

func (constraints *Constraints) MaxOpenFilesArg() string {
	return fmt.Sprintf("--open-files=%d", constraints.MaxOpenFiles)
}
