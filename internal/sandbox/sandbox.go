// Package sandbox defines how untrusted programs are executed: the request,
// the resource limits, and the outcome reported back to the judge.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInfrastructure marks failures of the sandbox itself. They never carry a
// verdict; the judging attempt has to be aborted and retried.
var ErrInfrastructure = errors.New("sandbox infrastructure failure")

type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("sandbox %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

func (e *InfrastructureError) Is(target error) bool { return target == ErrInfrastructure }

// Infra wraps err as an infrastructure failure of operation op.
func Infra(op string, err error) error {
	return &InfrastructureError{Op: op, Err: err}
}

type Limits struct {
	CPUTime   time.Duration
	ExtraTime time.Duration
	WallTime  time.Duration
	MemoryKB  int64
	Processes int
	OpenFiles int
}

// Request describes one execution. Workdir is a host directory mounted as
// the working directory of the program; Stdin, Stdout and Stderr are file
// names relative to it. Empty redirects inherit the sandbox defaults.
type Request struct {
	Argv    []string
	Workdir string
	Stdin   string
	Stdout  string
	Stderr  string
	Limits  Limits
}

type Executor interface {
	Execute(ctx context.Context, req Request) (*Outcome, error)
	// ExecuteInteractive runs solution and interactor in separate sandboxes
	// with the solution's stdout piped into the interactor's stdin and the
	// interactor's stdout piped into the solution's stdin. Stdin and Stdout
	// of both requests are ignored.
	ExecuteInteractive(ctx context.Context, solution, interactor Request) (*Outcome, *Outcome, error)
}
