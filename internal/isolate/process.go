package isolate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ruslanjan/arrow/internal/sandbox"
)

type Cmd struct {
	ctx          context.Context
	cmd          *exec.Cmd
	started      bool
	metaFilePath string
	limits       sandbox.Limits
	stderr       bytes.Buffer
}

// Command prepares req to run in box. Stdin and Stdout of the returned
// command may be replaced before Start.
func (box *Box) Command(ctx context.Context, req sandbox.Request) (*Cmd, error) {
	metaPath, err := newTempIsolateFilePath(box.isolate.cfg.MetaDir)
	if err != nil {
		return nil, sandbox.Infra("create meta file", err)
	}
	c := &Cmd{
		ctx:          ctx,
		metaFilePath: metaPath,
		limits:       req.Limits,
	}
	c.cmd = exec.CommandContext(ctx, box.isolate.cfg.Binary, box.runArgs(req, metaPath)...)
	c.cmd.Stderr = &c.stderr
	return c, nil
}

func newTempIsolateFilePath(dir string) (string, error) {
	file, err := os.CreateTemp(dir, "isolate.*.txt")
	if err != nil {
		return "", err
	}
	err = file.Close()
	if err != nil {
		return "", err
	}
	return file.Name(), nil
}

// Discard removes the metadata file of a command that was never started.
func (process *Cmd) Discard() {
	if !process.started {
		_ = os.Remove(process.metaFilePath)
	}
}

func (process *Cmd) Start() error {
	if process.started {
		panic("process should not be started twice")
	}
	process.started = true
	if err := process.cmd.Start(); err != nil {
		_ = os.Remove(process.metaFilePath)
		return sandbox.Infra("start", err)
	}
	return nil
}

// Wait waits for isolate to exit and classifies the metadata it wrote.
// isolate exits nonzero whenever the program failed, so exit errors are
// expected and only the metadata decides the outcome.
func (process *Cmd) Wait() (*sandbox.Outcome, error) {
	if !process.started {
		panic("process should be started before waiting")
	}
	defer os.Remove(process.metaFilePath)

	err := process.cmd.Wait()
	if ctxErr := process.ctx.Err(); ctxErr != nil {
		return nil, sandbox.Infra("run", ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, sandbox.Infra("run", err)
		}
	}

	meta, err := sandbox.ReadMeta(process.metaFilePath)
	if err != nil {
		if msg := strings.TrimSpace(process.stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w (isolate: %s)", err, msg)
		}
		return nil, err
	}
	return sandbox.Classify(meta, process.limits)
}

func (process *Cmd) Run() (*sandbox.Outcome, error) {
	if err := process.Start(); err != nil {
		return nil, err
	}
	return process.Wait()
}
