package isolate

import (
	"context"
	"log/slog"
	"os"

	"github.com/ruslanjan/arrow/internal/sandbox"
	"golang.org/x/sync/errgroup"
)

var _ sandbox.Executor = (*Isolate)(nil)

// Execute runs req in a freshly initialised box which is wiped afterwards,
// so nothing carries over between executions.
func (i *Isolate) Execute(ctx context.Context, req sandbox.Request) (*sandbox.Outcome, error) {
	box, err := i.NewBox(ctx)
	if err != nil {
		return nil, err
	}
	defer i.closeBox(box)

	cmd, err := box.Command(ctx, req)
	if err != nil {
		return nil, err
	}
	i.log.Debug("running", "box", box.Id(), "argv", req.Argv)
	out, err := cmd.Run()
	if err != nil {
		return nil, err
	}
	i.log.Debug("finished", "box", box.Id(), "status", out.Status,
		slog.Int("exit", out.ExitCode), slog.Duration("time", out.Time), slog.Int64("mem_kb", out.MemoryKB))
	return out, nil
}

// ExecuteInteractive runs the solution and the interactor in two boxes
// connected by a pair of pipes.
func (i *Isolate) ExecuteInteractive(ctx context.Context, sol, inter sandbox.Request) (*sandbox.Outcome, *sandbox.Outcome, error) {
	sol.Stdin, sol.Stdout = "", ""
	inter.Stdin, inter.Stdout = "", ""

	solBox, err := i.NewBox(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer i.closeBox(solBox)
	interBox, err := i.NewBox(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer i.closeBox(interBox)

	solCmd, err := solBox.Command(ctx, sol)
	if err != nil {
		return nil, nil, err
	}
	defer solCmd.Discard()
	interCmd, err := interBox.Command(ctx, inter)
	if err != nil {
		return nil, nil, err
	}
	defer interCmd.Discard()

	toInterR, toInterW, err := os.Pipe()
	if err != nil {
		return nil, nil, sandbox.Infra("pipe", err)
	}
	toSolR, toSolW, err := os.Pipe()
	if err != nil {
		toInterR.Close()
		toInterW.Close()
		return nil, nil, sandbox.Infra("pipe", err)
	}
	solCmd.cmd.Stdin, solCmd.cmd.Stdout = toSolR, toInterW
	interCmd.cmd.Stdin, interCmd.cmd.Stdout = toInterR, toSolW

	startErr := interCmd.Start()
	if startErr == nil {
		if startErr = solCmd.Start(); startErr != nil {
			_ = interCmd.cmd.Process.Kill()
			_, _ = interCmd.Wait()
		}
	}
	// the children hold their own copies now
	for _, f := range []*os.File{toInterR, toInterW, toSolR, toSolW} {
		f.Close()
	}
	if startErr != nil {
		return nil, nil, startErr
	}

	var solOut, interOut *sandbox.Outcome
	var g errgroup.Group
	g.Go(func() error {
		var err error
		solOut, err = solCmd.Wait()
		return err
	})
	g.Go(func() error {
		var err error
		interOut, err = interCmd.Wait()
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return solOut, interOut, nil
}

func (i *Isolate) closeBox(box *Box) {
	if err := box.Close(); err != nil {
		i.log.Warn("failed to clean up box", "box", box.Id(), "error", err)
	}
}
