// Package isolate runs programs in isolate(1) sandboxes.
package isolate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/ruslanjan/arrow/internal/sandbox"
)

type Config struct {
	// Binary is the isolate executable.
	Binary string
	// CGroups enables control group mode (--cg).
	CGroups bool
	// FirstBoxID and BoxCount describe the box ids this process may use.
	FirstBoxID int
	BoxCount   int
	// MetaDir holds the temporary metadata files.
	MetaDir string
	// Env is passed to every sandboxed program.
	Env []string
}

func DefaultConfig() Config {
	return Config{
		Binary:     "isolate",
		CGroups:    true,
		FirstBoxID: 0,
		BoxCount:   64,
		Env: []string{
			"HOME=/work",
			"PATH=/usr/local/bin:/usr/bin:/bin",
		},
	}
}

// Isolate allocates boxes and implements sandbox.Executor.
type Isolate struct {
	cfg    Config
	log    *slog.Logger
	inUse  *xsync.MapOf[int, struct{}]
	pollIv time.Duration
}

func New(cfg Config, logger *slog.Logger) *Isolate {
	if cfg.Binary == "" {
		cfg.Binary = "isolate"
	}
	if cfg.BoxCount <= 0 {
		cfg.BoxCount = 1
	}
	return &Isolate{
		cfg:    cfg,
		log:    logger,
		inUse:  xsync.NewMapOf[int, struct{}](),
		pollIv: 50 * time.Millisecond,
	}
}

func (i *Isolate) commonArgs(boxID int) []string {
	args := make([]string, 0, 2)
	if i.cfg.CGroups {
		args = append(args, "--cg")
	}
	return append(args, fmt.Sprintf("--box-id=%d", boxID))
}

// NewBox reserves a free box id, wipes whatever a crashed run may have left
// in it and initialises it. It blocks while every id is taken.
func (i *Isolate) NewBox(ctx context.Context) (*Box, error) {
	id, err := i.reserveID(ctx)
	if err != nil {
		return nil, err
	}

	if err := i.cleanupBox(ctx, id); err != nil {
		i.inUse.Delete(id)
		return nil, err
	}
	path, err := i.initBox(ctx, id)
	if err != nil {
		i.inUse.Delete(id)
		return nil, err
	}
	return newIsolateBox(i, id, path), nil
}

func (i *Isolate) reserveID(ctx context.Context) (int, error) {
	for {
		for n := 0; n < i.cfg.BoxCount; n++ {
			id := i.cfg.FirstBoxID + n
			if _, loaded := i.inUse.LoadOrStore(id, struct{}{}); !loaded {
				return id, nil
			}
		}
		select {
		case <-ctx.Done():
			return 0, sandbox.Infra("reserve box", ctx.Err())
		case <-time.After(i.pollIv):
		}
	}
}

func (i *Isolate) eraseBox(id int) error {
	defer i.inUse.Delete(id)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return i.cleanupBox(ctx, id)
}

func (i *Isolate) cleanupBox(ctx context.Context, boxID int) error {
	args := append(i.commonArgs(boxID), "--cleanup")
	if _, err := i.control(ctx, args); err != nil {
		return sandbox.Infra("cleanup box", err)
	}
	return nil
}

// initBox initializes a new box with the given id and returns the path to the box
func (i *Isolate) initBox(ctx context.Context, boxID int) (string, error) {
	args := append(i.commonArgs(boxID), "--init")
	out, err := i.control(ctx, args)
	if err != nil {
		return "", sandbox.Infra("init box", err)
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}

func (i *Isolate) control(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, i.cfg.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%v: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}
	return out, nil
}

// Version runs isolate --version; used by the health check.
func (i *Isolate) Version(ctx context.Context) (string, error) {
	out, err := i.control(ctx, []string{"--version"})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
