// Package workspace manages the scratch directory owned by one judging
// attempt.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

type Workspace struct {
	dir string
}

// New creates a uniquely named directory under root. Sandboxed programs run
// under another uid and write into it, so it is world writable.
func New(root string) (*Workspace, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	dir := filepath.Join(root, "attempt-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o777); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	// umask may have stripped the write bits
	if err := os.Chmod(dir, 0o777); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to chmod workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

func (w *Workspace) Dir() string { return w.dir }

func (w *Workspace) Path(name string) string { return filepath.Join(w.dir, name) }

func (w *Workspace) WriteFile(name string, data []byte, perm fs.FileMode) error {
	p := w.Path(name)
	if err := os.WriteFile(p, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	// the sandbox user must be able to read (and run) it
	return os.Chmod(p, perm)
}

func (w *Workspace) ReadFile(name string) ([]byte, error) {
	b, err := os.ReadFile(w.Path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return b, nil
}

// ReadFileLimit reads at most limit bytes of name. A missing file reads as
// empty.
func (w *Workspace) ReadFileLimit(name string, limit int64) (string, error) {
	f, err := os.Open(w.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return string(b), nil
}

func (w *Workspace) Exists(name string) bool {
	_, err := os.Stat(w.Path(name))
	return err == nil
}

// Remove deletes the named files, ignoring the ones that do not exist.
func (w *Workspace) Remove(names ...string) error {
	for _, n := range names {
		if err := os.Remove(w.Path(n)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", n, err)
		}
	}
	return nil
}

// Mkdir creates a world writable subdirectory.
func (w *Workspace) Mkdir(name string) (string, error) {
	p := w.Path(name)
	if err := os.Mkdir(p, 0o777); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	if err := os.Chmod(p, 0o777); err != nil {
		return "", fmt.Errorf("failed to chmod %s: %w", name, err)
	}
	return p, nil
}

// Close removes the workspace and everything in it.
func (w *Workspace) Close() error {
	return os.RemoveAll(w.dir)
}
