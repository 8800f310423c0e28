package isolate

import (
	"fmt"
	"path"

	"github.com/ruslanjan/arrow/internal/sandbox"
)

// mountPoint is where the host workdir appears inside the box.
const mountPoint = "/work"

type Box struct {
	id      int
	path    string
	isolate *Isolate
}

func newIsolateBox(isolate *Isolate, id int, path string) *Box {
	return &Box{
		id:      id,
		path:    path,
		isolate: isolate,
	}
}

func (box *Box) Id() int {
	return box.id
}

func (box *Box) Path() string {
	return box.path
}

func (box *Box) Close() error {
	return box.isolate.eraseBox(box.id)
}

// runArgs builds the isolate invocation running req in this box.
func (box *Box) runArgs(req sandbox.Request, metaPath string) []string {
	cfg := box.isolate.cfg
	args := box.isolate.commonArgs(box.id)
	args = append(args,
		"--meta="+metaPath,
		fmt.Sprintf("--dir=%s=%s:rw", mountPoint, req.Workdir),
		"--chdir="+mountPoint,
	)
	for _, env := range cfg.Env {
		args = append(args, "--env="+env)
	}
	c := ConstraintsFrom(req.Limits)
	args = append(args, c.ToArgs(cfg.CGroups)...)

	if req.Stdin != "" {
		args = append(args, "--stdin="+path.Join(mountPoint, req.Stdin))
	}
	if req.Stdout != "" {
		args = append(args, "--stdout="+path.Join(mountPoint, req.Stdout))
	}
	if req.Stderr != "" {
		args = append(args, "--stderr="+path.Join(mountPoint, req.Stderr))
	}
	args = append(args, "--run", "--")
	return append(args, req.Argv...)
}
