// Package compile builds the submission and the problem's reference
// programs into an attempt workspace.
package compile

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/ruslanjan/arrow/internal/lang"
	"github.com/ruslanjan/arrow/internal/model"
	"github.com/ruslanjan/arrow/internal/sandbox"
	"github.com/ruslanjan/arrow/internal/workspace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const maxDiagnostics = 64 << 10

type Config struct {
	// Limits for every compiler run. WallTime is the compile timeout.
	Limits sandbox.Limits
	// TestlibHeader is written as testlib.h next to reference sources.
	TestlibHeader []byte
	// Parallelism bounds concurrent reference builds.
	Parallelism int
}

func DefaultConfig() Config {
	return Config{
		Limits: sandbox.Limits{
			CPUTime:   30 * time.Second,
			WallTime:  30 * time.Second,
			MemoryKB:  1024 * 1024,
			Processes: 64,
			OpenFiles: 256,
		},
		Parallelism: 4,
	}
}

// ArtifactStore persists freshly built reference binaries.
type ArtifactStore interface {
	SaveProblemArtifact(ctx context.Context, problemID int64, kind model.ArtifactKind, blob []byte) error
	SaveGeneratorArtifact(ctx context.Context, generatorID int64, blob []byte) error
}

// SetupError is a reference program that does not build. It means the
// problem is broken, not the submission.
type SetupError struct {
	Artifact    string
	Diagnostics string
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("failed to compile %s", e.Artifact)
}

// Artifacts are the runnable programs installed in the workspace root.
type Artifacts struct {
	Submission lang.Commands
	Solution   lang.Commands
	Checker    lang.Commands
	Interactor *lang.Commands
	Generators map[int64]lang.Commands
}

type CompilationError struct {
	Diagnostics string
}

// Result is either ready artifacts or a compilation error of the
// submission.
type Result struct {
	Artifacts    *Artifacts
	CompileError *CompilationError
	// Usage of the submission's compiler run, nil when it never ran.
	Usage *sandbox.Outcome
}

func (r *Result) Ready() bool { return r.CompileError == nil }

type Compiler struct {
	exec  sandbox.Executor
	store ArtifactStore
	cfg   Config
	log   *slog.Logger
	group singleflight.Group
}

func New(exec sandbox.Executor, store ArtifactStore, cfg Config, logger *slog.Logger) *Compiler {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &Compiler{exec: exec, store: store, cfg: cfg, log: logger}
}

// CompileAll builds the submission, then every reference program the problem
// needs. An error is either a *SetupError or an infrastructure failure.
func (c *Compiler) CompileAll(ctx context.Context, ws *workspace.Workspace, p *model.Problem, sub *model.Submission) (*Result, error) {
	res, err := c.compileSubmission(ctx, ws, sub)
	if err != nil || !res.Ready() {
		return res, err
	}

	arts, err := c.compileReferences(ctx, ws, p)
	if err != nil {
		return nil, err
	}
	arts.Submission = res.Artifacts.Submission
	res.Artifacts = arts
	return res, nil
}

func (c *Compiler) compileSubmission(ctx context.Context, ws *workspace.Workspace, sub *model.Submission) (*Result, error) {
	l, err := lang.Parse(sub.SubmissionType)
	if err != nil {
		return &Result{CompileError: &CompilationError{Diagnostics: err.Error()}}, nil
	}
	cmds, err := l.Commands()
	if err != nil {
		return &Result{CompileError: &CompilationError{Diagnostics: err.Error()}}, nil
	}

	b, err := c.build(ctx, ws, "submission", cmds, sub.Data, false)
	if err != nil {
		return nil, err
	}
	if !b.ok {
		return &Result{CompileError: &CompilationError{Diagnostics: b.diagnostics}, Usage: b.usage}, nil
	}
	if err := ws.WriteFile(cmds.ExecFname, b.binary, 0o755); err != nil {
		return nil, sandbox.Infra("install submission", err)
	}
	return &Result{Artifacts: &Artifacts{Submission: cmds}, Usage: b.usage}, nil
}

type job struct {
	name   string
	cmds   lang.Commands
	source string
	cached []byte
	save   func(ctx context.Context, blob []byte) error
	key    string
}

func (c *Compiler) referenceJobs(p *model.Problem) ([]job, *Artifacts, error) {
	arts := &Artifacts{Generators: make(map[int64]lang.Commands)}

	problemJob := func(kind model.ArtifactKind, source string, cached []byte) job {
		return job{
			name:   string(kind),
			cmds:   lang.Reference(string(kind)),
			source: source,
			cached: cached,
			key:    fmt.Sprintf("problem:%d:%s", p.ID, kind),
			save: func(ctx context.Context, blob []byte) error {
				return c.store.SaveProblemArtifact(ctx, p.ID, kind, blob)
			},
		}
	}

	jobs := []job{
		problemJob(model.SolutionArtifact, p.Solution, p.SolutionCompiled),
		problemJob(model.CheckerArtifact, p.Checker, p.CheckerCompiled),
	}
	arts.Solution = jobs[0].cmds
	arts.Checker = jobs[1].cmds
	if p.IsInteractive {
		j := problemJob(model.InteractorArtifact, p.Interactor, p.InteractorCompiled)
		jobs = append(jobs, j)
		arts.Interactor = &j.cmds
	}

	var genIDs []int64
	for _, t := range p.Tests {
		if t.UseGenerator {
			if t.GeneratorID == nil {
				return nil, nil, &SetupError{Artifact: fmt.Sprintf("generator of test %d", t.Index), Diagnostics: "test uses a generator but names none"}
			}
			genIDs = append(genIDs, *t.GeneratorID)
		}
	}
	slices.Sort(genIDs)
	for _, id := range slices.Compact(genIDs) {
		g, ok := p.Generator(id)
		if !ok {
			return nil, nil, &SetupError{Artifact: fmt.Sprintf("generator %d", id), Diagnostics: "generator does not exist"}
		}
		gid := g.ID
		name := fmt.Sprintf("gen-%d", gid)
		j := job{
			name:   fmt.Sprintf("generator %q", g.Name),
			cmds:   lang.Reference(name),
			source: g.Source,
			cached: g.Compiled,
			key:    fmt.Sprintf("generator:%d", gid),
			save: func(ctx context.Context, blob []byte) error {
				return c.store.SaveGeneratorArtifact(ctx, gid, blob)
			},
		}
		jobs = append(jobs, j)
		arts.Generators[gid] = j.cmds
	}
	return jobs, arts, nil
}

func (c *Compiler) compileReferences(ctx context.Context, ws *workspace.Workspace, p *model.Problem) (*Artifacts, error) {
	jobs, arts, err := c.referenceJobs(p)
	if err != nil {
		return nil, err
	}

	setupErrs := make([]*SetupError, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Parallelism)
	for i, j := range jobs {
		g.Go(func() error {
			bin, err := c.reference(gctx, ws, j)
			var se *SetupError
			if errors.As(err, &se) {
				setupErrs[i] = se
				return nil
			}
			if err != nil {
				return err
			}
			if err := ws.WriteFile(j.cmds.ExecFname, bin, 0o755); err != nil {
				return sandbox.Infra("install "+j.name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, se := range setupErrs {
		if se != nil {
			return nil, se
		}
	}
	return arts, nil
}

// reference returns the binary of j from the cache, or builds it once per
// source digest no matter how many attempts ask concurrently.
func (c *Compiler) reference(ctx context.Context, ws *workspace.Workspace, j job) ([]byte, error) {
	if bin, ok := DecodeArtifact(j.cached, j.source); ok {
		c.log.Debug("using cached artifact", "artifact", j.name)
		return bin, nil
	}
	if len(j.cached) > 0 {
		c.log.Info("cached artifact is stale, rebuilding", "artifact", j.name)
	}

	d := sourceDigest(j.source)
	key := j.key + ":" + hex.EncodeToString(d[:])
	v, err, shared := c.group.Do(key, func() (any, error) {
		b, err := c.build(ctx, ws, j.cmds.ExecFname, j.cmds, j.source, true)
		if err != nil {
			return nil, err
		}
		if !b.ok {
			return nil, &SetupError{Artifact: j.name, Diagnostics: b.diagnostics}
		}
		blob, err := EncodeArtifact(j.source, b.binary)
		if err != nil {
			return nil, err
		}
		if err := j.save(ctx, blob); err != nil {
			c.log.Warn("failed to cache artifact", "artifact", j.name, "error", err)
		}
		return b.binary, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.Debug("shared artifact build", "artifact", j.name)
	}
	return v.([]byte), nil
}

type built struct {
	ok          bool
	binary      []byte
	diagnostics string
	usage       *sandbox.Outcome
}

// build compiles source in its own subdirectory of the workspace.
func (c *Compiler) build(ctx context.Context, ws *workspace.Workspace, name string, cmds lang.Commands, source string, testlib bool) (*built, error) {
	dirName := "build-" + name
	dir, err := ws.Mkdir(dirName)
	if err != nil {
		return nil, sandbox.Infra("prepare build", err)
	}
	if err := ws.WriteFile(dirName+"/"+cmds.SourceFname, []byte(source), 0o644); err != nil {
		return nil, sandbox.Infra("prepare build", err)
	}
	if testlib && len(c.cfg.TestlibHeader) > 0 {
		if err := ws.WriteFile(dirName+"/testlib.h", c.cfg.TestlibHeader, 0o644); err != nil {
			return nil, sandbox.Infra("prepare build", err)
		}
	}

	out, err := c.exec.Execute(ctx, sandbox.Request{
		Argv:    cmds.CompileArgv,
		Workdir: dir,
		Stdout:  "compile.out",
		Stderr:  "compile.err",
		Limits:  c.cfg.Limits,
	})
	if err != nil {
		return nil, err
	}

	stdout, _ := ws.ReadFileLimit(dirName+"/compile.out", maxDiagnostics)
	stderr, _ := ws.ReadFileLimit(dirName+"/compile.err", maxDiagnostics)
	diag := strings.TrimSpace(strings.TrimSpace(stdout) + "\n" + strings.TrimSpace(stderr))

	b := &built{usage: out, diagnostics: diag}
	switch {
	case out.Status == sandbox.TimeLimitExceeded || out.Status == sandbox.WallTimeExceeded:
		b.diagnostics = strings.TrimSpace("Compilation time limit exceeded\n" + diag)
		return b, nil
	case out.Status != sandbox.Completed:
		if b.diagnostics == "" {
			b.diagnostics = fmt.Sprintf("compiler %s (exit code %d)", out.Status, out.ExitCode)
		}
		return b, nil
	}

	bin, err := ws.ReadFile(dirName + "/" + cmds.ExecFname)
	if err != nil {
		b.diagnostics = strings.TrimSpace(diag + "\ncompiler produced no " + cmds.ExecFname)
		return b, nil
	}
	b.ok = true
	b.binary = bin
	return b, nil
}
