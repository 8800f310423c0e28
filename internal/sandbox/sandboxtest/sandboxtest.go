// Package sandboxtest provides a scripted sandbox.Executor for tests.
//
// "Binaries" are plain text programs. A fake compiler copies the source to
// the output file unless it contains the line "#error". A program's first
// line names its kind:
//
//	echo              copy stdin to stdout
//	gen               print the arguments joined by spaces
//	checker           compare output and answer files, exit 0 or 1
//	points N          write N to the result file and exit 7
//	interactor        forward the solution's output to the answer file
//	exit N            exit with code N
//
// Any program may add lines "on <input> <action>" which override the
// behaviour when the trimmed stdin (or checker input file) equals <input>.
// Actions: tle, mle, re, wte, xx (sandbox failure), exit N, out <text>.
package sandboxtest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ruslanjan/arrow/internal/sandbox"
)

type Executor struct {
	// Fail is consulted before every execution. A non-nil error is returned
	// in place of an outcome.
	Fail func(req sandbox.Request) error

	mu    sync.Mutex
	calls []sandbox.Request
}

func New() *Executor { return &Executor{} }

// Calls returns every request executed so far.
func (e *Executor) Calls() []sandbox.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]sandbox.Request(nil), e.calls...)
}

// CountArgv0 counts executions whose first argument equals argv0.
func (e *Executor) CountArgv0(argv0 string) int {
	n := 0
	for _, c := range e.Calls() {
		if len(c.Argv) > 0 && c.Argv[0] == argv0 {
			n++
		}
	}
	return n
}

func (e *Executor) record(req sandbox.Request) error {
	e.mu.Lock()
	e.calls = append(e.calls, req)
	e.mu.Unlock()
	if e.Fail != nil {
		return e.Fail(req)
	}
	return nil
}

func (e *Executor) Execute(ctx context.Context, req sandbox.Request) (*sandbox.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.record(req); err != nil {
		return nil, err
	}
	if len(req.Argv) == 0 {
		return nil, sandbox.Infra("run", errors.New("empty argv"))
	}

	if isCompile(req.Argv) {
		return compile(req)
	}

	prog, args, err := resolve(req)
	if err != nil {
		return nil, err
	}
	stdin := ""
	if req.Stdin != "" {
		b, err := os.ReadFile(filepath.Join(req.Workdir, req.Stdin))
		if err != nil {
			return nil, sandbox.Infra("stdin", err)
		}
		stdin = string(b)
	}

	r := prog.run(req, args, stdin)
	if r.infra {
		return nil, sandbox.Infra("run", errors.New("scripted sandbox failure"))
	}
	if err := writeRedirect(req.Workdir, req.Stdout, r.stdout); err != nil {
		return nil, err
	}
	if err := writeRedirect(req.Workdir, req.Stderr, r.stderr); err != nil {
		return nil, err
	}
	return r.outcome(req.Limits), nil
}

func (e *Executor) ExecuteInteractive(ctx context.Context, sol, inter sandbox.Request) (*sandbox.Outcome, *sandbox.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := e.record(sol); err != nil {
		return nil, nil, err
	}
	if err := e.record(inter); err != nil {
		return nil, nil, err
	}

	solProg, solArgs, err := resolve(sol)
	if err != nil {
		return nil, nil, err
	}
	interProg, interArgs, err := resolve(inter)
	if err != nil {
		return nil, nil, err
	}
	if len(interArgs) < 2 {
		return nil, nil, sandbox.Infra("run", errors.New("interactor needs input and output arguments"))
	}
	input, err := os.ReadFile(filepath.Join(inter.Workdir, interArgs[0]))
	if err != nil {
		return nil, nil, sandbox.Infra("interactor input", err)
	}

	sr := solProg.run(sol, solArgs, string(input))
	if sr.infra {
		return nil, nil, sandbox.Infra("run", errors.New("scripted sandbox failure"))
	}

	var ir result
	action, scripted := interProg.rules[strings.TrimSpace(string(input))]
	switch {
	case scripted:
		ir = act(action)
		if ir.infra {
			return nil, nil, sandbox.Infra("run", errors.New("scripted sandbox failure"))
		}
	case interProg.kind == "interactor" && sr.status == sandbox.Completed:
		ir.stdout = ""
		if err := writeRedirect(inter.Workdir, interArgs[1], sr.stdout); err != nil {
			return nil, nil, err
		}
	case interProg.kind == "interactor":
		ir.exit = 8
		ir.status = sandbox.RuntimeError
	default:
		ir = interProg.run(inter, interArgs, string(input))
	}
	if err := writeRedirect(sol.Workdir, sol.Stderr, sr.stderr); err != nil {
		return nil, nil, err
	}
	return sr.outcome(sol.Limits), ir.outcome(inter.Limits), nil
}

func isCompile(argv []string) bool {
	if argv[0] == "g++" {
		return true
	}
	return len(argv) >= 4 && strings.HasSuffix(argv[0], "python3") && argv[1] == "-m" && argv[2] == "py_compile"
}

func compile(req sandbox.Request) (*sandbox.Outcome, error) {
	argv := req.Argv
	src := argv[len(argv)-1]
	out := ""
	if argv[0] == "g++" {
		for i := 0; i+1 < len(argv); i++ {
			if argv[i] == "-o" {
				out = argv[i+1]
			}
		}
	}
	b, err := os.ReadFile(filepath.Join(req.Workdir, src))
	if err != nil {
		return nil, sandbox.Infra("compile", err)
	}
	for _, line := range strings.Split(string(b), "\n") {
		if strings.TrimSpace(line) == "#error" {
			msg := fmt.Sprintf("%s:1:1: error: #error\n", src)
			if err := writeRedirect(req.Workdir, req.Stderr, msg); err != nil {
				return nil, err
			}
			return &sandbox.Outcome{Status: sandbox.RuntimeError, ExitCode: 1, Time: 10 * time.Millisecond}, nil
		}
	}
	if out != "" {
		if err := os.WriteFile(filepath.Join(req.Workdir, out), b, 0o755); err != nil {
			return nil, sandbox.Infra("compile", err)
		}
	}
	return &sandbox.Outcome{Status: sandbox.Completed, Time: 10 * time.Millisecond, MemoryKB: 1024}, nil
}

func resolve(req sandbox.Request) (*program, []string, error) {
	argv := req.Argv
	var file string
	var args []string
	switch {
	case strings.HasPrefix(argv[0], "./"):
		file, args = argv[0][2:], argv[1:]
	case strings.HasSuffix(argv[0], "python3") && len(argv) > 1:
		file, args = argv[1], argv[2:]
	default:
		return nil, nil, sandbox.Infra("run", fmt.Errorf("cannot resolve program %q", argv[0]))
	}
	b, err := os.ReadFile(filepath.Join(req.Workdir, file))
	if err != nil {
		return nil, nil, sandbox.Infra("run", err)
	}
	return parse(string(b)), args, nil
}

type program struct {
	kind  string
	arg   string
	rules map[string]string
}

func parse(text string) *program {
	p := &program{rules: make(map[string]string)}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "on "); ok {
			in, action, _ := strings.Cut(rest, " ")
			p.rules[in] = action
			continue
		}
		if p.kind == "" {
			p.kind, p.arg, _ = strings.Cut(line, " ")
		}
	}
	if p.kind == "" {
		p.kind = "echo"
	}
	return p
}

type result struct {
	status sandbox.Status
	exit   int
	stdout string
	stderr string
	infra  bool
}

func (r result) outcome(lim sandbox.Limits) *sandbox.Outcome {
	o := &sandbox.Outcome{
		Status:   r.status,
		ExitCode: r.exit,
		Time:     10 * time.Millisecond,
		WallTime: 20 * time.Millisecond,
		MemoryKB: 1024,
	}
	switch r.status {
	case sandbox.TimeLimitExceeded:
		o.Time = lim.CPUTime + time.Millisecond
		o.IsolateStatus = "TO"
	case sandbox.WallTimeExceeded:
		o.WallTime = lim.WallTime
		o.IsolateStatus = "TO"
	case sandbox.MemoryLimitExceeded:
		o.MemoryKB = lim.MemoryKB
		o.OOMKilled = true
		o.IsolateStatus = "SG"
	case sandbox.RuntimeError:
		o.IsolateStatus = "RE"
	}
	return o
}

func (p *program) run(req sandbox.Request, args []string, stdin string) result {
	key := strings.TrimSpace(stdin)
	if p.kind == "checker" || p.kind == "points" {
		if len(args) > 0 {
			if b, err := os.ReadFile(filepath.Join(req.Workdir, args[0])); err == nil {
				key = strings.TrimSpace(string(b))
			}
		}
	}
	if action, ok := p.rules[key]; ok {
		return act(action)
	}

	switch p.kind {
	case "echo":
		return result{stdout: stdin}
	case "gen":
		return result{stdout: strings.Join(args, " ") + "\n"}
	case "exit":
		return exitWith(p.arg)
	case "checker":
		if len(args) < 3 {
			return result{status: sandbox.RuntimeError, exit: 3, stderr: "usage: checker input output answer"}
		}
		out, err1 := os.ReadFile(filepath.Join(req.Workdir, args[1]))
		ans, err2 := os.ReadFile(filepath.Join(req.Workdir, args[2]))
		if err1 != nil || err2 != nil {
			return result{status: sandbox.RuntimeError, exit: 3, stderr: "cannot open files"}
		}
		if strings.TrimSpace(string(out)) == strings.TrimSpace(string(ans)) {
			return result{stderr: "ok answers match"}
		}
		return result{status: sandbox.RuntimeError, exit: 1, stderr: "wrong answer expected " + strings.TrimSpace(string(ans))}
	case "points":
		if len(args) >= 4 {
			_ = os.WriteFile(filepath.Join(req.Workdir, args[3]), []byte(p.arg), 0o644)
		}
		return result{status: sandbox.RuntimeError, exit: 7, stderr: "points " + p.arg}
	case "interactor":
		return result{}
	}
	return result{status: sandbox.RuntimeError, exit: 127, stderr: "unknown program " + p.kind}
}

func act(action string) result {
	verb, arg, _ := strings.Cut(action, " ")
	switch verb {
	case "tle":
		return result{status: sandbox.TimeLimitExceeded}
	case "mle":
		return result{status: sandbox.MemoryLimitExceeded}
	case "re":
		return result{status: sandbox.RuntimeError, exit: 1, stderr: "segmentation fault"}
	case "wte":
		return result{status: sandbox.WallTimeExceeded}
	case "xx":
		return result{infra: true}
	case "exit":
		return exitWith(arg)
	case "out":
		return result{stdout: arg + "\n"}
	}
	return result{status: sandbox.RuntimeError, exit: 127, stderr: "unknown action " + action}
}

func exitWith(arg string) result {
	code, err := strconv.Atoi(arg)
	if err != nil {
		return result{status: sandbox.RuntimeError, exit: 127}
	}
	if code == 0 {
		return result{}
	}
	return result{status: sandbox.RuntimeError, exit: code}
}

func writeRedirect(dir, name, content string) error {
	if name == "" {
		return nil
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		return sandbox.Infra("redirect", err)
	}
	return nil
}
