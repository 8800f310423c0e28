package termgath

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/ruslanjan/arrow/api"
	"github.com/ruslanjan/arrow/internal/gatherer"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	infoColor = color.New(color.FgCyan)
	dimColor  = color.New(color.Faint)
)

type TerminalGatherer struct {
	StartedAt time.Time
	out       io.Writer
}

var _ gatherer.Gatherer = (*TerminalGatherer)(nil)

func New() *TerminalGatherer { return NewWriter(os.Stdout) }

func NewWriter(w io.Writer) *TerminalGatherer {
	return &TerminalGatherer{StartedAt: time.Now(), out: w}
}

func (t *TerminalGatherer) StartJob(systemInfo string) {
	infoColor.Fprintln(t.out, "== Judging started ==")
	if systemInfo != "" {
		fmt.Fprintln(t.out, "System info:")
		fmt.Fprintln(t.out, systemInfo)
	}
}

func (t *TerminalGatherer) StartCompile() {
	fmt.Fprintln(t.out, "-- Compilation started --")
}

func (t *TerminalGatherer) FinishCompile(data *api.RuntimeData) {
	fmt.Fprintln(t.out, "-- Compilation finished --")
	if data != nil {
		dimColor.Fprintf(t.out, "exit=%d cpu=%dms wall=%dms mem=%dKiB\n", data.ExitCode, data.CpuMillis, data.WallMillis, data.RamKiBytes)
		if len(data.Stderr) > 0 {
			fmt.Fprintf(t.out, "stderr:\n%s\n", data.Stderr)
		}
	}
}

func (t *TerminalGatherer) ReachTest(testID int64, position int) {
	fmt.Fprintf(t.out, "-> Test #%d (id %d)\n", position, testID)
}

func (t *TerminalGatherer) FinishTest(res api.TestResult) {
	c := failColor
	if res.Verdict == "OK" {
		c = okColor
	}
	fmt.Fprintf(t.out, "<- Test #%d ", res.Position)
	c.Fprintf(t.out, "%-3s", res.Verdict)
	dimColor.Fprintf(t.out, " cpu=%dms mem=%dKiB", res.CpuMillis, res.RamKiBytes)
	if res.Points != 0 {
		fmt.Fprintf(t.out, " points=%g", res.Points)
	}
	fmt.Fprintln(t.out)
}

func (t *TerminalGatherer) CompileError(msg string) {
	failColor.Fprintln(t.out, "== Compilation error ==")
	fmt.Fprintln(t.out, msg)
}

func (t *TerminalGatherer) InternalError(msg string) {
	failColor.Fprintf(t.out, "== Internal error: %s ==\n", msg)
}

func (t *TerminalGatherer) FinishJob(summary api.Summary) {
	dur := time.Since(t.StartedAt).Round(time.Millisecond)
	c := failColor
	if summary.Verdict == "OK" {
		c = okColor
	}
	c.Fprintf(t.out, "== %s: %s ==\n", summary.Verdict, summary.Message)
	fmt.Fprintf(t.out, "max cpu=%dms max mem=%dKiB, judged in %s\n", summary.MaxCpuMillis, summary.MaxRamKiBytes, dur)
}
