package sandbox

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Meta is the resource usage record isolate writes with --meta.
type Meta struct {
	TimeSec      float64
	TimeWallSec  float64
	MaxRssKB     int64
	CgMemKB      int64
	CswVoluntary int64
	CswForced    int64
	ExitCode     int
	ExitSignal   int
	Killed       bool
	CgOOMKilled  bool
	Status       string
	Message      string
}

// ReadMeta reads and parses a metadata file. A missing or empty file is an
// infrastructure failure, never a success.
func ReadMeta(path string) (*Meta, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, Infra("read meta", err)
	}
	return ParseMeta(b)
}

// ParseMeta parses newline separated key:value pairs. Unknown keys are
// ignored. Lines without a colon or with unparsable numbers make the whole
// record malformed.
func ParseMeta(data []byte) (*Meta, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, Infra("parse meta", errors.New("empty metadata"))
	}

	m := &Meta{}
	seen := make(map[string]bool)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			return nil, Infra("parse meta", fmt.Errorf("malformed line %q", line))
		}
		seen[key] = true

		var err error
		switch key {
		case "time":
			m.TimeSec, err = strconv.ParseFloat(val, 64)
		case "time-wall":
			m.TimeWallSec, err = strconv.ParseFloat(val, 64)
		case "max-rss":
			m.MaxRssKB, err = strconv.ParseInt(val, 10, 64)
		case "cg-mem":
			m.CgMemKB, err = strconv.ParseInt(val, 10, 64)
		case "csw-voluntary":
			m.CswVoluntary, err = strconv.ParseInt(val, 10, 64)
		case "csw-forced":
			m.CswForced, err = strconv.ParseInt(val, 10, 64)
		case "exitcode":
			m.ExitCode, err = strconv.Atoi(val)
		case "exitsig":
			m.ExitSignal, err = strconv.Atoi(val)
		case "killed":
			m.Killed = val == "1"
		case "cg-oom-killed":
			m.CgOOMKilled = val == "1"
		case "status":
			m.Status = val
		case "message":
			m.Message = val
		}
		if err != nil {
			return nil, Infra("parse meta", fmt.Errorf("bad value for %s: %w", key, err))
		}
	}

	// isolate may omit usage when it failed internally; Classify reports it.
	if m.Status == "XX" {
		return m, nil
	}
	for _, k := range []string{"time", "max-rss"} {
		if !seen[k] {
			return nil, Infra("parse meta", fmt.Errorf("missing %s", k))
		}
	}
	return m, nil
}
