package behave

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/ruslanjan/arrow/internal/lang"
	"github.com/ruslanjan/arrow/internal/model"
	"github.com/ruslanjan/arrow/internal/verdict"
)

// SpecTest is a single test case in the behaviour file. With a generator
// set, In holds the generator arguments.
type SpecTest struct {
	In        string  `toml:"in"`
	Group     string  `toml:"group"`
	Points    float64 `toml:"points"`
	Generator string  `toml:"generator"`
}

type SpecGroup struct {
	Name   string  `toml:"name"`
	Points float64 `toml:"points"`
}

type SpecGenerator struct {
	Name   string `toml:"name"`
	Source string `toml:"source"`
}

// SpecProblem describes the problem a scenario is judged against
type SpecProblem struct {
	Name        string          `toml:"name"`
	Mode        string          `toml:"mode"`
	TimeLimit   float64         `toml:"time_limit"`
	MemoryKB    int64           `toml:"memory_limit_kb"`
	Interactive bool            `toml:"interactive"`
	Solution    string          `toml:"solution"`
	Checker     string          `toml:"checker"`
	Interactor  string          `toml:"interactor"`
	Generators  []SpecGenerator `toml:"generators"`
	Groups      []SpecGroup     `toml:"groups"`
	Tests       []SpecTest      `toml:"tests"`
}

// SpecSubmission is the code under judgement
type SpecSubmission struct {
	Lang string `toml:"lang"`
	Code string `toml:"code"`
}

// SpecTestVerdict represents an expected verdict for a test result
type SpecTestVerdict struct {
	Verdict string `toml:"verdict"`
}

// SpecExpect describes the expected final verdict, score and per-test
// verdicts. Empty fields are not checked.
type SpecExpect struct {
	Verdict     string            `toml:"verdict"`
	Points      *float64          `toml:"points"`
	TestResults []SpecTestVerdict `toml:"test_results"`
}

// specSuite maps to [[scenarios]] entries.
type specSuite struct {
	Description string         `toml:"description"`
	Problem     SpecProblem    `toml:"problem"`
	Submission  SpecSubmission `toml:"submission"`
	Expect      SpecExpect     `toml:"expect"`
}

type specRoot struct {
	Suites []specSuite `toml:"scenarios"`
}

// Case is a runnable scenario converted from TOML
type Case struct {
	Name       string
	Problem    *model.Problem
	Submission model.Submission
	Expect     SpecExpect
}

// Parse reads a behaviour TOML file and converts it to runnable cases
func Parse(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read behaviour file: %w", err)
	}
	return ParseBytes(data)
}

func ParseBytes(data []byte) ([]Case, error) {
	var root specRoot
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	cases := make([]Case, 0, len(root.Suites))
	for i, suite := range root.Suites {
		name := suite.Description
		if name == "" {
			name = fmt.Sprintf("scenario #%d", i+1)
		}
		p, err := problem(suite.Problem)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if _, err := lang.Parse(suite.Submission.Lang); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if err := checkExpect(suite.Expect); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		cases = append(cases, Case{
			Name:    name,
			Problem: p,
			Submission: model.Submission{
				SubmissionType: suite.Submission.Lang,
				Data:           suite.Submission.Code,
			},
			Expect: suite.Expect,
		})
	}
	return cases, nil
}

func problem(s SpecProblem) (*model.Problem, error) {
	p := &model.Problem{
		Name:          s.Name,
		TimeLimit:     s.TimeLimit,
		MemoryLimit:   s.MemoryKB,
		IsInteractive: s.Interactive,
		Solution:      s.Solution,
		Checker:       s.Checker,
		Interactor:    s.Interactor,
	}
	// Apply limits with sensible defaults if not provided
	if p.TimeLimit == 0 {
		p.TimeLimit = 1
	}
	if p.MemoryLimit == 0 {
		p.MemoryLimit = 256 * 1024
	}

	switch strings.ToLower(s.Mode) {
	case "", "strict":
	case "subtask":
		p.IsSubTask = true
	case "graded":
		p.IsGraded = true
	default:
		return nil, fmt.Errorf("unknown scoring mode %q", s.Mode)
	}
	if p.Solution == "" || p.Checker == "" {
		return nil, fmt.Errorf("problem needs a solution and a checker")
	}
	if p.IsInteractive && p.Interactor == "" {
		return nil, fmt.Errorf("interactive problem needs an interactor")
	}

	// Ids only have to be unique within the scenario.
	generators := make(map[string]int64, len(s.Generators))
	for i, g := range s.Generators {
		id := int64(100 + i + 1)
		generators[g.Name] = id
		p.Generators = append(p.Generators, model.Generator{ID: id, Name: g.Name, Source: g.Source})
	}
	groups := make(map[string]int64, len(s.Groups))
	for i, g := range s.Groups {
		id := int64(200 + i + 1)
		groups[g.Name] = id
		p.TestGroups = append(p.TestGroups, model.TestGroup{ID: id, Index: i + 1, Name: g.Name, Points: g.Points})
	}

	for i, t := range s.Tests {
		mt := model.Test{Index: i + 1, Data: t.In, Points: t.Points}
		if t.Group != "" {
			id, ok := groups[t.Group]
			if !ok {
				return nil, fmt.Errorf("test #%d: unknown group %q", i+1, t.Group)
			}
			mt.GroupID = &id
		}
		if t.Generator != "" {
			id, ok := generators[t.Generator]
			if !ok {
				return nil, fmt.Errorf("test #%d: unknown generator %q", i+1, t.Generator)
			}
			mt.UseGenerator = true
			mt.GeneratorID = &id
		}
		p.Tests = append(p.Tests, mt)
	}
	return p, nil
}

func checkExpect(e SpecExpect) error {
	if e.Verdict != "" && !verdict.Verdict(e.Verdict).Valid() {
		return fmt.Errorf("unknown expected verdict %q", e.Verdict)
	}
	for i, tr := range e.TestResults {
		if !verdict.Verdict(tr.Verdict).Valid() {
			return fmt.Errorf("unknown expected verdict %q for test #%d", tr.Verdict, i+1)
		}
	}
	return nil
}
