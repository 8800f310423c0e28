// Package model holds the judge's persistent entities.
package model

import (
	"errors"
	"slices"
	"time"

	"github.com/ruslanjan/arrow/internal/verdict"
)

type Problem struct {
	ID   int64 `gorm:"primaryKey"`
	Name string

	// TimeLimit is in seconds, MemoryLimit in KB.
	TimeLimit   float64
	MemoryLimit int64

	IsInteractive bool
	IsGraded      bool
	IsSubTask     bool

	Solution   string
	Checker    string
	Interactor string

	SolutionCompiled   []byte
	CheckerCompiled    []byte
	InteractorCompiled []byte

	Generators []Generator `gorm:"foreignKey:ProblemID"`
	TestGroups []TestGroup `gorm:"foreignKey:ProblemID"`
	Tests      []Test      `gorm:"foreignKey:ProblemID"`
}

type ScoringMode int

const (
	Strict ScoringMode = iota
	SubTask
	Graded
)

func (m ScoringMode) String() string {
	switch m {
	case SubTask:
		return "subtask"
	case Graded:
		return "graded"
	default:
		return "strict"
	}
}

var ErrConflictingModes = errors.New("problem is both graded and sub-task")

func (p *Problem) ScoringMode() (ScoringMode, error) {
	switch {
	case p.IsGraded && p.IsSubTask:
		return Strict, ErrConflictingModes
	case p.IsSubTask:
		return SubTask, nil
	case p.IsGraded:
		return Graded, nil
	}
	return Strict, nil
}

// OrderedTests returns the tests in grading order.
func (p *Problem) OrderedTests() []Test {
	tests := slices.Clone(p.Tests)
	slices.SortStableFunc(tests, func(a, b Test) int {
		if a.Index != b.Index {
			return a.Index - b.Index
		}
		return int(a.ID - b.ID)
	})
	return tests
}

func (p *Problem) Generator(id int64) (*Generator, bool) {
	for i := range p.Generators {
		if p.Generators[i].ID == id {
			return &p.Generators[i], true
		}
	}
	return nil, false
}

type Generator struct {
	ID        int64 `gorm:"primaryKey"`
	ProblemID int64 `gorm:"index"`
	Name      string
	Source    string
	Compiled  []byte
}

type TestGroup struct {
	ID        int64 `gorm:"primaryKey"`
	ProblemID int64 `gorm:"index"`
	Index     int   `gorm:"column:idx"`
	Name      string
	Points    float64
}

type Test struct {
	ID        int64 `gorm:"primaryKey"`
	ProblemID int64 `gorm:"index"`
	Index     int   `gorm:"column:idx"`
	GroupID   *int64
	Points    float64

	// Data is the input, or the generator arguments when UseGenerator is set.
	Data         string
	UseGenerator bool
	GeneratorID  *int64

	IsExample     bool
	ExampleInput  string
	ExampleAnswer string
}

type State string

const (
	Queued    State = "queued"
	Compiling State = "compiling"
	Testing   State = "testing"
	Tested    State = "tested"
	Failed    State = "failed"
)

type Submission struct {
	ID             int64 `gorm:"primaryKey"`
	ProblemID      int64 `gorm:"index"`
	UserID         *int64
	Data           string
	SubmissionType string

	State     State
	InQueue   bool
	Testing   bool
	Tested    bool
	AttemptID string

	Verdict                 verdict.Verdict
	VerdictMessage          string
	VerdictDescription      string
	VerdictDebugMessage     string
	VerdictDebugDescription string
	MaxTimeUsed             float64
	MaxMemoryUsed           int64
	Points                  float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SetState moves the submission to s and keeps the legacy flags in line.
func (s *Submission) SetState(st State) {
	s.State = st
	s.InQueue = st == Queued
	s.Testing = st == Compiling || st == Testing
	s.Tested = st == Tested || st == Failed
}

// Erase clears every verdict field.
func (s *Submission) Erase() {
	s.Verdict = verdict.None
	s.VerdictMessage = ""
	s.VerdictDescription = ""
	s.VerdictDebugMessage = ""
	s.VerdictDebugDescription = ""
	s.MaxTimeUsed = 0
	s.MaxMemoryUsed = 0
	s.Points = 0
}

type SubmissionTestResult struct {
	ID                int64 `gorm:"primaryKey"`
	SubmissionID      int64 `gorm:"index"`
	TestID            int64
	TestGroupResultID *int64

	Verdict                 verdict.Verdict
	VerdictMessage          string
	VerdictDebugMessage     string
	VerdictDebugDescription string
	TimeUsed                float64
	MemoryUsed              int64
	Points                  float64
}

type SubmissionTestGroupResult struct {
	ID           int64 `gorm:"primaryKey"`
	SubmissionID int64 `gorm:"index"`
	ProblemID    int64
	TestGroupID  int64
	Points       float64
}

// ArtifactKind names a cached reference binary.
type ArtifactKind string

const (
	SolutionArtifact   ArtifactKind = "solution"
	CheckerArtifact    ArtifactKind = "checker"
	InteractorArtifact ArtifactKind = "interactor"
	GeneratorArtifact  ArtifactKind = "generator"
)
