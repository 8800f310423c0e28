// Package scoring reduces per-test results to a submission verdict.
package scoring

import (
	"fmt"
	"strconv"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ruslanjan/arrow/internal/model"
	"github.com/ruslanjan/arrow/internal/tester"
	"github.com/ruslanjan/arrow/internal/verdict"
)

// GroupAward is a test group whose every member test was accepted.
type GroupAward struct {
	Group   model.TestGroup
	Points  float64
	TestIDs []int64
}

type Summary struct {
	Verdict          verdict.Verdict
	Message          string
	DebugMessage     string
	DebugDescription string

	MaxTime     time.Duration
	MaxMemoryKB int64
	Points      float64

	Results []*tester.Result
	Groups  []GroupAward
}

type Aggregator struct {
	mode   model.ScoringMode
	groups []model.TestGroup
	// members maps a group id to the ids of its tests.
	members map[int64]mapset.Set[int64]

	accepted mapset.Set[int64]
	results  []*tester.Result
	failed   *tester.Result
	maxTime  time.Duration
	maxMem   int64
	points   float64
}

func New(mode model.ScoringMode, groups []model.TestGroup, tests []model.Test) *Aggregator {
	a := &Aggregator{
		mode:     mode,
		groups:   groups,
		members:  make(map[int64]mapset.Set[int64], len(groups)),
		accepted: mapset.NewThreadUnsafeSet[int64](),
	}
	for _, t := range tests {
		if t.GroupID == nil {
			continue
		}
		s, ok := a.members[*t.GroupID]
		if !ok {
			s = mapset.NewThreadUnsafeSet[int64]()
			a.members[*t.GroupID] = s
		}
		s.Add(t.ID)
	}
	return a
}

// Add records one test result. It returns false once further tests can no
// longer change the outcome, which only happens in strict mode.
func (a *Aggregator) Add(r *tester.Result) bool {
	a.results = append(a.results, r)
	if r.Executed {
		a.maxTime = max(a.maxTime, r.Time)
		a.maxMem = max(a.maxMem, r.MemoryKB)
	}
	switch r.Verdict {
	case verdict.Accepted:
		a.accepted.Add(r.Test.ID)
	case verdict.Points:
	default:
		if a.failed == nil {
			a.failed = r
		}
	}
	if a.mode == model.Graded {
		a.points += r.Points
	}
	return a.mode != model.Strict || a.failed == nil
}

func (a *Aggregator) Finish() Summary {
	s := Summary{
		MaxTime:     a.maxTime,
		MaxMemoryKB: a.maxMem,
		Results:     a.results,
	}
	switch a.mode {
	case model.Strict:
		if a.failed != nil {
			s.Verdict = a.failed.Verdict
			s.Message = a.failed.Message
			s.DebugMessage = a.failed.DebugMessage
			s.DebugDescription = a.failed.DebugDescription
			return s
		}
		s.Verdict = verdict.Accepted
		s.Message = verdict.Accepted.Verbose()
	case model.SubTask:
		for _, g := range a.groups {
			m, ok := a.members[g.ID]
			if !ok || m.Cardinality() == 0 || !m.IsSubset(a.accepted) {
				continue
			}
			ids := m.ToSlice()
			s.Groups = append(s.Groups, GroupAward{Group: g, Points: g.Points, TestIDs: ids})
			s.Points += g.Points
		}
		s.Verdict = verdict.Accepted
		s.Message = pointsMessage(s.Points)
	case model.Graded:
		s.Points = a.points
		s.Verdict = verdict.Accepted
		s.Message = pointsMessage(s.Points)
	}
	if a.failed != nil {
		s.DebugMessage = fmt.Sprintf("First failure: %s", a.failed.Message)
		s.DebugDescription = a.failed.DebugMessage
	}
	return s
}

func pointsMessage(p float64) string {
	return "Points: " + strconv.FormatFloat(p, 'f', -1, 64)
}
