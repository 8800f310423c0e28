// Package memstore is an in-memory store.Store used for local judging and
// tests.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ruslanjan/arrow/internal/model"
	"github.com/ruslanjan/arrow/internal/store"
)

type Store struct {
	mu sync.Mutex

	nextID       int64
	problems     map[int64]*model.Problem
	submissions  map[int64]*model.Submission
	testResults  map[int64][]model.SubmissionTestResult
	groupResults map[int64][]model.SubmissionTestGroupResult
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		problems:     make(map[int64]*model.Problem),
		submissions:  make(map[int64]*model.Submission),
		testResults:  make(map[int64][]model.SubmissionTestResult),
		groupResults: make(map[int64][]model.SubmissionTestGroupResult),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// keep makes sure generated ids never collide with explicit ones.
func (s *Store) keep(id int64) int64 {
	if id == 0 {
		return s.id()
	}
	s.nextID = max(s.nextID, id)
	return id
}

// AddProblem stores a copy of p, assigning ids to everything that has none.
// It returns the stored problem's id.
func (s *Store) AddProblem(p *model.Problem) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := cloneProblem(p)
	for _, g := range c.Generators {
		s.nextID = max(s.nextID, g.ID)
	}
	for _, g := range c.TestGroups {
		s.nextID = max(s.nextID, g.ID)
	}
	for _, t := range c.Tests {
		s.nextID = max(s.nextID, t.ID)
	}
	c.ID = s.keep(c.ID)
	for i := range c.Generators {
		c.Generators[i].ID = s.keep(c.Generators[i].ID)
		c.Generators[i].ProblemID = c.ID
	}
	for i := range c.TestGroups {
		c.TestGroups[i].ID = s.keep(c.TestGroups[i].ID)
		c.TestGroups[i].ProblemID = c.ID
	}
	for i := range c.Tests {
		c.Tests[i].ID = s.keep(c.Tests[i].ID)
		c.Tests[i].ProblemID = c.ID
	}
	s.problems[c.ID] = c
	return c.ID
}

func (s *Store) AddSubmission(sub *model.Submission) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *sub
	c.ID = s.keep(c.ID)
	if c.State == "" {
		c.SetState(model.Queued)
	}
	s.submissions[c.ID] = &c
	return c.ID
}

func (s *Store) Submission(_ context.Context, id int64) (*model.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return nil, fmt.Errorf("submission %d: %w", id, store.ErrNotFound)
	}
	c := *sub
	return &c, nil
}

func (s *Store) Problem(_ context.Context, id int64) (*model.Problem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.problems[id]
	if !ok {
		return nil, fmt.Errorf("problem %d: %w", id, store.ErrNotFound)
	}
	return cloneProblem(p), nil
}

func (s *Store) ResetSubmission(_ context.Context, id int64, attemptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return fmt.Errorf("submission %d: %w", id, store.ErrNotFound)
	}
	sub.Erase()
	sub.SetState(model.Queued)
	sub.AttemptID = attemptID
	delete(s.testResults, id)
	delete(s.groupResults, id)
	return nil
}

func (s *Store) UpdateSubmission(_ context.Context, upd *model.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[upd.ID]
	if !ok {
		return fmt.Errorf("submission %d: %w", upd.ID, store.ErrNotFound)
	}
	sub.State, sub.InQueue, sub.Testing, sub.Tested = upd.State, upd.InQueue, upd.Testing, upd.Tested
	sub.AttemptID = upd.AttemptID
	sub.Verdict = upd.Verdict
	sub.VerdictMessage = upd.VerdictMessage
	sub.VerdictDescription = upd.VerdictDescription
	sub.VerdictDebugMessage = upd.VerdictDebugMessage
	sub.VerdictDebugDescription = upd.VerdictDebugDescription
	sub.MaxTimeUsed = upd.MaxTimeUsed
	sub.MaxMemoryUsed = upd.MaxMemoryUsed
	sub.Points = upd.Points
	return nil
}

func (s *Store) CreateTestResult(_ context.Context, r *model.SubmissionTestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id()
	s.testResults[r.SubmissionID] = append(s.testResults[r.SubmissionID], *r)
	return nil
}

func (s *Store) CreateTestGroupResult(_ context.Context, r *model.SubmissionTestGroupResult, testResultIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id()
	s.groupResults[r.SubmissionID] = append(s.groupResults[r.SubmissionID], *r)
	rows := s.testResults[r.SubmissionID]
	for i := range rows {
		if slices.Contains(testResultIDs, rows[i].ID) {
			gid := r.ID
			rows[i].TestGroupResultID = &gid
		}
	}
	return nil
}

func (s *Store) SaveProblemArtifact(_ context.Context, problemID int64, kind model.ArtifactKind, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.problems[problemID]
	if !ok {
		return fmt.Errorf("problem %d: %w", problemID, store.ErrNotFound)
	}
	switch kind {
	case model.SolutionArtifact:
		p.SolutionCompiled = slices.Clone(blob)
	case model.CheckerArtifact:
		p.CheckerCompiled = slices.Clone(blob)
	case model.InteractorArtifact:
		p.InteractorCompiled = slices.Clone(blob)
	default:
		return fmt.Errorf("unexpected artifact kind %q", kind)
	}
	return nil
}

func (s *Store) SaveGeneratorArtifact(_ context.Context, generatorID int64, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.problems {
		for i := range p.Generators {
			if p.Generators[i].ID == generatorID {
				p.Generators[i].Compiled = slices.Clone(blob)
				return nil
			}
		}
	}
	return fmt.Errorf("generator %d: %w", generatorID, store.ErrNotFound)
}

func (s *Store) ClearArtifacts(_ context.Context, problemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.problems[problemID]
	if !ok {
		return fmt.Errorf("problem %d: %w", problemID, store.ErrNotFound)
	}
	p.SolutionCompiled, p.CheckerCompiled, p.InteractorCompiled = nil, nil, nil
	for i := range p.Generators {
		p.Generators[i].Compiled = nil
	}
	return nil
}

// TestResults returns the stored per-test rows of a submission.
func (s *Store) TestResults(submissionID int64) []model.SubmissionTestResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.testResults[submissionID])
}

func (s *Store) GroupResults(submissionID int64) []model.SubmissionTestGroupResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.groupResults[submissionID])
}

func cloneProblem(p *model.Problem) *model.Problem {
	c := *p
	c.SolutionCompiled = slices.Clone(p.SolutionCompiled)
	c.CheckerCompiled = slices.Clone(p.CheckerCompiled)
	c.InteractorCompiled = slices.Clone(p.InteractorCompiled)
	c.Generators = slices.Clone(p.Generators)
	for i := range c.Generators {
		c.Generators[i].Compiled = slices.Clone(p.Generators[i].Compiled)
	}
	c.TestGroups = slices.Clone(p.TestGroups)
	c.Tests = slices.Clone(p.Tests)
	return &c
}
