// Package store defines the data access the judge needs.
package store

import (
	"context"
	"errors"

	"github.com/ruslanjan/arrow/internal/model"
)

var ErrNotFound = errors.New("not found")

type Store interface {
	Submission(ctx context.Context, id int64) (*model.Submission, error)
	// Problem returns the problem with its tests, groups and generators.
	Problem(ctx context.Context, id int64) (*model.Problem, error)

	// ResetSubmission deletes every result row of the submission and clears
	// its verdict fields in one transaction, leaving it queued under the
	// given attempt id. Resetting an already clean submission is a no-op
	// apart from the attempt id.
	ResetSubmission(ctx context.Context, id int64, attemptID string) error
	// UpdateSubmission writes the state and verdict fields of s.
	UpdateSubmission(ctx context.Context, s *model.Submission) error

	// CreateTestResult inserts r and sets its ID.
	CreateTestResult(ctx context.Context, r *model.SubmissionTestResult) error
	// CreateTestGroupResult inserts r, sets its ID and points the given test
	// results at it.
	CreateTestGroupResult(ctx context.Context, r *model.SubmissionTestGroupResult, testResultIDs []int64) error

	SaveProblemArtifact(ctx context.Context, problemID int64, kind model.ArtifactKind, blob []byte) error
	SaveGeneratorArtifact(ctx context.Context, generatorID int64, blob []byte) error
	// ClearArtifacts drops every cached binary of the problem and its
	// generators.
	ClearArtifacts(ctx context.Context, problemID int64) error
}
