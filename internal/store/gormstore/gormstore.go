// Package gormstore implements store.Store on PostgreSQL through gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ruslanjan/arrow/internal/model"
	"github.com/ruslanjan/arrow/internal/store"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

func Open(dsn string, pool PoolConfig) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	} else {
		sqlDB.SetMaxOpenConns(20)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	} else {
		sqlDB.SetMaxIdleConns(5)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	} else {
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return New(db), nil
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the judge tables.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&model.Problem{},
		&model.Generator{},
		&model.TestGroup{},
		&model.Test{},
		&model.Submission{},
		&model.SubmissionTestResult{},
		&model.SubmissionTestGroupResult{},
	)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %d: %w", what, id, store.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %d: %w", what, id, err)
}

func (s *Store) Submission(ctx context.Context, id int64) (*model.Submission, error) {
	var sub model.Submission
	if err := s.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		return nil, notFound(err, "submission", id)
	}
	return &sub, nil
}

func (s *Store) Problem(ctx context.Context, id int64) (*model.Problem, error) {
	var p model.Problem
	err := s.db.WithContext(ctx).
		Preload("Generators").
		Preload("TestGroups", func(db *gorm.DB) *gorm.DB { return db.Order("idx, id") }).
		Preload("Tests", func(db *gorm.DB) *gorm.DB { return db.Order("idx, id") }).
		First(&p, id).Error
	if err != nil {
		return nil, notFound(err, "problem", id)
	}
	return &p, nil
}

var verdictColumns = []string{
	"state", "in_queue", "testing", "tested", "attempt_id",
	"verdict", "verdict_message", "verdict_description",
	"verdict_debug_message", "verdict_debug_description",
	"max_time_used", "max_memory_used", "points",
}

func (s *Store) ResetSubmission(ctx context.Context, id int64, attemptID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("submission_id = ?", id).Delete(&model.SubmissionTestResult{}).Error; err != nil {
			return fmt.Errorf("failed to delete test results: %w", err)
		}
		if err := tx.Where("submission_id = ?", id).Delete(&model.SubmissionTestGroupResult{}).Error; err != nil {
			return fmt.Errorf("failed to delete group results: %w", err)
		}

		clean := model.Submission{ID: id, AttemptID: attemptID}
		clean.SetState(model.Queued)
		res := tx.Model(&model.Submission{ID: id}).Select(verdictColumns).Updates(&clean)
		if res.Error != nil {
			return fmt.Errorf("failed to erase verdict: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("submission %d: %w", id, store.ErrNotFound)
		}
		return nil
	})
}

func (s *Store) UpdateSubmission(ctx context.Context, sub *model.Submission) error {
	res := s.db.WithContext(ctx).Model(&model.Submission{ID: sub.ID}).Select(verdictColumns).Updates(sub)
	if res.Error != nil {
		return fmt.Errorf("failed to update submission %d: %w", sub.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("submission %d: %w", sub.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) CreateTestResult(ctx context.Context, r *model.SubmissionTestResult) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("failed to create test result: %w", err)
	}
	return nil
}

func (s *Store) CreateTestGroupResult(ctx context.Context, r *model.SubmissionTestGroupResult, testResultIDs []int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(r).Error; err != nil {
			return fmt.Errorf("failed to create group result: %w", err)
		}
		if len(testResultIDs) == 0 {
			return nil
		}
		err := tx.Model(&model.SubmissionTestResult{}).
			Where("id IN ?", testResultIDs).
			Update("test_group_result_id", r.ID).Error
		if err != nil {
			return fmt.Errorf("failed to link test results: %w", err)
		}
		return nil
	})
}

func artifactColumn(kind model.ArtifactKind) (string, error) {
	switch kind {
	case model.SolutionArtifact:
		return "solution_compiled", nil
	case model.CheckerArtifact:
		return "checker_compiled", nil
	case model.InteractorArtifact:
		return "interactor_compiled", nil
	}
	return "", fmt.Errorf("unexpected artifact kind %q", kind)
}

func (s *Store) SaveProblemArtifact(ctx context.Context, problemID int64, kind model.ArtifactKind, blob []byte) error {
	col, err := artifactColumn(kind)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Model(&model.Problem{}).Where("id = ?", problemID).Update(col, blob).Error
	if err != nil {
		return fmt.Errorf("failed to save %s of problem %d: %w", kind, problemID, err)
	}
	return nil
}

func (s *Store) SaveGeneratorArtifact(ctx context.Context, generatorID int64, blob []byte) error {
	err := s.db.WithContext(ctx).Model(&model.Generator{}).Where("id = ?", generatorID).Update("compiled", blob).Error
	if err != nil {
		return fmt.Errorf("failed to save generator %d: %w", generatorID, err)
	}
	return nil
}

func (s *Store) ClearArtifacts(ctx context.Context, problemID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.Problem{}).Where("id = ?", problemID).Updates(map[string]any{
			"solution_compiled":   nil,
			"checker_compiled":    nil,
			"interactor_compiled": nil,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to clear problem cache: %w", err)
		}
		err = tx.Model(&model.Generator{}).Where("problem_id = ?", problemID).Update("compiled", nil).Error
		if err != nil {
			return fmt.Errorf("failed to clear generator cache: %w", err)
		}
		return nil
	})
}
