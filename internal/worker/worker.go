// Package worker turns judge requests into bounded, retried judging attempts.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"

	"github.com/ruslanjan/arrow/internal/judge"
	"github.com/ruslanjan/arrow/internal/metrics"
)

type Policy struct {
	// MaxRetries bounds the attempts after the first one.
	MaxRetries uint64
	// Delay is the fixed pause between attempts.
	Delay time.Duration
	// Concurrency is the number of attempts a Pool runs at once.
	Concurrency int
}

func DefaultPolicy() Policy {
	return Policy{MaxRetries: 5, Delay: 10 * time.Second, Concurrency: 1}
}

type Judger interface {
	Judge(ctx context.Context, submissionID int64) error
}

type Worker struct {
	judge   Judger
	policy  Policy
	metrics *metrics.Metrics
	log     *slog.Logger
}

func New(j Judger, p Policy, m *metrics.Metrics, logger *slog.Logger) *Worker {
	if p.Delay <= 0 {
		p.Delay = time.Millisecond
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 1
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &Worker{judge: j, policy: p, metrics: m, log: logger}
}

// Handle judges the submission, retrying infrastructure failures with a
// fixed delay. Any other failure is returned at once.
func (w *Worker) Handle(ctx context.Context, submissionID int64) error {
	log := w.log.With("submission_id", submissionID)
	b := retry.WithMaxRetries(w.policy.MaxRetries, retry.NewConstant(w.policy.Delay))

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			w.metrics.Retries.Inc()
			log.Info("retrying judging", "attempt", attempt)
		}
		err := w.judge.Judge(ctx, submissionID)
		if errors.Is(err, judge.ErrInfrastructure) {
			log.Warn("judging attempt failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to judge submission %d after %d attempts: %w", submissionID, attempt, err)
	}
	return nil
}

// Pool runs Handle for many submissions, at most Policy.Concurrency at a
// time.
type Pool struct {
	w   *Worker
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func (w *Worker) Pool() *Pool {
	return &Pool{w: w, sem: semaphore.NewWeighted(int64(w.policy.Concurrency))}
}

// Go blocks until a slot is free, then judges the submission in the
// background. done, if not nil, receives the outcome.
func (p *Pool) Go(ctx context.Context, submissionID int64, done func(error)) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		err := p.w.Handle(ctx, submissionID)
		if err != nil {
			p.w.log.Error("giving up on submission", "submission_id", submissionID, "error", err)
		}
		if done != nil {
			done(err)
		}
	}()
	return nil
}

// Wait blocks until every started submission is done.
func (p *Pool) Wait() {
	p.wg.Wait()
}
