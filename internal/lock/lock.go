// Package lock serializes judging attempts of the same submission.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Locker hands out one lock per submission. Acquire blocks until the lock
// is free or ctx is done. The returned function releases the lock.
type Locker interface {
	Acquire(ctx context.Context, submissionID int64) (release func(), err error)
}

// Local is an in-process Locker.
type Local struct {
	held *xsync.MapOf[int64, chan struct{}]
}

func NewLocal() *Local {
	return &Local{held: xsync.NewMapOf[int64, chan struct{}]()}
}

func (l *Local) Acquire(ctx context.Context, submissionID int64) (func(), error) {
	for {
		mine := make(chan struct{})
		other, loaded := l.held.LoadOrStore(submissionID, mine)
		if !loaded {
			return func() {
				l.held.Delete(submissionID)
				close(mine)
			}, nil
		}
		select {
		case <-other:
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to lock submission %d: %w", submissionID, ctx.Err())
		}
	}
}

const defaultPoll = 100 * time.Millisecond
