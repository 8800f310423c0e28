// Package queue holds what the judge request transports share.
package queue

import (
	"context"

	"github.com/ruslanjan/arrow/api"
)

// Dispatch starts judging req. It may block while the judge is busy. done
// is called once the request is finished with, so the transport can
// acknowledge it.
type Dispatch func(ctx context.Context, req api.JudgeRequest, done func(error)) error

type Consumer interface {
	// Run delivers requests to dispatch until ctx is done.
	Run(ctx context.Context, dispatch Dispatch) error
}

type Publisher interface {
	Publish(ctx context.Context, req api.JudgeRequest) error
}
