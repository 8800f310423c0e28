// Package natsq receives judge requests through a NATS queue group, so each
// request reaches exactly one worker.
package natsq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/ruslanjan/arrow/api"
	"github.com/ruslanjan/arrow/internal/queue"
)

// Conn is the part of *nats.Conn the queue uses.
type Conn interface {
	QueueSubscribe(subj, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subj string, data []byte) error
}

var _ Conn = (*nats.Conn)(nil)

type Queue struct {
	nc      Conn
	subject string
	group   string
	log     *slog.Logger
}

var (
	_ queue.Consumer  = (*Queue)(nil)
	_ queue.Publisher = (*Queue)(nil)
)

func New(nc Conn, subject, group string, logger *slog.Logger) *Queue {
	return &Queue{nc: nc, subject: subject, group: group, log: logger.With("subject", subject)}
}

// Reply is sent back to requests that carry a reply subject.
type Reply struct {
	SubmissionID int64   `json:"submission_id"`
	Error        *string `json:"error"`
}

func (q *Queue) Publish(_ context.Context, req api.JudgeRequest) error {
	body, err := req.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode judge request: %w", err)
	}
	if err := q.nc.Publish(q.subject, body); err != nil {
		return fmt.Errorf("failed to publish judge request: %w", err)
	}
	return nil
}

// Run subscribes to the queue group until ctx is done, then drains the
// subscription.
func (q *Queue) Run(ctx context.Context, dispatch queue.Dispatch) error {
	sub, err := q.nc.QueueSubscribe(q.subject, q.group, q.handler(ctx, dispatch))
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", q.subject, err)
	}
	q.log.Info("listening for judge requests", "group", q.group)
	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		q.log.Warn("failed to drain subscription", "error", err)
	}
	return nil
}

func (q *Queue) handler(ctx context.Context, dispatch queue.Dispatch) nats.MsgHandler {
	return func(m *nats.Msg) {
		req, err := api.DecodeJudgeRequest(m.Data)
		if err != nil {
			q.log.Error("dropping malformed message", "error", err)
			q.reply(m, req.SubmissionID, err)
			return
		}
		err = dispatch(ctx, req, func(err error) { q.reply(m, req.SubmissionID, err) })
		if err != nil && ctx.Err() == nil {
			q.log.Error("failed to dispatch judge request", "submission_id", req.SubmissionID, "error", err)
		}
	}
}

func (q *Queue) reply(m *nats.Msg, submissionID int64, err error) {
	if m.Reply == "" {
		return
	}
	r := Reply{SubmissionID: submissionID}
	if err != nil {
		msg := err.Error()
		r.Error = &msg
	}
	b, _ := json.Marshal(r)
	if err := q.nc.Publish(m.Reply, b); err != nil {
		q.log.Warn("failed to reply", "reply", m.Reply, "error", err)
	}
}
