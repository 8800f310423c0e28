package natsq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/ruslanjan/arrow/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subj string
	data []byte
}

type fakeConn struct {
	out []published
}

func (f *fakeConn) QueueSubscribe(string, string, nats.MsgHandler) (*nats.Subscription, error) {
	return nil, errors.New("not supported")
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	f.out = append(f.out, published{subj, data})
	return nil
}

func TestHandlerDispatchesAndReplies(t *testing.T) {
	nc := &fakeConn{}
	q := New(nc, "arrow.judge", "workers", slog.New(slog.DiscardHandler))

	var got []int64
	h := q.handler(context.Background(), func(_ context.Context, req api.JudgeRequest, done func(error)) error {
		got = append(got, req.SubmissionID)
		done(errors.New("exhausted"))
		return nil
	})

	h(&nats.Msg{Subject: "arrow.judge", Reply: "_INBOX.1", Data: []byte(`{"submission_id": 5}`)})
	h(&nats.Msg{Subject: "arrow.judge", Data: []byte(`{"submission_id": 6}`)})
	h(&nats.Msg{Subject: "arrow.judge", Reply: "_INBOX.2", Data: []byte(`garbage`)})

	assert.Equal(t, []int64{5, 6}, got)
	require.Len(t, nc.out, 2, "only requests with a reply subject get answers")

	var r Reply
	require.NoError(t, json.Unmarshal(nc.out[0].data, &r))
	assert.Equal(t, "_INBOX.1", nc.out[0].subj)
	assert.Equal(t, int64(5), r.SubmissionID)
	require.NotNil(t, r.Error)
	assert.Equal(t, "exhausted", *r.Error)

	require.NoError(t, json.Unmarshal(nc.out[1].data, &r))
	assert.NotNil(t, r.Error)
}

func TestPublish(t *testing.T) {
	nc := &fakeConn{}
	q := New(nc, "arrow.judge", "workers", slog.New(slog.DiscardHandler))
	require.NoError(t, q.Publish(context.Background(), api.JudgeRequest{SubmissionID: 3}))
	require.Len(t, nc.out, 1)
	assert.Equal(t, "arrow.judge", nc.out[0].subj)
	assert.JSONEq(t, `{"submission_id": 3}`, string(nc.out[0].data))
}

func TestRunFailsWhenSubscribeFails(t *testing.T) {
	q := New(&fakeConn{}, "arrow.judge", "workers", slog.New(slog.DiscardHandler))
	err := q.Run(context.Background(), nil)
	require.Error(t, err)
}
