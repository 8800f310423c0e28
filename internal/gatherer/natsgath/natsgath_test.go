package natsgath

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/ruslanjan/arrow/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	subjects []string
	msgs     [][]byte
}

func (r *recorder) Publish(subj string, data []byte) error {
	r.subjects = append(r.subjects, subj)
	r.msgs = append(r.msgs, data)
	return nil
}

func TestStreamsAttemptToSubmissionSubject(t *testing.T) {
	rec := &recorder{}
	g := Factory(rec, "arrow.progress", slog.New(slog.DiscardHandler))(7, "attempt-1")

	g.StartJob("isolate 2.0")
	g.StartCompile()
	g.ReachTest(11, 1)
	g.FinishTest(api.TestResult{TestID: 11, Position: 1, Verdict: "OK", Message: "Accepted"})
	g.FinishJob(api.Summary{Verdict: "OK", Message: "Accepted"})

	require.Len(t, rec.msgs, 5)
	for _, s := range rec.subjects {
		assert.Equal(t, "arrow.progress.7", s)
	}

	var types []api.MsgType
	for _, m := range rec.msgs {
		var h api.Header
		require.NoError(t, json.Unmarshal(m, &h))
		assert.Equal(t, int64(7), h.SubmissionID)
		assert.Equal(t, "attempt-1", h.AttemptID)
		types = append(types, h.MsgType)
	}
	assert.Equal(t, []api.MsgType{
		api.StartJobMsg, api.StartCompileMsg, api.ReachTestMsg, api.FinishTestMsg, api.FinishJobMsg,
	}, types)

	var fin api.FinishJob
	require.NoError(t, json.Unmarshal(rec.msgs[4], &fin))
	require.NotNil(t, fin.Summary)
	assert.Equal(t, "OK", fin.Summary.Verdict)
	assert.False(t, fin.InternalError)
}

func TestInternalErrorFinishesJob(t *testing.T) {
	rec := &recorder{}
	New(rec, "s", 1, "a", slog.New(slog.DiscardHandler)).InternalError("isolate is gone")

	var fin api.FinishJob
	require.NoError(t, json.Unmarshal(rec.msgs[0], &fin))
	assert.Equal(t, api.FinishJobMsg, fin.MsgType)
	assert.True(t, fin.InternalError)
	require.NotNil(t, fin.ErrorMessage)
	assert.Equal(t, "isolate is gone", *fin.ErrorMessage)
	assert.Nil(t, fin.Summary)
}
