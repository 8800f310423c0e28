package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruslanjan/arrow/internal/judge"
	"github.com/ruslanjan/arrow/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyJudge struct {
	failures int32
	err      error
	calls    atomic.Int32
}

func (f *flakyJudge) Judge(_ context.Context, _ int64) error {
	if n := f.calls.Add(1); n <= f.failures {
		return f.err
	}
	return nil
}

func infraErr() error {
	return fmt.Errorf("%w: isolate box busy", judge.ErrInfrastructure)
}

func testPolicy() Policy {
	return Policy{MaxRetries: 3, Delay: time.Millisecond, Concurrency: 2}
}

func TestRetriesInfrastructureFailures(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	j := &flakyJudge{failures: 2, err: infraErr()}
	w := New(j, testPolicy(), m, slog.New(slog.DiscardHandler))

	require.NoError(t, w.Handle(context.Background(), 1))
	assert.Equal(t, int32(3), j.calls.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Retries))
}

func TestRetryBound(t *testing.T) {
	j := &flakyJudge{failures: 100, err: infraErr()}
	w := New(j, testPolicy(), nil, slog.New(slog.DiscardHandler))

	err := w.Handle(context.Background(), 1)
	require.ErrorIs(t, err, judge.ErrInfrastructure)
	assert.Equal(t, int32(4), j.calls.Load(), "one attempt plus three retries")
}

func TestTerminalErrorsAreNotRetried(t *testing.T) {
	j := &flakyJudge{failures: 100, err: errors.New("submission vanished")}
	w := New(j, testPolicy(), nil, slog.New(slog.DiscardHandler))

	err := w.Handle(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, judge.ErrInfrastructure)
	assert.Equal(t, int32(1), j.calls.Load())
}

func TestRetryStopsWithContext(t *testing.T) {
	j := &flakyJudge{failures: 100, err: infraErr()}
	p := testPolicy()
	p.MaxRetries = 1000
	p.Delay = 20 * time.Millisecond
	w := New(j, p, nil, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Error(t, w.Handle(ctx, 1))
	assert.Less(t, j.calls.Load(), int32(10))
}

type slowJudge struct {
	mu     sync.Mutex
	active int
	peak   int
}

func (s *slowJudge) Judge(context.Context, int64) error {
	s.mu.Lock()
	s.active++
	s.peak = max(s.peak, s.active)
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	return nil
}

func TestPoolBoundsConcurrency(t *testing.T) {
	j := &slowJudge{}
	pool := New(j, testPolicy(), nil, slog.New(slog.DiscardHandler)).Pool()

	var done atomic.Int32
	for id := range int64(10) {
		require.NoError(t, pool.Go(context.Background(), id, func(err error) {
			assert.NoError(t, err)
			done.Add(1)
		}))
	}
	pool.Wait()
	assert.Equal(t, int32(10), done.Load())
	assert.LessOrEqual(t, j.peak, 2)
}
