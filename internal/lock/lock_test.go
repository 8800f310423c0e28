package lock

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	l := NewRedis(client, time.Minute, slog.New(slog.DiscardHandler))
	l.poll = 5 * time.Millisecond
	return l, mr
}

func lockers(t *testing.T) map[string]Locker {
	r, _ := newRedisLocker(t)
	return map[string]Locker{"local": NewLocal(), "redis": r}
}

func TestMutualExclusion(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			var inside, peak atomic.Int32
			var wg sync.WaitGroup
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					release, err := l.Acquire(context.Background(), 1)
					if !assert.NoError(t, err) {
						return
					}
					n := inside.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(2 * time.Millisecond)
					inside.Add(-1)
					release()
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), peak.Load())
		})
	}
}

func TestDifferentSubmissionsDoNotBlock(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			r1, err := l.Acquire(context.Background(), 1)
			require.NoError(t, err)
			defer r1()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			r2, err := l.Acquire(ctx, 2)
			require.NoError(t, err)
			r2()
		})
	}
}

func TestAcquireRespectsContext(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			release, err := l.Acquire(context.Background(), 7)
			require.NoError(t, err)
			defer release()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()
			_, err = l.Acquire(ctx, 7)
			require.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestRedisReleaseKeepsForeignLock(t *testing.T) {
	l, mr := newRedisLocker(t)
	release, err := l.Acquire(context.Background(), 3)
	require.NoError(t, err)

	// the lock expired and another worker took it
	mr.Set(l.key(3), "someone-else")
	release()

	got, err := mr.Get(l.key(3))
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLockExpires(t *testing.T) {
	l, mr := newRedisLocker(t)
	_, err := l.Acquire(context.Background(), 4)
	require.NoError(t, err)
	assert.True(t, mr.Exists(l.key(4)))

	mr.FastForward(2 * time.Minute)
	release, err := l.Acquire(context.Background(), 4)
	require.NoError(t, err)
	release()
	assert.False(t, mr.Exists(l.key(4)))
}
