package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another worker is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every worker talking to the same redis.
// The lock expires after TTL so a crashed worker cannot hold it forever;
// TTL must exceed the attempt ceiling.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	poll   time.Duration
	log    *slog.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		prefix: "arrow:attempt:",
		ttl:    ttl,
		poll:   defaultPoll,
		log:    logger,
	}
}

func (r *Redis) key(submissionID int64) string {
	return fmt.Sprintf("%s%d", r.prefix, submissionID)
}

func (r *Redis) Acquire(ctx context.Context, submissionID int64) (func(), error) {
	key := r.key(submissionID)
	token := uuid.NewString()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to lock submission %d: %w", submissionID, err)
		}
		if ok {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to lock submission %d: %w", submissionID, ctx.Err())
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
			r.log.Warn("failed to release attempt lock", "submission_id", submissionID, "error", err)
		}
	}, nil
}
