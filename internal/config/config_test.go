package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 300*time.Second, cfg.AttemptTimeout)
	assert.Equal(t, SQS, cfg.Queue)
}

func TestFromEnv(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"ARROW_LOG_LEVEL":       "debug",
		"ARROW_QUEUE":           "NATS",
		"ARROW_CONCURRENCY":     "4",
		"ARROW_MAX_RETRIES":     "2",
		"ARROW_RETRY_DELAY":     "250ms",
		"ARROW_ISOLATE_CGROUPS": "false",
		"ARROW_REDIS_ADDR":      "localhost:6379",
		"ARROW_LOCK_TTL":        "15m",
		"ARROW_EVENTS_PREFIX":   "",
		"ARROW_WORK_ROOT":       "  ",
	}))
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, NATS, cfg.Queue)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, uint64(2), cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.False(t, cfg.IsolateCGroups)
	assert.Equal(t, 15*time.Minute, cfg.LockTTL)
	assert.Empty(t, cfg.EventsPrefix, "an empty prefix disables events")
	assert.Equal(t, Default().WorkRoot, cfg.WorkRoot, "blank values keep the default")
}

func TestFromEnvReportsEveryBadValue(t *testing.T) {
	_, err := FromEnv(env(map[string]string{
		"ARROW_CONCURRENCY":     "many",
		"ARROW_ATTEMPT_TIMEOUT": "5 minutes",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ARROW_CONCURRENCY")
	assert.Contains(t, err.Error(), "ARROW_ATTEMPT_TIMEOUT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"unknown queue", map[string]string{"ARROW_QUEUE": "kafka"}},
		{"no concurrency", map[string]string{"ARROW_CONCURRENCY": "0"}},
		{"too few boxes", map[string]string{"ARROW_CONCURRENCY": "8", "ARROW_ISOLATE_BOXES": "4"}},
		{"lock shorter than attempt", map[string]string{"ARROW_REDIS_ADDR": "r:6379", "ARROW_LOCK_TTL": "1m"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(env(tt.vars))
			require.Error(t, err)
		})
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	const key = "ARROW_NATS_GROUP"
	if _, set := os.LookupEnv(key); set {
		t.Skipf("%s is set in the environment", key)
	}
	t.Cleanup(func() { os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=graders\n"), 0o644))

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"), path)
	require.NoError(t, err)
	assert.Equal(t, "graders", cfg.NATSGroup)
}

func TestLocalWorkRoot(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/state")
	assert.Equal(t, "/tmp/state/arrow/work", LocalWorkRoot())
}
