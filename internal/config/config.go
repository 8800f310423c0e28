// Package config reads the worker configuration from ARROW_* environment
// variables, optionally seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ruslanjan/arrow/internal/logging"
)

type Queue string

const (
	SQS  Queue = "sqs"
	NATS Queue = "nats"
)

type Config struct {
	LogLevel slog.Level

	// WorkRoot holds the per-attempt workspaces.
	WorkRoot       string
	AttemptTimeout time.Duration
	MaxRetries     uint64
	RetryDelay     time.Duration
	Concurrency    int

	DatabaseDSN     string
	DBMaxOpenConns  int
	DBMaxIdleConns  int
	DBConnLifetime  time.Duration
	RedisAddr       string
	LockTTL         time.Duration
	// MetricsAddr is where /metrics is served. Empty disables it.
	MetricsAddr     string
	TestlibPath     string
	IsolateBinary   string
	IsolateCGroups  bool
	IsolateFirstBox int
	IsolateBoxes    int

	Queue       Queue
	SQSQueueURL string
	AWSRegion   string
	NATSURL     string
	NATSSubject string
	NATSGroup   string
	// EventsPrefix is the NATS subject prefix progress events are published
	// under. Empty disables them.
	EventsPrefix string
}

func Default() Config {
	return Config{
		LogLevel:        slog.LevelInfo,
		WorkRoot:        "/var/lib/arrow/work",
		AttemptTimeout:  300 * time.Second,
		MaxRetries:      5,
		RetryDelay:      10 * time.Second,
		Concurrency:     1,
		DBMaxOpenConns:  20,
		DBMaxIdleConns:  5,
		DBConnLifetime:  time.Hour,
		LockTTL:         10 * time.Minute,
		MetricsAddr:     ":9090",
		IsolateBinary:   "isolate",
		IsolateCGroups:  true,
		IsolateFirstBox: 0,
		IsolateBoxes:    64,
		Queue:           SQS,
		AWSRegion:       "eu-central-1",
		NATSURL:         "nats://127.0.0.1:4222",
		NATSSubject:     "arrow.judge",
		NATSGroup:       "arrow-workers",
		EventsPrefix:    "arrow.events",
	}
}

// Load reads the given .env files (".env" when none are given) into the
// process environment and parses the result. Missing files are skipped and
// variables already set win.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv parses the configuration out of lookup, starting from Default.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	if v, ok := p.get("ARROW_LOG_LEVEL"); ok {
		l, err := logging.ParseLevel(v)
		p.fail("ARROW_LOG_LEVEL", err)
		cfg.LogLevel = l
	}
	p.setString("ARROW_WORK_ROOT", &cfg.WorkRoot)
	p.setDuration("ARROW_ATTEMPT_TIMEOUT", &cfg.AttemptTimeout)
	p.setUint("ARROW_MAX_RETRIES", &cfg.MaxRetries)
	p.setDuration("ARROW_RETRY_DELAY", &cfg.RetryDelay)
	p.setInt("ARROW_CONCURRENCY", &cfg.Concurrency)

	p.setString("ARROW_DATABASE_DSN", &cfg.DatabaseDSN)
	p.setInt("ARROW_DB_MAX_OPEN_CONNS", &cfg.DBMaxOpenConns)
	p.setInt("ARROW_DB_MAX_IDLE_CONNS", &cfg.DBMaxIdleConns)
	p.setDuration("ARROW_DB_CONN_LIFETIME", &cfg.DBConnLifetime)
	p.setString("ARROW_REDIS_ADDR", &cfg.RedisAddr)
	p.setDuration("ARROW_LOCK_TTL", &cfg.LockTTL)
	p.setOptional("ARROW_METRICS_ADDR", &cfg.MetricsAddr)
	p.setString("ARROW_TESTLIB_PATH", &cfg.TestlibPath)
	p.setString("ARROW_ISOLATE_BIN", &cfg.IsolateBinary)
	p.setBool("ARROW_ISOLATE_CGROUPS", &cfg.IsolateCGroups)
	p.setInt("ARROW_ISOLATE_FIRST_BOX", &cfg.IsolateFirstBox)
	p.setInt("ARROW_ISOLATE_BOXES", &cfg.IsolateBoxes)

	var q string
	if p.setString("ARROW_QUEUE", &q) {
		cfg.Queue = Queue(strings.ToLower(q))
	}
	p.setString("ARROW_SQS_QUEUE_URL", &cfg.SQSQueueURL)
	p.setString("ARROW_AWS_REGION", &cfg.AWSRegion)
	p.setString("ARROW_NATS_URL", &cfg.NATSURL)
	p.setString("ARROW_NATS_SUBJECT", &cfg.NATSSubject)
	p.setString("ARROW_NATS_GROUP", &cfg.NATSGroup)
	p.setOptional("ARROW_EVENTS_PREFIX", &cfg.EventsPrefix)

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	switch c.Queue {
	case SQS, NATS:
	default:
		errs = append(errs, fmt.Errorf("ARROW_QUEUE: unknown queue %q", c.Queue))
	}
	if c.Concurrency < 1 {
		errs = append(errs, errors.New("ARROW_CONCURRENCY must be at least 1"))
	}
	if c.IsolateBoxes < c.Concurrency {
		errs = append(errs, errors.New("ARROW_ISOLATE_BOXES must not be below ARROW_CONCURRENCY"))
	}
	if c.RedisAddr != "" && c.LockTTL <= c.AttemptTimeout {
		errs = append(errs, errors.New("ARROW_LOCK_TTL must exceed ARROW_ATTEMPT_TIMEOUT"))
	}
	return errors.Join(errs...)
}

// LocalWorkRoot is where `arrow run` keeps its workspaces: the XDG state
// directory of the current user.
func LocalWorkRoot() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "arrow", "work")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "arrow-work")
	}
	return filepath.Join(home, ".local", "state", "arrow", "work")
}

// ReadTestlib returns the testlib.h contents, or nil when no path is set.
func (c Config) ReadTestlib() ([]byte, error) {
	if c.TestlibPath == "" {
		return nil, nil
	}
	b, err := os.ReadFile(c.TestlibPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read testlib header: %w", err)
	}
	return b, nil
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) get(key string) (string, bool) {
	v, ok := p.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (p *parser) fail(key string, err error) {
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
	}
}

func (p *parser) setString(key string, dst *string) bool {
	v, ok := p.get(key)
	if ok {
		*dst = v
	}
	return ok
}

// setOptional lets a present but empty variable clear the default.
func (p *parser) setOptional(key string, dst *string) {
	if v, ok := p.lookup(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func (p *parser) setInt(key string, dst *int) {
	if v, ok := p.get(key); ok {
		n, err := strconv.Atoi(v)
		p.fail(key, err)
		if err == nil {
			*dst = n
		}
	}
}

func (p *parser) setUint(key string, dst *uint64) {
	if v, ok := p.get(key); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		p.fail(key, err)
		if err == nil {
			*dst = n
		}
	}
}

func (p *parser) setBool(key string, dst *bool) {
	if v, ok := p.get(key); ok {
		b, err := strconv.ParseBool(v)
		p.fail(key, err)
		if err == nil {
			*dst = b
		}
	}
}

func (p *parser) setDuration(key string, dst *time.Duration) {
	if v, ok := p.get(key); ok {
		d, err := time.ParseDuration(v)
		p.fail(key, err)
		if err == nil {
			*dst = d
		}
	}
}
