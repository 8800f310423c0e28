package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/ruslanjan/arrow/api"
	"github.com/ruslanjan/arrow/internal/compile"
	"github.com/ruslanjan/arrow/internal/config"
	"github.com/ruslanjan/arrow/internal/gatherer"
	"github.com/ruslanjan/arrow/internal/gatherer/natsgath"
	"github.com/ruslanjan/arrow/internal/judge"
	"github.com/ruslanjan/arrow/internal/lock"
	"github.com/ruslanjan/arrow/internal/metrics"
	"github.com/ruslanjan/arrow/internal/queue"
	"github.com/ruslanjan/arrow/internal/queue/natsq"
	"github.com/ruslanjan/arrow/internal/queue/sqsq"
	"github.com/ruslanjan/arrow/internal/store/gormstore"
	"github.com/ruslanjan/arrow/internal/tester"
	"github.com/ruslanjan/arrow/internal/worker"
)

func workerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "consume judge requests until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "migrate",
				Usage: "create or update the database schema first",
			},
		},
		Action: runWorker,
	}
}

func runWorker(ctx context.Context, c *cli.Command) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	if cfg.DatabaseDSN == "" {
		return fmt.Errorf("ARROW_DATABASE_DSN is required")
	}

	st, err := gormstore.Open(cfg.DatabaseDSN, gormstore.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
	})
	if err != nil {
		return err
	}
	defer st.Close()
	if c.Bool("migrate") {
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go metrics.Serve(ctx, cfg.MetricsAddr, reg, log)
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}
		locker = lock.NewRedis(rdb, cfg.LockTTL, log)
	}

	var nc *nats.Conn
	if cfg.Queue == config.NATS || cfg.EventsPrefix != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name("arrow-worker"))
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		defer nc.Close()
	}
	var gatherers gatherer.Factory
	if cfg.EventsPrefix != "" {
		gatherers = natsgath.Factory(nc, cfg.EventsPrefix, log)
	}

	ccfg, err := compileConfig(cfg)
	if err != nil {
		return err
	}
	iso := newIsolate(cfg, log)
	host, _ := os.Hostname()
	j := judge.New(judge.Deps{
		Store:     st,
		Compiler:  compile.New(iso, st, ccfg, log),
		Runner:    tester.New(iso, tester.DefaultConfig(), log),
		Locker:    locker,
		Gatherers: gatherers,
		Metrics:   m,
		Logger:    log,
	}, judge.Config{
		WorkRoot:       cfg.WorkRoot,
		AttemptTimeout: cfg.AttemptTimeout,
		SystemInfo:     host,
	})

	w := worker.New(j, worker.Policy{
		MaxRetries:  cfg.MaxRetries,
		Delay:       cfg.RetryDelay,
		Concurrency: cfg.Concurrency,
	}, m, log)
	pool := w.Pool()

	consumer, err := newConsumer(ctx, cfg, nc, log)
	if err != nil {
		return err
	}
	log.Info("worker started", "queue", cfg.Queue, "concurrency", cfg.Concurrency)
	err = consumer.Run(ctx, func(ctx context.Context, req api.JudgeRequest, done func(error)) error {
		return pool.Go(ctx, req.SubmissionID, done)
	})
	pool.Wait()
	log.Info("worker stopped")
	return err
}

func newConsumer(ctx context.Context, cfg config.Config, nc *nats.Conn, log *slog.Logger) (queue.Consumer, error) {
	if cfg.Queue == config.NATS {
		return natsq.New(nc, cfg.NATSSubject, cfg.NATSGroup, log), nil
	}
	return newSQS(ctx, cfg, log)
}

func newSQS(ctx context.Context, cfg config.Config, log *slog.Logger) (*sqsq.Queue, error) {
	if cfg.SQSQueueURL == "" {
		return nil, fmt.Errorf("ARROW_SQS_QUEUE_URL is required")
	}
	client, err := sqsq.NewClient(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	return sqsq.New(client, cfg.SQSQueueURL, log), nil
}
