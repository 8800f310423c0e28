package main

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"

	"github.com/ruslanjan/arrow/api"
	"github.com/ruslanjan/arrow/internal/config"
	"github.com/ruslanjan/arrow/internal/queue"
	"github.com/ruslanjan/arrow/internal/queue/natsq"
	"github.com/ruslanjan/arrow/internal/store/gormstore"
)

func enqueueCommand() *cli.Command {
	return &cli.Command{
		Name:  "enqueue",
		Usage: "publish a judge request for a submission",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "id", Usage: "submission id", Required: true},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			req := api.JudgeRequest{SubmissionID: c.Int64("id")}
			if req.SubmissionID <= 0 {
				return fmt.Errorf("%w: submission id must be positive", api.ErrBadRequest)
			}

			var pub queue.Publisher
			if cfg.Queue == config.NATS {
				nc, err := nats.Connect(cfg.NATSURL, nats.Name("arrow-enqueue"))
				if err != nil {
					return fmt.Errorf("failed to connect to nats: %w", err)
				}
				defer nc.Close()
				pub = natsq.New(nc, cfg.NATSSubject, cfg.NATSGroup, log)
				defer nc.Flush()
			} else {
				pub, err = newSQS(ctx, cfg, log)
				if err != nil {
					return err
				}
			}
			if err := pub.Publish(ctx, req); err != nil {
				return err
			}
			log.Info("judge request published", "submission_id", req.SubmissionID, "queue", cfg.Queue)
			return nil
		},
	}
}

func clearCacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear-cache",
		Usage: "drop the cached reference binaries of a problem",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "problem", Usage: "problem id", Required: true},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			if cfg.DatabaseDSN == "" {
				return fmt.Errorf("ARROW_DATABASE_DSN is required")
			}
			st, err := gormstore.Open(cfg.DatabaseDSN, gormstore.PoolConfig{MaxOpenConns: 1})
			if err != nil {
				return err
			}
			defer st.Close()

			id := c.Int64("problem")
			if err := st.ClearArtifacts(ctx, id); err != nil {
				return err
			}
			log.Info("cleared artifact cache", "problem_id", id)
			return nil
		},
	}
}
