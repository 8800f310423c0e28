// Package sqsq consumes and publishes judge requests on an SQS queue.
package sqsq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ruslanjan/arrow/api"
	"github.com/ruslanjan/arrow/internal/queue"
)

// API is the part of *sqs.Client the queue uses.
type API interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

var _ API = (*sqs.Client)(nil)

// NewClient builds an SQS client from the default AWS configuration chain.
func NewClient(ctx context.Context, region string) (*sqs.Client, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return sqs.NewFromConfig(cfg), nil
}

type Queue struct {
	client   API
	queueURL string
	log      *slog.Logger

	// WaitTimeSeconds is the long polling window.
	WaitTimeSeconds int32
	MaxMessages     int32
	errorBackoff    time.Duration
}

var (
	_ queue.Consumer  = (*Queue)(nil)
	_ queue.Publisher = (*Queue)(nil)
)

func New(client API, queueURL string, logger *slog.Logger) *Queue {
	return &Queue{
		client:          client,
		queueURL:        queueURL,
		log:             logger.With("queue", queueURL),
		WaitTimeSeconds: 20,
		MaxMessages:     1,
		errorBackoff:    time.Second,
	}
}

func (q *Queue) Publish(ctx context.Context, req api.JudgeRequest) error {
	body, err := req.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode judge request: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send judge request: %w", err)
	}
	return nil
}

// Run long-polls the queue. A message is deleted once it has been judged
// or found malformed; messages in flight at shutdown are left for another
// worker.
func (q *Queue) Run(ctx context.Context, dispatch queue.Dispatch) error {
	for {
		out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: q.MaxMessages,
			WaitTimeSeconds:     q.WaitTimeSeconds,
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			q.log.Warn("failed to receive messages", "error", err)
			select {
			case <-time.After(q.errorBackoff):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		for _, m := range out.Messages {
			if err := q.deliver(ctx, m, dispatch); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func (q *Queue) deliver(ctx context.Context, m types.Message, dispatch queue.Dispatch) error {
	req, err := api.DecodeJudgeRequest([]byte(aws.ToString(m.Body)))
	if err != nil {
		q.log.Error("dropping malformed message", "message_id", aws.ToString(m.MessageId), "error", err)
		q.delete(ctx, m)
		return nil
	}

	return dispatch(ctx, req, func(err error) {
		if errors.Is(err, context.Canceled) {
			return
		}
		q.delete(context.WithoutCancel(ctx), m)
	})
}

func (q *Queue) delete(ctx context.Context, m types.Message) {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		q.log.Warn("failed to delete message", "message_id", aws.ToString(m.MessageId), "error", err)
	}
}
