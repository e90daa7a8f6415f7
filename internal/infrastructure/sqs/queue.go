package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/authbridge/verification-api/internal/config"
	"github.com/authbridge/verification-api/internal/domain"
)

// maxDelay is the SQS per-message delay ceiling.
const maxDelay = 900 * time.Second

// Queue is the durable delayed-message facility behind webhook retries.
// Messages survive the scheduling worker terminating and are redelivered
// at least once.
type Queue struct {
	client   *sqs.Client
	queueURL string
}

// NewQueue creates an SQS-backed retry queue. When cfg.AWSEndpointURL is set
// (LocalStack), it overrides the endpoint.
func NewQueue(cfg *config.Config) (*Queue, error) {
	if cfg.RetryQueueURL == "" {
		return nil, fmt.Errorf("no retry queue configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for SQS: %w", err)
	}

	clientOpts := []func(*sqs.Options){}
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}

	return &Queue{client: sqs.NewFromConfig(awsCfg, clientOpts...), queueURL: cfg.RetryQueueURL}, nil
}

// ScheduleRetry enqueues the message with the given delay, capped at the SQS
// maximum of 900s.
func (q *Queue) ScheduleRetry(ctx context.Context, msg *domain.WebhookMessage, delay time.Duration) error {
	if delay > maxDelay {
		delay = maxDelay
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal retry message: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(q.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: int32(delay / time.Second),
	})
	if err != nil {
		return fmt.Errorf("send retry message: %w", err)
	}
	return nil
}

// Consume long-polls the queue and hands each retry message to handle.
// A message is deleted only after handle returns without error, so failed
// handling falls back on SQS redelivery. Blocks until ctx is cancelled.
func (q *Queue) Consume(ctx context.Context, handle func(context.Context, *domain.WebhookMessage) error) {
	for {
		if ctx.Err() != nil {
			return
		}
		out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("receive retry messages", "err", err)
			time.Sleep(5 * time.Second)
			continue
		}
		for _, m := range out.Messages {
			var msg domain.WebhookMessage
			if err := json.Unmarshal([]byte(aws.ToString(m.Body)), &msg); err != nil {
				slog.Error("malformed retry message, dropping", "err", err)
			} else if err := handle(ctx, &msg); err != nil {
				slog.Warn("retry message handling failed, leaving for redelivery",
					"case_id", msg.CaseID, "event", msg.EventType, "err", err)
				continue
			}
			_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(q.queueURL),
				ReceiptHandle: m.ReceiptHandle,
			})
			if err != nil {
				slog.Warn("delete retry message", "err", err)
			}
		}
	}
}
