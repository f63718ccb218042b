package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"go.uber.org/zap"
)

const (
	createQueueAttempts = 5
	createQueueBackoff  = 5 * time.Second

	// SQS caps long polling at 20 seconds and a receive batch at 10
	// messages.
	maxWaitSeconds  = 20
	maxBatchSize    = 10
	visibilitySecs  = 30
	defaultWaitSecs = 18
)

// SQSConfig configures the SQS queue backend. EndpointURL is only set
// for local stacks (localstack and friends).
type SQSConfig struct {
	QueueName   string
	Region      string
	EndpointURL string
	WaitTime    time.Duration
}

// SQSBackend consumes the exporter queue from Amazon SQS.
type SQSBackend struct {
	client   *sqs.SQS
	queueURL string
	waitSecs int64
	logger   *zap.SugaredLogger
}

// NewSQSBackend connects to SQS and ensures the queue exists. Queue
// creation is retried: on a fresh local stack the SQS endpoint can lag
// the process by a few seconds.
func NewSQSBackend(cfg SQSConfig, logger *zap.SugaredLogger) (*SQSBackend, error) {
	awsCfg := aws.NewConfig()
	if cfg.Region != "" {
		awsCfg = awsCfg.WithRegion(cfg.Region)
	}
	if cfg.EndpointURL != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.EndpointURL)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}

	backend := &SQSBackend{
		client:   sqs.New(sess),
		waitSecs: defaultWaitSecs,
		logger:   logger,
	}
	if cfg.WaitTime > 0 {
		secs := int64(cfg.WaitTime / time.Second)
		if secs > maxWaitSeconds {
			secs = maxWaitSeconds
		}
		backend.waitSecs = secs
	}

	queueURL, err := backend.createQueue(cfg.QueueName)
	if err != nil {
		return nil, err
	}
	backend.queueURL = queueURL

	logger.Infof("Connected to SQS queue %s", cfg.QueueName)
	return backend, nil
}

func (b *SQSBackend) createQueue(name string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < createQueueAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(createQueueBackoff)
		}
		out, err := b.client.CreateQueue(&sqs.CreateQueueInput{
			QueueName: aws.String(name),
		})
		if err != nil {
			lastErr = err
			b.logger.Warnw("Failed to create queue, retrying",
				"queue", name,
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}
		return aws.StringValue(out.QueueUrl), nil
	}
	return "", fmt.Errorf("creating queue %s after %d attempts: %w", name, createQueueAttempts, lastErr)
}

// Receive long-polls for up to one batch of messages. An empty slice
// with a nil error means the queue is idle.
func (b *SQSBackend) Receive(ctx context.Context) ([]Message, error) {
	out, err := b.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(b.queueURL),
		MaxNumberOfMessages:   aws.Int64(maxBatchSize),
		WaitTimeSeconds:       aws.Int64(b.waitSecs),
		VisibilityTimeout:     aws.Int64(visibilitySecs),
		AttributeNames:        []*string{aws.String(sqs.MessageSystemAttributeNameSentTimestamp)},
		MessageAttributeNames: []*string{aws.String("All")},
	})
	if err != nil {
		return nil, fmt.Errorf("receiving messages: %w", err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		messages = append(messages, Message{
			Body:          []byte(aws.StringValue(m.Body)),
			ReceiptHandle: aws.StringValue(m.ReceiptHandle),
		})
	}
	return messages, nil
}

// Delete acknowledges one delivery. An undeleted message becomes
// visible again after the visibility timeout and is redelivered.
func (b *SQSBackend) Delete(ctx context.Context, msg Message) error {
	_, err := b.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(b.queueURL),
		ReceiptHandle: aws.String(msg.ReceiptHandle),
	})
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	return nil
}

// Publish enqueues a raw event body.
func (b *SQSBackend) Publish(ctx context.Context, body []byte) error {
	_, err := b.client.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(b.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("publishing message: %w", err)
	}
	return nil
}
