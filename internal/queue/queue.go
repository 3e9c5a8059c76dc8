// Package queue implements the Work Queue contract on top of Amazon
// SQS via aws-sdk-go-v2's SendMessage/ReceiveMessage/DeleteMessage
// against a configured queue URL.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
)

// Message is a received queue entry: the decoded job_id plus the receipt
// handle needed to Delete it.
type Message struct {
	JobID         uuid.UUID
	ReceiptHandle string
}

// payload is the wire shape of the queue message format.
type payload struct {
	JobID string `json:"job_id"`
}

// Queue is the SQS-backed Work Queue client.
type Queue struct {
	client   *sqs.Client
	queueURL string
}

// New builds a Queue, honoring QUEUE_ENDPOINT_OVERRIDE for local
// ElasticMQ/localstack emulation.
func New(ctx context.Context, region, queueURL, endpointOverride string) (*Queue, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("queue: load aws config: %w", err)
	}

	var client *sqs.Client
	if endpointOverride != "" {
		client = sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(endpointOverride)
		})
	} else {
		client = sqs.NewFromConfig(awsCfg)
	}

	return &Queue{client: client, queueURL: queueURL}, nil
}

// Publish enqueues a job_id payload, returning only once SQS durably
// accepts it.
func (q *Queue) Publish(ctx context.Context, jobID uuid.UUID) error {
	body, err := json.Marshal(payload{JobID: jobID.String()})
	if err != nil {
		return fmt.Errorf("queue: marshal: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("queue: publish: %w", err)
	}
	return nil
}

// Receive long-polls for up to max messages, waiting at most wait for
// the first one. Malformed bodies are silently skipped and not
// returned, so they are not deleted and reappear after the visibility
// timeout.
func (q *Queue) Receive(ctx context.Context, max int32, wait time.Duration) ([]Message, error) {
	if max > 10 {
		max = 10
	}
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: max,
		WaitTimeSeconds:     int32(wait / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("queue: receive: %w", err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, raw := range out.Messages {
		if raw.Body == nil || raw.ReceiptHandle == nil {
			continue
		}
		var p payload
		if err := json.Unmarshal([]byte(*raw.Body), &p); err != nil {
			continue
		}
		jobID, err := uuid.Parse(p.JobID)
		if err != nil {
			continue
		}
		messages = append(messages, Message{JobID: jobID, ReceiptHandle: *raw.ReceiptHandle})
	}
	return messages, nil
}

// Delete marks a message consumed; the caller must have already
// landed every durable effect of processing it.
func (q *Queue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("queue: delete: %w", err)
	}
	return nil
}
