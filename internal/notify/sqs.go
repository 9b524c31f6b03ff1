package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client used by SQSNotifier.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSNotifier publishes events as JSON messages to an SQS queue.
type SQSNotifier struct {
	Client   SQSAPI
	QueueURL string
}

var _ Notifier = (*SQSNotifier)(nil)

func NewSQSNotifier(client SQSAPI, queueURL string) *SQSNotifier {
	return &SQSNotifier{Client: client, QueueURL: queueURL}
}

// NewSQSNotifierFromEnv builds a client from the default AWS config chain.
func NewSQSNotifierFromEnv(ctx context.Context, queueURL string) (*SQSNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewSQSNotifier(sqs.NewFromConfig(cfg), queueURL), nil
}

func (n *SQSNotifier) Notify(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event for SQS: %w", err)
	}

	_, err = n.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.QueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(e.Type)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send message to SQS: %w", err)
	}
	return nil
}
