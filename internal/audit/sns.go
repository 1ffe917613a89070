package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// Publisher is the subset of *sns.Client used here.
type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSink publishes events as JSON to a topic, with event_type and transaction_type
// message attributes for subscription filters.
type SNSSink struct {
	client   Publisher
	topicARN string
}

func NewSNSSink(client Publisher, topicARN string) (*SNSSink, error) {
	if topicARN == "" {
		return nil, errors.New("empty topic arn")
	}

	return &SNSSink{client: client, topicARN: topicARN}, nil
}

func NewSNSSinkFromConfig(cfg aws.Config, topicARN string) (*SNSSink, error) {
	return NewSNSSink(sns.NewFromConfig(cfg), topicARN)
}

func (s *SNSSink) Record(ctx context.Context, e Event) error {
	msg, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Message:  aws.String(string(msg)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(e.Kind)),
			},
			"transaction_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(e.Type),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publishing audit event %s: %w", e.TransactionID, err)
	}

	return nil
}
