package notifications

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSClientAPI defines the SNS operation used by SNSAlertSink.
// This allows for mocking in tests
type SNSClientAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// alertSubject is the subject of alert messages; email subscribers see it.
const alertSubject = "Access key rotation failed"

// SNSAlertSink publishes rotation failures to an SNS topic.
type SNSAlertSink struct {
	client   SNSClientAPI
	topicARN string
	subject  string
}

// NewSNSAlertSink creates a sink for topicARN. A nil client is built from cfg.
func NewSNSAlertSink(cfg aws.Config, topicARN string, client SNSClientAPI) (*SNSAlertSink, error) {
	if topicARN == "" {
		return nil, fmt.Errorf("topic ARN is required")
	}
	if client == nil {
		client = sns.NewFromConfig(cfg)
	}
	return &SNSAlertSink{client: client, topicARN: topicARN, subject: alertSubject}, nil
}

// Name returns the sink name.
func (s *SNSAlertSink) Name() string {
	return "sns:" + s.topicARN
}

// Publish sends message to the topic.
func (s *SNSAlertSink) Publish(ctx context.Context, message string) error {
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Subject:  aws.String(s.subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", s.topicARN, err)
	}
	return nil
}
