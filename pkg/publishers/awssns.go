package publishers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// snsClient defines the minimal subset of the SNS client used by the AWS sender.
type snsClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// awsSNSSender implements queueSender for AWS SNS.
type awsSNSSender struct {
	topicARN string
	client   snsClient
	log      Logger
}

// newAWSSNSSender builds an SNS sender for the configured topic.
func newAWSSNSSender(ctx context.Context, cfg *AWSSNSPublisherConfig, log Logger) (queueSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("aws sns configuration is missing")
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.Region, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, err
	}

	return &awsSNSSender{
		topicARN: cfg.TopicARN,
		client:   sns.NewFromConfig(awsCfg),
		log:      ensureLogger(log),
	}, nil
}

// Send publishes the event to the configured SNS topic. Subscribers can filter
// on the topics attribute.
func (s *awsSNSSender) Send(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	attrs := make(map[string]types.MessageAttributeValue)
	for k, v := range eventAttributes(evt) {
		attrs[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	resp, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(s.topicARN),
		Message:           aws.String(string(payload)),
		Subject:           aws.String(evt.Type),
		MessageAttributes: attrs,
	})
	if err != nil {
		s.log.ErrorObj("sns publisher send failed", "publisher_sns_error", map[string]any{
			"event_id": evt.ID,
			"error":    err.Error(),
		})
		return fmt.Errorf("send message to sns: %w", err)
	}
	s.log.DebugObj("sns publisher delivered event", "publisher_sns_delivery", map[string]any{
		"event_id":   evt.ID,
		"message_id": aws.ToString(resp.MessageId),
	})
	return nil
}
