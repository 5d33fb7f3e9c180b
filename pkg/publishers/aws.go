package publishers

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// loadAWSConfig resolves an AWS config for region. Static keys are used when
// given; otherwise the default credential chain applies.
func loadAWSConfig(ctx context.Context, region, accessKeyID, secretAccessKey string) (aws.Config, error) {
	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")
		opts = append(opts, awscfg.WithCredentialsProvider(creds))
	}

	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// eventAttributes are the routing attributes attached to every queued message.
func eventAttributes(evt Event) map[string]string {
	attrs := map[string]string{
		"event_type": evt.Type,
		"run_id":     evt.RunID,
		"source":     evt.Source,
		"topics":     strings.Join(evt.Topics, ","),
	}
	for k, v := range attrs {
		// SQS and SNS reject empty string attribute values.
		if v == "" {
			delete(attrs, k)
		}
	}
	return attrs
}
