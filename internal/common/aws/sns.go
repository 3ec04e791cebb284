// internal/common/aws/sns.go
package aws

import (
	"context"
	"encoding/json"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/wakeupmh/pdf-rag/internal/models"
)

const alertSubject = "pdf-rag: retrieve and generate failed"

type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// AlertPublisher sends backend failure alerts to an SNS topic.
type AlertPublisher struct {
	api      SNSAPI
	topicARN string
}

func NewAlertPublisher(ctx context.Context, region, topicARN string, httpClient config.HTTPClient) (*AlertPublisher, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if httpClient != nil {
		opts = append(opts, config.WithHTTPClient(httpClient))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &AlertPublisher{api: sns.NewFromConfig(cfg), topicARN: topicARN}, nil
}

func NewAlertPublisherWithAPI(api SNSAPI, topicARN string) *AlertPublisher {
	return &AlertPublisher{api: api, topicARN: topicARN}
}

// NotifyFailure publishes the alert as JSON. The error code is also set as a
// message attribute so subscriptions can filter on it.
func (p *AlertPublisher) NotifyFailure(ctx context.Context, alert models.FailureAlert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	_, err = p.api.Publish(ctx, &sns.PublishInput{
		TopicArn: awssdk.String(p.topicARN),
		Subject:  awssdk.String(alertSubject),
		Message:  awssdk.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"error_code": {
				DataType:    awssdk.String("String"),
				StringValue: awssdk.String(alert.ErrorCode),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish alert to %s: %w", p.topicARN, err)
	}
	return nil
}
