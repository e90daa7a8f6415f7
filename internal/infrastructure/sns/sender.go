package sns

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/authbridge/verification-api/internal/config"
)

// AlertPublisher notifies operators of events that need human attention,
// currently only permanent webhook delivery failures.
type AlertPublisher interface {
	PublishDeliveryFailure(ctx context.Context, caseID, clientID, eventType string) error
}

type publisher struct {
	client   *sns.Client
	topicARN string
}

func NewPublisher(cfg *config.Config) (AlertPublisher, error) {
	if cfg.AlertTopicARN == "" {
		return nil, fmt.Errorf("no alert topic configured")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, err
	}
	return &publisher{client: sns.NewFromConfig(awsCfg), topicARN: cfg.AlertTopicARN}, nil
}

func (p *publisher) PublishDeliveryFailure(ctx context.Context, caseID, clientID, eventType string) error {
	msg := fmt.Sprintf("webhook delivery exhausted all attempts: case=%s client=%s event=%s", caseID, clientID, eventType)
	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: &p.topicARN,
		Message:  &msg,
	})
	return err
}
