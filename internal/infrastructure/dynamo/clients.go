package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/authbridge/verification-api/internal/domain"
)

// ClientWebhookRepo reads and writes per-client webhook configuration.
// PK: client_id.
type ClientWebhookRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewClientWebhookRepo(client *dynamodb.Client, tableName string) *ClientWebhookRepo {
	return &ClientWebhookRepo{client: client, tableName: tableName}
}

func (r *ClientWebhookRepo) Get(ctx context.Context, clientID string) (*domain.ClientWebhookConfig, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("client_id", clientID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("client webhook config not found: %w", domain.ErrNotFound)
	}
	var cfg domain.ClientWebhookConfig
	if err := attributevalue.UnmarshalMap(out.Item, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *ClientWebhookRepo) Put(ctx context.Context, cfg *domain.ClientWebhookConfig) error {
	item, err := attributevalue.MarshalMap(cfg)
	if err != nil {
		return fmt.Errorf("marshal client webhook config: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}
