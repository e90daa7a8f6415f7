package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/authbridge/verification-api/internal/domain"
)

// DeliveryLogRepo stores the append-only webhook delivery audit trail.
// PK: case_id, SK: log_id (ULID — range queries return attempts in time order).
type DeliveryLogRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewDeliveryLogRepo(client *dynamodb.Client, tableName string) *DeliveryLogRepo {
	return &DeliveryLogRepo{client: client, tableName: tableName}
}

// Append writes one delivery attempt entry. Entries are never updated.
func (r *DeliveryLogRepo) Append(ctx context.Context, entry *domain.WebhookDeliveryLog) error {
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("marshal delivery log: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// ListByCase returns all delivery attempts for a case in chronological order.
func (r *DeliveryLogRepo) ListByCase(ctx context.Context, caseID string) ([]domain.WebhookDeliveryLog, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("case_id = :cid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": &types.AttributeValueMemberS{Value: caseID},
		},
	})
	if err != nil {
		return nil, err
	}
	var logs []domain.WebhookDeliveryLog
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
