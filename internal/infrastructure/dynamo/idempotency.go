package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/authbridge/verification-api/internal/domain"
)

// IdempotencyRepo manages idempotency key reservations.
// PK: idem_key ("IDEM#<client_id>#<idempotency_key>"), TTL on expires_at.
type IdempotencyRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewIdempotencyRepo(client *dynamodb.Client, tableName string) *IdempotencyRepo {
	return &IdempotencyRepo{client: client, tableName: tableName}
}

// PutIfAbsent writes the record only when the key has never been reserved.
// A lost write race surfaces as ErrConflict; the caller re-reads the winner.
func (r *IdempotencyRepo) PutIfAbsent(ctx context.Context, rec *domain.IdempotencyRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(idem_key)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("idempotency key already reserved: %w", domain.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("idem_key", key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("idempotency record not found: %w", domain.ErrNotFound)
	}
	var rec domain.IdempotencyRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
