package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// RateLimitRepo backs the fixed-window rate limiter with an atomic shared
// counter, so the limit holds across concurrent worker instances.
// PK: counter_key ("<ns>:<id>:<windowStart>"), TTL on expires_at.
type RateLimitRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewRateLimitRepo(client *dynamodb.Client, tableName string) *RateLimitRepo {
	return &RateLimitRepo{client: client, tableName: tableName}
}

// Increment atomically adds 1 to the counter and returns the new count.
// The TTL is set on first increment only; the counter key embeds the window
// start, so a new window always begins at count 1 under a fresh key.
func (r *RateLimitRepo) Increment(ctx context.Context, key string, ttl time.Time) (int64, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              strKey("counter_key", key),
		UpdateExpression: aws.String("SET expires_at = if_not_exists(expires_at, :ttl) ADD #c :one"),
		ExpressionAttributeNames: map[string]string{
			"#c": "count",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":ttl": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttl.Unix())},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return 0, err
	}
	attr, ok := out.Attributes["count"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("rate limit counter %s: missing count attribute", key)
	}
	n, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rate limit counter %s: %w", key, err)
	}
	return n, nil
}
