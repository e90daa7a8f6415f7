package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/authbridge/verification-api/internal/domain"
)

// CaseRepo provides typed DynamoDB operations for the verification cases table.
type CaseRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewCaseRepo(client *dynamodb.Client, tableName string) *CaseRepo {
	return &CaseRepo{client: client, tableName: tableName}
}

func (r *CaseRepo) Put(ctx context.Context, c *domain.VerificationCase) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal case: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *CaseRepo) Get(ctx context.Context, caseID string) (*domain.VerificationCase, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("case_id", caseID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("case not found: %w", domain.ErrNotFound)
	}
	var c domain.VerificationCase
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateVersioned applies updates only when the stored version still matches
// expectedVersion, bumping the version as part of the write. Lost updates
// under concurrent transitions surface as ErrConflict so the caller can
// re-read and retry.
func (r *CaseRepo) UpdateVersioned(ctx context.Context, caseID string, expectedVersion int64, updates map[string]interface{}) error {
	updates[fieldVersion] = expectedVersion + 1
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	ue.Values[":expected"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("case_id", caseID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("version = :expected"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("case %s version mismatch: %w", caseID, domain.ErrConflict)
		}
		return err
	}
	return nil
}

// ListByClient returns the client's cases, newest first, via the
// client_id-created_at-index GSI.
func (r *CaseRepo) ListByClient(ctx context.Context, clientID string, limit int32) ([]domain.VerificationCase, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("client_id-created_at-index"),
		KeyConditionExpression: aws.String("client_id = :cid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": &types.AttributeValueMemberS{Value: clientID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(limit),
	})
	if err != nil {
		return nil, err
	}
	var cases []domain.VerificationCase
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &cases); err != nil {
		return nil, err
	}
	return cases, nil
}

// ListExpiredCandidates scans for non-terminal cases whose expires_at has
// passed. Candidates feed the expiry sweep; DynamoDB TTL deletion lags by up
// to 48h, so the sweep cannot rely on it for the expired transition.
func (r *CaseRepo) ListExpiredCandidates(ctx context.Context, now time.Time, limit int32) ([]domain.VerificationCase, error) {
	out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(r.tableName),
		FilterExpression: aws.String("expires_at < :now AND #st IN (:created, :submitted, :resub)"),
		ExpressionAttributeNames: map[string]string{
			"#st": fieldStatus,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
			":created":   &types.AttributeValueMemberS{Value: domain.StatusCreated},
			":submitted": &types.AttributeValueMemberS{Value: domain.StatusSubmitted},
			":resub":     &types.AttributeValueMemberS{Value: domain.StatusResubmissionRequired},
		},
		Limit: aws.Int32(limit),
	})
	if err != nil {
		return nil, err
	}
	var cases []domain.VerificationCase
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &cases); err != nil {
		return nil, err
	}
	return cases, nil
}
