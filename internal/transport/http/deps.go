package http

import (
	"context"

	"github.com/authbridge/verification-api/internal/infrastructure/dynamo"
	s3infra "github.com/authbridge/verification-api/internal/infrastructure/s3"
	"github.com/authbridge/verification-api/internal/infrastructure/sns"
	"github.com/authbridge/verification-api/internal/infrastructure/sqs"
	"github.com/authbridge/verification-api/internal/transport/http/handler"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	CaseRepo          *dynamo.CaseRepo
	IdempotencyRepo   *dynamo.IdempotencyRepo
	DeliveryLogRepo   *dynamo.DeliveryLogRepo
	RateLimitRepo     *dynamo.RateLimitRepo
	ClientWebhookRepo *dynamo.ClientWebhookRepo

	RetryQueue *sqs.Queue         // optional, in-process retry fallback when nil
	Alerter    sns.AlertPublisher // optional
	Archiver   *s3infra.Archive   // optional

	Authorizer handler.Authorizer // optional, allow-all when nil
}

// allowAllAuthorizer is the default policy when no external oracle is wired.
type allowAllAuthorizer struct{}

func (allowAllAuthorizer) Authorize(context.Context, string, string, string) (bool, error) {
	return true, nil
}
