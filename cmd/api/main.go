package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/authbridge/verification-api/internal/application/lifecycle"
	"github.com/authbridge/verification-api/internal/config"
	"github.com/authbridge/verification-api/internal/infrastructure/dynamo"
	s3infra "github.com/authbridge/verification-api/internal/infrastructure/s3"
	"github.com/authbridge/verification-api/internal/infrastructure/sns"
	"github.com/authbridge/verification-api/internal/infrastructure/sqs"
	transporthttp "github.com/authbridge/verification-api/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// SQS retry queue (optional — in-process retries if absent).
	var retryQueue *sqs.Queue
	if q, err := sqs.NewQueue(cfg); err == nil {
		retryQueue = q
	} else {
		log.Printf("WARN: retry queue not available, using in-process retries: %v", err)
	}

	// SNS ops alerts (optional).
	var alerter sns.AlertPublisher
	if p, err := sns.NewPublisher(cfg); err == nil {
		alerter = p
	} else {
		log.Printf("WARN: alert publisher not available: %v", err)
	}

	// S3 payload archive (optional).
	var archiver *s3infra.Archive
	if cfg.ArchiveBucketName != "" {
		archiver = s3infra.NewArchive(s3infra.NewClient(cfg), cfg.ArchiveBucketName)
	} else {
		log.Println("WARN: no archive bucket configured, delivery payloads are not archived")
	}

	deps := &transporthttp.Deps{
		CaseRepo:          dynamo.NewCaseRepo(dynamoClient, cfg.DynamoTables.Cases),
		IdempotencyRepo:   dynamo.NewIdempotencyRepo(dynamoClient, cfg.DynamoTables.IdempotencyKeys),
		DeliveryLogRepo:   dynamo.NewDeliveryLogRepo(dynamoClient, cfg.DynamoTables.DeliveryLogs),
		RateLimitRepo:     dynamo.NewRateLimitRepo(dynamoClient, cfg.DynamoTables.RateLimits),
		ClientWebhookRepo: dynamo.NewClientWebhookRepo(dynamoClient, cfg.DynamoTables.ClientWebhooks),
		RetryQueue:        retryQueue,
		Alerter:           alerter,
		Archiver:          archiver,
	}

	router, app := transporthttp.NewRouter(cfg, deps)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	// Retry worker: redelivers queued webhook messages after their delay.
	if retryQueue != nil {
		go retryQueue.Consume(workerCtx, app.Dispatcher.Deliver)
	}

	// Expiry sweeper: moves stale non-terminal cases to expired.
	lifecycle.StartExpirySweeper(workerCtx, app.Service, cfg.ExpirySweepTick)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stopWorkers()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
