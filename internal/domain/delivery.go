package domain

import "time"

// Delivery log statuses.
const (
	DeliveryDelivered = "delivered"
	DeliveryRetrying  = "retrying"
	DeliveryFailed    = "failed"
)

// MaxDeliveryAttempts bounds webhook retries: attempt 1 immediate,
// attempt 2 after 30s, attempt 3 after 300s.
const MaxDeliveryAttempts = 3

// WebhookDeliveryLog is one append-only audit entry per delivery attempt.
// PK: case_id, SK: log_id (ULID, so entries sort by time).
type WebhookDeliveryLog struct {
	CaseID        string     `json:"case_id" dynamodbav:"case_id"`
	LogID         string     `json:"id" dynamodbav:"log_id"`
	ClientID      string     `json:"client_id" dynamodbav:"client_id"`
	EventType     string     `json:"event_type" dynamodbav:"event_type"`
	WebhookURL    string     `json:"webhook_url" dynamodbav:"webhook_url"`
	AttemptNumber int        `json:"attempt_number" dynamodbav:"attempt_number"`
	Status        string     `json:"status" dynamodbav:"status"`
	StatusCode    *int       `json:"status_code,omitempty" dynamodbav:"status_code,omitempty"`
	Error         string     `json:"error,omitempty" dynamodbav:"error"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty" dynamodbav:"delivered_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty" dynamodbav:"failed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at" dynamodbav:"created_at"`
}

// WebhookMessage is the unit of work carried through the delayed retry queue.
// Payload holds the exact signed bytes of the original attempt so the
// signature stays deterministic across redeliveries.
type WebhookMessage struct {
	CaseID       string `json:"case_id"`
	ClientID     string `json:"client_id"`
	EventType    string `json:"event_type"`
	Payload      []byte `json:"payload"`
	AttemptCount int    `json:"attempt_count"`
}
