package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/authbridge/verification-api/internal/domain"
	"github.com/authbridge/verification-api/internal/pkg/id"
	"github.com/authbridge/verification-api/internal/pkg/signature"
)

// retryDelays[n-1] is the delay scheduled after failed attempt n.
// Attempt 1 is immediate; 3 attempts total.
var retryDelays = []time.Duration{30 * time.Second, 300 * time.Second}

// ConfigStore reads per-client webhook configuration.
type ConfigStore interface {
	Get(ctx context.Context, clientID string) (*domain.ClientWebhookConfig, error)
}

// Ledger records every delivery attempt for the audit trail.
type Ledger interface {
	Append(ctx context.Context, entry *domain.WebhookDeliveryLog) error
}

// Scheduler is the durable delayed-message facility driving retries.
type Scheduler interface {
	ScheduleRetry(ctx context.Context, msg *domain.WebhookMessage, delay time.Duration) error
}

// Alerter notifies operators of permanent delivery failures. Optional.
type Alerter interface {
	PublishDeliveryFailure(ctx context.Context, caseID, clientID, eventType string) error
}

// Archiver stores attempt payload bytes for compliance replay. Optional.
type Archiver interface {
	StorePayload(ctx context.Context, caseID, eventType string, attempt int, payload []byte) (string, error)
}

// DispatcherDeps bundles the dispatcher's collaborators. Alerter and Archiver
// may be nil.
type DispatcherDeps struct {
	Configs    ConfigStore
	Ledger     Ledger
	Scheduler  Scheduler
	Alerter    Alerter
	Archiver   Archiver
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Dispatcher signs and delivers webhook payloads with bounded, audited retry.
// Dispatch is fire-and-forget for its caller; a delivery failure is recorded,
// rescheduled or alerted, never propagated.
type Dispatcher struct {
	configs   ConfigStore
	ledger    Ledger
	scheduler Scheduler
	alerter   Alerter
	archiver  Archiver
	client    *http.Client
	timeout   time.Duration
	nowFn     func() time.Time
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Dispatcher{
		configs:   deps.Configs,
		ledger:    deps.Ledger,
		scheduler: deps.Scheduler,
		alerter:   deps.Alerter,
		archiver:  deps.Archiver,
		client:    client,
		timeout:   timeout,
		nowFn:     time.Now,
	}
}

// eventPayload is the wire shape POSTed to client webhook endpoints.
type eventPayload struct {
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Dispatch builds the redacted payload for the event and starts the first
// delivery attempt in the background. Never blocks, never returns an error:
// the caller's transition must not depend on delivery.
func (d *Dispatcher) Dispatch(c *domain.VerificationCase, eventType string) {
	payload, err := d.buildPayload(c, eventType)
	if err != nil {
		slog.Error("build webhook payload", "case_id", c.CaseID, "event", eventType, "err", err)
		return
	}
	msg := &domain.WebhookMessage{
		CaseID:       c.CaseID,
		ClientID:     c.ClientID,
		EventType:    eventType,
		Payload:      payload,
		AttemptCount: 1,
	}
	go func() {
		// Detached from the request context: delivery outlives the caller.
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout+5*time.Second)
		defer cancel()
		if err := d.Deliver(ctx, msg); err != nil {
			slog.Warn("webhook delivery bookkeeping failed", "case_id", msg.CaseID, "event", msg.EventType, "err", err)
		}
	}()
}

// Deliver performs one delivery attempt for msg: POST, ledger entry, and
// either a scheduled retry or a permanent-failure record. It is the entry
// point for both first attempts and redelivered retry messages. The returned
// error covers bookkeeping failures only, so a queue consumer can leave the
// message for redelivery; the HTTP outcome itself is fully absorbed.
func (d *Dispatcher) Deliver(ctx context.Context, msg *domain.WebhookMessage) error {
	cfg, err := d.configs.Get(ctx, msg.ClientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Debug("no webhook config, skipping delivery", "client_id", msg.ClientID, "event", msg.EventType)
			return nil
		}
		return fmt.Errorf("load webhook config: %w", err)
	}
	if !cfg.WebhookEnabled || cfg.WebhookURL == "" || !cfg.Subscribed(msg.EventType) {
		slog.Debug("webhook not subscribed, skipping delivery",
			"client_id", msg.ClientID, "event", msg.EventType, "enabled", cfg.WebhookEnabled)
		return nil
	}

	statusCode, postErr := d.post(ctx, cfg, msg.Payload)
	now := d.nowFn().UTC()
	entry := &domain.WebhookDeliveryLog{
		CaseID:        msg.CaseID,
		LogID:         id.New(),
		ClientID:      msg.ClientID,
		EventType:     msg.EventType,
		WebhookURL:    cfg.WebhookURL,
		AttemptNumber: msg.AttemptCount,
		CreatedAt:     now,
	}
	if statusCode != 0 {
		entry.StatusCode = &statusCode
	}

	if postErr == nil {
		entry.Status = domain.DeliveryDelivered
		entry.DeliveredAt = &now
		d.archive(ctx, msg)
		if err := d.ledger.Append(ctx, entry); err != nil {
			return fmt.Errorf("record delivered attempt: %w", err)
		}
		slog.Info("webhook delivered", "case_id", msg.CaseID, "event", msg.EventType, "attempt", msg.AttemptCount)
		return nil
	}

	entry.Error = postErr.Error()
	entry.FailedAt = &now

	if msg.AttemptCount < domain.MaxDeliveryAttempts {
		entry.Status = domain.DeliveryRetrying
		next := &domain.WebhookMessage{
			CaseID:       msg.CaseID,
			ClientID:     msg.ClientID,
			EventType:    msg.EventType,
			Payload:      msg.Payload,
			AttemptCount: msg.AttemptCount + 1,
		}
		delay := retryDelays[msg.AttemptCount-1]
		if err := d.scheduler.ScheduleRetry(ctx, next, delay); err != nil {
			return fmt.Errorf("schedule retry: %w", err)
		}
		if err := d.ledger.Append(ctx, entry); err != nil {
			return fmt.Errorf("record failed attempt: %w", err)
		}
		slog.Warn("webhook attempt failed, retry scheduled",
			"case_id", msg.CaseID, "event", msg.EventType, "attempt", msg.AttemptCount, "delay", delay, "err", postErr)
		return nil
	}

	entry.Status = domain.DeliveryFailed
	if err := d.ledger.Append(ctx, entry); err != nil {
		return fmt.Errorf("record permanent failure: %w", err)
	}
	if d.alerter != nil {
		if err := d.alerter.PublishDeliveryFailure(ctx, msg.CaseID, msg.ClientID, msg.EventType); err != nil {
			slog.Warn("publish delivery-failure alert", "case_id", msg.CaseID, "err", err)
		}
	}
	slog.Error("webhook delivery failed permanently",
		"case_id", msg.CaseID, "event", msg.EventType, "attempts", msg.AttemptCount, "err", postErr)
	return nil
}

func (d *Dispatcher) post(ctx context.Context, cfg *domain.ClientWebhookConfig, payload []byte) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.Header, signature.Sign(cfg.WebhookSecret, payload))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (d *Dispatcher) archive(ctx context.Context, msg *domain.WebhookMessage) {
	if d.archiver == nil {
		return
	}
	if _, err := d.archiver.StorePayload(ctx, msg.CaseID, msg.EventType, msg.AttemptCount, msg.Payload); err != nil {
		slog.Warn("archive delivery payload", "case_id", msg.CaseID, "err", err)
	}
}

// buildPayload assembles the redacted event body. Only decision metadata and
// opaque references leave the system — never raw customer PII.
func (d *Dispatcher) buildPayload(c *domain.VerificationCase, eventType string) ([]byte, error) {
	data := map[string]interface{}{
		"verificationId": c.CaseID,
		"status":         c.Status,
	}
	if c.DocumentType != "" {
		data["documentType"] = c.DocumentType
	}
	if c.DecidedBy != "" {
		data["decidedBy"] = c.DecidedBy
	}
	if c.CompletedAt != nil {
		data["decidedAt"] = c.CompletedAt.UTC().Format(time.RFC3339)
	}
	if c.Reason != "" {
		data["reason"] = c.Reason
	}
	if c.Notes != "" {
		data["notes"] = c.Notes
	}
	return json.Marshal(eventPayload{
		Event:     eventType,
		Timestamp: d.nowFn().UTC().Format(time.RFC3339),
		Data:      data,
	})
}
