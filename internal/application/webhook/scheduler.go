package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/authbridge/verification-api/internal/domain"
)

// LocalScheduler retries in-process with time.AfterFunc. It backs deployments
// without a durable queue; pending retries are lost on process exit.
type LocalScheduler struct {
	deliver func(ctx context.Context, msg *domain.WebhookMessage) error
}

func NewLocalScheduler() *LocalScheduler { return &LocalScheduler{} }

// Bind points the scheduler at the dispatcher that will handle redeliveries.
// Must be called before any retry fires; the dispatcher needs the scheduler
// at construction, so binding happens in a second step.
func (s *LocalScheduler) Bind(d *Dispatcher) { s.deliver = d.Deliver }

func (s *LocalScheduler) ScheduleRetry(_ context.Context, msg *domain.WebhookMessage, delay time.Duration) error {
	time.AfterFunc(delay, func() {
		if s.deliver == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.deliver(ctx, msg); err != nil {
			slog.Warn("in-process retry bookkeeping failed", "case_id", msg.CaseID, "event", msg.EventType, "err", err)
		}
	})
	return nil
}
