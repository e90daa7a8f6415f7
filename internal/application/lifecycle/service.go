package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/authbridge/verification-api/internal/application/idempotency"
	"github.com/authbridge/verification-api/internal/domain"
	"github.com/authbridge/verification-api/internal/pkg/id"
	"github.com/authbridge/verification-api/internal/pkg/validate"
)

// transitionRetries bounds the optimistic-concurrency retry loop on a
// version-conditioned case write.
const transitionRetries = 3

// CaseStore is the minimal interface the service requires from the case table.
type CaseStore interface {
	Put(ctx context.Context, c *domain.VerificationCase) error
	Get(ctx context.Context, caseID string) (*domain.VerificationCase, error)
	UpdateVersioned(ctx context.Context, caseID string, expectedVersion int64, updates map[string]interface{}) error
	ListByClient(ctx context.Context, clientID string, limit int32) ([]domain.VerificationCase, error)
	ListExpiredCandidates(ctx context.Context, now time.Time, limit int32) ([]domain.VerificationCase, error)
}

// Dispatcher delivers webhook events out-of-band. Implementations must never
// block the caller and must never surface delivery failures here.
type Dispatcher interface {
	Dispatch(c *domain.VerificationCase, eventType string)
}

// CreateRequest is the inbound shape for opening a new verification case.
type CreateRequest struct {
	ClientID       string `json:"-" validate:"required"`
	IdempotencyKey string `json:"idempotency_key" validate:"required,max=255"`
	DocumentType   string `json:"document_type" validate:"required"`
	CustomerRef    string `json:"customer_ref" validate:"required"`
}

// Service owns the case lifecycle: idempotent creation, status transitions,
// and the time-driven expiry sweep.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (c *domain.VerificationCase, created bool, err error)
	Get(ctx context.Context, clientID, caseID string) (*domain.VerificationCase, error)
	List(ctx context.Context, clientID string, limit int32) ([]domain.VerificationCase, error)
	Transition(ctx context.Context, caseID, newStatus string, patch map[string]interface{}) (*domain.VerificationCase, error)
	ExpireStale(ctx context.Context) (int, error)
}

// ServiceDeps bundles the service's collaborators.
type ServiceDeps struct {
	Cases      CaseStore
	Guard      *idempotency.Guard
	Dispatcher Dispatcher
	CaseTTL    time.Duration
}

type service struct {
	cases      CaseStore
	guard      *idempotency.Guard
	dispatcher Dispatcher
	caseTTL    time.Duration
	nowFn      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	return &service{
		cases:      deps.Cases,
		guard:      deps.Guard,
		dispatcher: deps.Dispatcher,
		caseTTL:    deps.CaseTTL,
		nowFn:      time.Now,
	}
}

// Create opens a new case, or returns the existing one when the
// (clientId, idempotencyKey) pair was already reserved. A replay never emits
// a second created webhook.
func (s *service) Create(ctx context.Context, req CreateRequest) (*domain.VerificationCase, bool, error) {
	if err := validate.Struct(req); err != nil {
		return nil, false, fmt.Errorf("%s: %w", err, domain.ErrBadRequest)
	}

	now := s.nowFn().UTC()
	c := &domain.VerificationCase{
		CaseID:       id.NewCase(),
		ClientID:     req.ClientID,
		Status:       domain.StatusCreated,
		DocumentType: req.DocumentType,
		CustomerRef:  req.CustomerRef,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(s.caseTTL).Unix(),
	}

	out, err := s.guard.Reserve(ctx, req.ClientID, req.IdempotencyKey, c.CaseID)
	if err != nil {
		return nil, false, err
	}
	if !out.Created {
		existing, err := s.cases.Get(ctx, out.CaseID)
		if err != nil {
			return nil, false, fmt.Errorf("load case for replayed idempotency key: %w", err)
		}
		return existing, false, nil
	}

	if err := s.cases.Put(ctx, c); err != nil {
		return nil, false, fmt.Errorf("store case: %w", err)
	}
	s.dispatcher.Dispatch(c, domain.EventCreated)
	return c, true, nil
}

func (s *service) Get(ctx context.Context, clientID, caseID string) (*domain.VerificationCase, error) {
	c, err := s.cases.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.ClientID != clientID {
		return nil, fmt.Errorf("case %s belongs to another client: %w", caseID, domain.ErrForbidden)
	}
	return c, nil
}

func (s *service) List(ctx context.Context, clientID string, limit int32) ([]domain.VerificationCase, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.cases.ListByClient(ctx, clientID, limit)
}

// Transition moves the case to newStatus, merging patch fields into the
// record. Writes are conditioned on the version read; a concurrent transition
// triggers a re-read and retry rather than a lost update. On a status with an
// event mapping the dispatcher is invoked without waiting — delivery failure
// can never fail the transition.
func (s *service) Transition(ctx context.Context, caseID, newStatus string, patch map[string]interface{}) (*domain.VerificationCase, error) {
	var lastErr error
	for attempt := 0; attempt < transitionRetries; attempt++ {
		c, err := s.cases.Get(ctx, caseID)
		if err != nil {
			return nil, err
		}
		if !domain.CanTransition(c.Status, newStatus) {
			return nil, fmt.Errorf("cannot transition case from %s to %s: %w", c.Status, newStatus, domain.ErrBadRequest)
		}

		now := s.nowFn().UTC()
		updates := make(map[string]interface{}, len(patch)+3)
		for k, v := range patch {
			updates[k] = v
		}
		updates["status"] = newStatus
		updates["updated_at"] = now
		if domain.IsTerminal(newStatus) {
			updates["completed_at"] = now
		}

		if err := s.cases.UpdateVersioned(ctx, caseID, c.Version, updates); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}

		updated, err := s.cases.Get(ctx, caseID)
		if err != nil {
			return nil, err
		}
		if event := domain.EventForStatus(newStatus); event != "" {
			s.dispatcher.Dispatch(updated, event)
		}
		return updated, nil
	}
	return nil, fmt.Errorf("transition contended after %d attempts: %w", transitionRetries, lastErr)
}

// ExpireStale sweeps non-terminal cases past their deadline into expired.
// Returns the number of cases transitioned.
func (s *service) ExpireStale(ctx context.Context) (int, error) {
	candidates, err := s.cases.ListExpiredCandidates(ctx, s.nowFn().UTC(), 100)
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range candidates {
		if _, err := s.Transition(ctx, candidates[i].CaseID, domain.StatusExpired, nil); err != nil {
			// A concurrent decision may have beaten the sweep; skip and move on.
			slog.Warn("expiry sweep transition failed", "case_id", candidates[i].CaseID, "err", err)
			continue
		}
		expired++
	}
	return expired, nil
}

// StartExpirySweeper runs ExpireStale on svc every tick until ctx is cancelled.
func StartExpirySweeper(ctx context.Context, svc Service, tick time.Duration) {
	go func() {
		t := time.NewTicker(tick)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n, err := svc.ExpireStale(ctx); err != nil {
					slog.Warn("expiry sweep failed", "err", err)
				} else if n > 0 {
					slog.Info("expiry sweep", "expired", n)
				}
			}
		}
	}()
}
