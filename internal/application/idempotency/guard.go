package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/authbridge/verification-api/internal/domain"
)

// Store is the minimal interface the guard requires from the reservation table.
type Store interface {
	PutIfAbsent(ctx context.Context, rec *domain.IdempotencyRecord) error
	Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
}

// Outcome reports whether Reserve created a new binding or found an existing one.
type Outcome struct {
	Created bool
	CaseID  string
}

// Guard reserves (clientId, idempotencyKey) pairs exactly once. Correctness
// under concurrent stateless workers rests entirely on the store's
// conditional put: two racing reservations on the same key have exactly one
// winner, and the loser reads back the winner's case id.
type Guard struct {
	store Store
	ttl   time.Duration
	nowFn func() time.Time
}

func NewGuard(store Store, ttl time.Duration) *Guard {
	return &Guard{store: store, ttl: ttl, nowFn: time.Now}
}

// Reserve binds the pair to caseID, or returns the previously bound case id.
// The reservation expires via TTL; until then the binding is immutable.
func (g *Guard) Reserve(ctx context.Context, clientID, idempotencyKey, caseID string) (*Outcome, error) {
	key := domain.IdempotencyStorageKey(clientID, idempotencyKey)
	now := g.nowFn().UTC()
	rec := &domain.IdempotencyRecord{
		Key:       key,
		ClientID:  clientID,
		CaseID:    caseID,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(g.ttl).Unix(),
	}

	err := g.store.PutIfAbsent(ctx, rec)
	if err == nil {
		return &Outcome{Created: true, CaseID: caseID}, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}

	// Lost the write race. The winner's record must exist; read it back and
	// reuse its case id so both callers converge on the same case.
	existing, getErr := g.store.Get(ctx, key)
	if getErr != nil {
		return nil, fmt.Errorf("read back idempotency key after conflict: %w", getErr)
	}
	return &Outcome{Created: false, CaseID: existing.CaseID}, nil
}
