package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/authbridge/verification-api/internal/application/idempotency"
	"github.com/authbridge/verification-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockCaseStore struct{ mock.Mock }

func (m *mockCaseStore) Put(ctx context.Context, c *domain.VerificationCase) error {
	return m.Called(ctx, c).Error(0)
}
func (m *mockCaseStore) Get(ctx context.Context, caseID string) (*domain.VerificationCase, error) {
	args := m.Called(ctx, caseID)
	if c, _ := args.Get(0).(*domain.VerificationCase); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockCaseStore) UpdateVersioned(ctx context.Context, caseID string, expectedVersion int64, updates map[string]interface{}) error {
	return m.Called(ctx, caseID, expectedVersion, updates).Error(0)
}
func (m *mockCaseStore) ListByClient(ctx context.Context, clientID string, limit int32) ([]domain.VerificationCase, error) {
	args := m.Called(ctx, clientID, limit)
	cases, _ := args.Get(0).([]domain.VerificationCase)
	return cases, args.Error(1)
}
func (m *mockCaseStore) ListExpiredCandidates(ctx context.Context, now time.Time, limit int32) ([]domain.VerificationCase, error) {
	args := m.Called(ctx, now, limit)
	cases, _ := args.Get(0).([]domain.VerificationCase)
	return cases, args.Error(1)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []string
}

func (d *recordingDispatcher) Dispatch(_ *domain.VerificationCase, eventType string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, eventType)
}

func (d *recordingDispatcher) dispatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

// fakeIdemStore backs the guard in-memory.
type fakeIdemStore struct {
	mu   sync.Mutex
	recs map[string]*domain.IdempotencyRecord
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{recs: make(map[string]*domain.IdempotencyRecord)}
}

func (f *fakeIdemStore) PutIfAbsent(_ context.Context, rec *domain.IdempotencyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.recs[rec.Key]; ok {
		return domain.ErrConflict
	}
	f.recs[rec.Key] = rec
	return nil
}

func (f *fakeIdemStore) Get(_ context.Context, key string) (*domain.IdempotencyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recs[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

// --- helpers ---

func newTestService(cs CaseStore, idem idempotency.Store, d Dispatcher) Service {
	return NewService(ServiceDeps{
		Cases:      cs,
		Guard:      idempotency.NewGuard(idem, 24*time.Hour),
		Dispatcher: d,
		CaseTTL:    30 * 24 * time.Hour,
	})
}

func validCreate() CreateRequest {
	return CreateRequest{
		ClientID:       "c1",
		IdempotencyKey: "idem_abc",
		DocumentType:   "omang",
		CustomerRef:    "cust_ref_1",
	}
}

// --- Create ---

func TestCreate_NewCase(t *testing.T) {
	cs, d := &mockCaseStore{}, &recordingDispatcher{}
	cs.On("Put", mock.Anything, mock.MatchedBy(func(c *domain.VerificationCase) bool {
		return c.ClientID == "c1" && c.Status == domain.StatusCreated && c.Version == 1 &&
			c.CompletedAt == nil && c.ExpiresAt > time.Now().Unix()
	})).Return(nil)

	c, created, err := newTestService(cs, newFakeIdemStore(), d).Create(context.Background(), validCreate())

	require.NoError(t, err)
	assert.True(t, created)
	assert.Contains(t, c.CaseID, "ver_")
	assert.Equal(t, []string{domain.EventCreated}, d.dispatched())
}

func TestCreate_ReplaySameKeyReturnsExistingCase(t *testing.T) {
	cs, d := &mockCaseStore{}, &recordingDispatcher{}
	idem := newFakeIdemStore()
	svc := newTestService(cs, idem, d)

	var firstID string
	cs.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		firstID = args.Get(1).(*domain.VerificationCase).CaseID
	}).Return(nil).Once()

	first, created, err := svc.Create(context.Background(), validCreate())
	require.NoError(t, err)
	require.True(t, created)

	cs.On("Get", mock.Anything, firstID).Return(first, nil)

	// Replay with a different document type: still the original case, no new
	// case and no second created webhook.
	replay := validCreate()
	replay.DocumentType = "passport"
	second, created, err := svc.Create(context.Background(), replay)

	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, firstID, second.CaseID)
	assert.Equal(t, "omang", second.DocumentType)
	assert.Equal(t, []string{domain.EventCreated}, d.dispatched(), "exactly one created webhook")
	cs.AssertNumberOfCalls(t, "Put", 1)
}

func TestCreate_MissingIdempotencyKey_BadRequest(t *testing.T) {
	req := validCreate()
	req.IdempotencyKey = ""

	_, _, err := newTestService(&mockCaseStore{}, newFakeIdemStore(), &recordingDispatcher{}).Create(context.Background(), req)

	require.ErrorIs(t, err, domain.ErrBadRequest)
}

// --- Transition ---

func submittedCase() *domain.VerificationCase {
	return &domain.VerificationCase{
		CaseID:   "ver_1",
		ClientID: "c1",
		Status:   domain.StatusSubmitted,
		Version:  2,
	}
}

func TestTransition_Approved_SetsCompletedAtAndEmitsEvent(t *testing.T) {
	cs, d := &mockCaseStore{}, &recordingDispatcher{}
	cs.On("Get", mock.Anything, "ver_1").Return(submittedCase(), nil).Once()

	var captured map[string]interface{}
	cs.On("UpdateVersioned", mock.Anything, "ver_1", int64(2), mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(3).(map[string]interface{}) }).
		Return(nil)

	approved := submittedCase()
	approved.Status = domain.StatusApproved
	now := time.Now().UTC()
	approved.CompletedAt = &now
	approved.Version = 3
	cs.On("Get", mock.Anything, "ver_1").Return(approved, nil)

	c, err := newTestService(cs, newFakeIdemStore(), d).Transition(context.Background(), "ver_1", domain.StatusApproved, map[string]interface{}{"decided_by": "reviewer-1"})

	require.NoError(t, err)
	assert.NotNil(t, c.CompletedAt)
	assert.Equal(t, domain.StatusApproved, captured["status"])
	assert.Contains(t, captured, "completed_at")
	assert.Equal(t, "reviewer-1", captured["decided_by"])
	assert.Equal(t, []string{domain.EventApproved}, d.dispatched())
}

func TestTransition_Submitted_LeavesCompletedAtNull(t *testing.T) {
	cs, d := &mockCaseStore{}, &recordingDispatcher{}
	created := submittedCase()
	created.Status = domain.StatusCreated
	cs.On("Get", mock.Anything, "ver_1").Return(created, nil).Once()

	var captured map[string]interface{}
	cs.On("UpdateVersioned", mock.Anything, "ver_1", int64(2), mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(3).(map[string]interface{}) }).
		Return(nil)
	cs.On("Get", mock.Anything, "ver_1").Return(submittedCase(), nil)

	c, err := newTestService(cs, newFakeIdemStore(), d).Transition(context.Background(), "ver_1", domain.StatusSubmitted, nil)

	require.NoError(t, err)
	assert.Nil(t, c.CompletedAt)
	assert.NotContains(t, captured, "completed_at")
	assert.Equal(t, []string{domain.EventSubmitted}, d.dispatched())
}

func TestTransition_InvalidEdge_Rejected(t *testing.T) {
	cs, d := &mockCaseStore{}, &recordingDispatcher{}
	created := submittedCase()
	created.Status = domain.StatusCreated
	cs.On("Get", mock.Anything, "ver_1").Return(created, nil)

	_, err := newTestService(cs, newFakeIdemStore(), d).Transition(context.Background(), "ver_1", domain.StatusApproved, nil)

	require.ErrorIs(t, err, domain.ErrBadRequest)
	cs.AssertNotCalled(t, "UpdateVersioned", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, d.dispatched())
}

func TestTransition_TerminalCase_Rejected(t *testing.T) {
	cs, d := &mockCaseStore{}, &recordingDispatcher{}
	done := submittedCase()
	done.Status = domain.StatusApproved
	cs.On("Get", mock.Anything, "ver_1").Return(done, nil)

	_, err := newTestService(cs, newFakeIdemStore(), d).Transition(context.Background(), "ver_1", domain.StatusExpired, nil)

	require.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestTransition_NotFound(t *testing.T) {
	cs := &mockCaseStore{}
	cs.On("Get", mock.Anything, "ver_missing").Return(nil, domain.ErrNotFound)

	_, err := newTestService(cs, newFakeIdemStore(), &recordingDispatcher{}).Transition(context.Background(), "ver_missing", domain.StatusSubmitted, nil)

	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransition_VersionConflict_RetriesAndSucceeds(t *testing.T) {
	cs, d := &mockCaseStore{}, &recordingDispatcher{}
	cs.On("Get", mock.Anything, "ver_1").Return(submittedCase(), nil).Once()
	cs.On("UpdateVersioned", mock.Anything, "ver_1", int64(2), mock.Anything).Return(domain.ErrConflict).Once()

	contended := submittedCase()
	contended.Version = 3
	cs.On("Get", mock.Anything, "ver_1").Return(contended, nil).Once()
	cs.On("UpdateVersioned", mock.Anything, "ver_1", int64(3), mock.Anything).Return(nil).Once()

	final := submittedCase()
	final.Status = domain.StatusRejected
	final.Version = 4
	cs.On("Get", mock.Anything, "ver_1").Return(final, nil)

	c, err := newTestService(cs, newFakeIdemStore(), d).Transition(context.Background(), "ver_1", domain.StatusRejected, nil)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, c.Status)
	assert.Equal(t, []string{domain.EventRejected}, d.dispatched())
}

// --- Get / List ---

func TestGet_OtherClientsCase_Forbidden(t *testing.T) {
	cs := &mockCaseStore{}
	cs.On("Get", mock.Anything, "ver_1").Return(submittedCase(), nil)

	_, err := newTestService(cs, newFakeIdemStore(), &recordingDispatcher{}).Get(context.Background(), "c2", "ver_1")

	require.ErrorIs(t, err, domain.ErrForbidden)
}

// --- Expiry sweep ---

func TestExpireStale_TransitionsCandidates(t *testing.T) {
	cs, d := &mockCaseStore{}, &recordingDispatcher{}
	stale := submittedCase()
	cs.On("ListExpiredCandidates", mock.Anything, mock.Anything, int32(100)).
		Return([]domain.VerificationCase{*stale}, nil)
	cs.On("Get", mock.Anything, "ver_1").Return(stale, nil).Once()
	cs.On("UpdateVersioned", mock.Anything, "ver_1", int64(2), mock.Anything).Return(nil)

	expired := submittedCase()
	expired.Status = domain.StatusExpired
	cs.On("Get", mock.Anything, "ver_1").Return(expired, nil)

	n, err := newTestService(cs, newFakeIdemStore(), d).ExpireStale(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{domain.EventExpired}, d.dispatched())
}
