package transfers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-stock/internal/ledger"
	"github.com/meridian-pos/meridian-stock/internal/shared"
)

type memoryRepo struct {
	mu                sync.Mutex
	transfers         map[uuid.UUID]Transfer
	failStatusUpdates int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{transfers: make(map[uuid.UUID]Transfer)}
}

func (m *memoryRepo) Insert(_ context.Context, transfer Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[transfer.ID] = transfer
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id uuid.UUID) (Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	transfer, ok := m.transfers[id]
	if !ok {
		return Transfer{}, fmt.Errorf("%w: transfer %s", shared.ErrNotFound, id)
	}
	return transfer, nil
}

func (m *memoryRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status, actorID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStatusUpdates > 0 {
		m.failStatusUpdates--
		return fmt.Errorf("transfer %s: connection reset during update", id)
	}
	transfer, ok := m.transfers[id]
	if !ok || transfer.Status != from {
		return fmt.Errorf("%w: transfer %s left status %s", shared.ErrInvalidStateTransition, id, from)
	}
	transfer.Status = to
	if to == StatusApproved {
		transfer.ApprovedBy = actorID
		transfer.ApprovedAt = at
	}
	m.transfers[id] = transfer
	return nil
}

func (m *memoryRepo) List(_ context.Context, filter Filter) ([]Transfer, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transfer
	for _, transfer := range m.transfers {
		if filter.Status != "" && transfer.Status != filter.Status {
			continue
		}
		out = append(out, transfer)
	}
	return out, len(out), nil
}

type fakeLedger struct {
	mu     sync.Mutex
	drafts [][]ledger.Draft
	err    error
}

// AppendAllThen mirrors the ledger's transactional contract: when the
// post hook fails, the whole batch rolls back and nothing is recorded.
func (f *fakeLedger) AppendAllThen(ctx context.Context, drafts []ledger.Draft, post func(context.Context) error) ([]ledger.MovementRecord, error) {
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if post != nil {
		if err := post(ctx); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, drafts)
	records := make([]ledger.MovementRecord, len(drafts))
	return records, nil
}

func (f *fakeLedger) appended() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.drafts)
}

type fakeIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{keys: make(map[string]struct{})}
}

func (f *fakeIdempotency) CheckAndInsert(_ context.Context, key string, _ shared.WorkflowModule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = struct{}{}
	return nil
}

func (f *fakeIdempotency) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
	return nil
}

func newTestService(repo *memoryRepo, emitter *fakeLedger) *Service {
	return NewService(repo, emitter, nil, newFakeIdempotency(), nil, nil)
}

func validInput() CreateInput {
	return CreateInput{
		FromLocationID: uuid.New(),
		ToLocationID:   uuid.New(),
		StockID:        uuid.New(),
		VariantID:      uuid.New(),
		Quantity:       decimal.RequireFromString("5"),
		Value:          decimal.RequireFromString("500"),
		RequestedBy:    uuid.New(),
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &fakeLedger{})
	ctx := context.Background()

	cases := map[string]func(*CreateInput){
		"same locations":    func(in *CreateInput) { in.ToLocationID = in.FromLocationID },
		"missing locations": func(in *CreateInput) { in.FromLocationID = uuid.Nil },
		"missing variant":   func(in *CreateInput) { in.VariantID = uuid.Nil },
		"zero quantity":     func(in *CreateInput) { in.Quantity = decimal.Zero },
		"negative quantity": func(in *CreateInput) { in.Quantity = decimal.RequireFromString("-1") },
		"negative value":    func(in *CreateInput) { in.Value = decimal.RequireFromString("-1") },
		"missing requester": func(in *CreateInput) { in.RequestedBy = uuid.Nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			input := validInput()
			mutate(&input)
			_, err := svc.Create(ctx, input)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestApproveEmitsTwoLegs(t *testing.T) {
	repo := newMemoryRepo()
	emitter := &fakeLedger{}
	svc := newTestService(repo, emitter)
	ctx := context.Background()

	transfer, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	require.Equal(t, StatusPending, transfer.Status)

	approver := uuid.New()
	approved, err := svc.Approve(ctx, transfer.ID, approver)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, approver, approved.ApprovedBy)
	require.False(t, approved.ApprovedAt.IsZero())

	require.Equal(t, 1, emitter.appended())
	legs := emitter.drafts[0]
	require.Len(t, legs, 2)
	require.Equal(t, ledger.MovementTransferOut, legs[0].Type)
	require.Equal(t, ledger.MovementTransferIn, legs[1].Type)
	require.Equal(t, transfer.FromLocationID, legs[0].LocationID)
	require.Equal(t, transfer.ToLocationID, legs[1].LocationID)
	require.True(t, legs[0].Quantity.Equal(transfer.Quantity.Neg()))
	require.True(t, legs[1].Quantity.Equal(transfer.Quantity))
	require.True(t, legs[0].Value.Add(legs[1].Value).IsZero())
	require.Equal(t, ledger.RefTransfer, legs[0].RefKind)
	require.Equal(t, transfer.ID, legs[0].RefID)
}

func TestApproveTwiceFails(t *testing.T) {
	repo := newMemoryRepo()
	emitter := &fakeLedger{}
	svc := newTestService(repo, emitter)
	ctx := context.Background()

	transfer, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = svc.Approve(ctx, transfer.ID, uuid.New())
	require.NoError(t, err)

	_, err = svc.Approve(ctx, transfer.ID, uuid.New())
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)
	require.Equal(t, 1, emitter.appended())
}

func TestApproveAfterCancelFails(t *testing.T) {
	repo := newMemoryRepo()
	emitter := &fakeLedger{}
	svc := newTestService(repo, emitter)
	ctx := context.Background()

	transfer, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, transfer.ID, transfer.RequestedBy)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	_, err = svc.Approve(ctx, transfer.ID, uuid.New())
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)
	require.Equal(t, 0, emitter.appended())
}

func TestCancelApprovedFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &fakeLedger{})
	ctx := context.Background()

	transfer, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	_, err = svc.Approve(ctx, transfer.ID, uuid.New())
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, transfer.ID, transfer.RequestedBy)
	require.ErrorIs(t, err, shared.ErrInvalidStateTransition)
}

func TestInsufficientStockLeavesPending(t *testing.T) {
	repo := newMemoryRepo()
	emitter := &fakeLedger{err: fmt.Errorf("%w: location short", shared.ErrInsufficientStock)}
	idem := newFakeIdempotency()
	svc := NewService(repo, emitter, nil, idem, nil, nil)
	ctx := context.Background()

	transfer, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = svc.Approve(ctx, transfer.ID, uuid.New())
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	current, err := svc.Get(ctx, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, current.Status)

	// The claim is released on failure so a retry can succeed.
	emitter.err = nil
	approved, err := svc.Approve(ctx, transfer.ID, uuid.New())
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
}

func TestApproveStatusFlipFailureLeavesPending(t *testing.T) {
	repo := newMemoryRepo()
	emitter := &fakeLedger{}
	svc := newTestService(repo, emitter)
	ctx := context.Background()

	transfer, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	// The status flip shares the append transaction, so when it fails
	// the legs roll back with it and nothing is emitted.
	repo.failStatusUpdates = 1
	_, err = svc.Approve(ctx, transfer.ID, uuid.New())
	require.Error(t, err)
	require.Equal(t, 0, emitter.appended())

	current, err := svc.Get(ctx, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, current.Status)

	// The claim was released, so a clean retry approves and emits once.
	approved, err := svc.Approve(ctx, transfer.ID, uuid.New())
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, 1, emitter.appended())
}

func TestCancelAfterFailedApproveStrandsNoStock(t *testing.T) {
	repo := newMemoryRepo()
	emitter := &fakeLedger{}
	svc := newTestService(repo, emitter)
	ctx := context.Background()

	transfer, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	repo.failStatusUpdates = 1
	_, err = svc.Approve(ctx, transfer.ID, uuid.New())
	require.Error(t, err)

	// Cancelling the still-PENDING transfer must not leave moved stock
	// behind: the failed approval emitted nothing.
	cancelled, err := svc.Cancel(ctx, transfer.ID, transfer.RequestedBy)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, 0, emitter.appended())
}

func TestApproverMustDifferFromRequester(t *testing.T) {
	repo := newMemoryRepo()
	emitter := &fakeLedger{}
	svc := newTestService(repo, emitter)
	ctx := context.Background()

	transfer, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = svc.Approve(ctx, transfer.ID, transfer.RequestedBy)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, 0, emitter.appended())

	current, err := svc.Get(ctx, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, current.Status)
}
