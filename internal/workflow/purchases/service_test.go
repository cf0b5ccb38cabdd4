package purchases

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
	mu               sync.Mutex
	purchases        map[uuid.UUID]Purchase
	failMarkReceived int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{purchases: make(map[uuid.UUID]Purchase)}
}

func (m *memoryRepo) Insert(_ context.Context, purchase Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases[purchase.ID] = purchase
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id uuid.UUID) (Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	purchase, ok := m.purchases[id]
	if !ok {
		return Purchase{}, fmt.Errorf("%w: purchase %s", shared.ErrNotFound, id)
	}
	return purchase, nil
}

func (m *memoryRepo) MarkReceived(_ context.Context, id uuid.UUID, actorID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMarkReceived > 0 {
		m.failMarkReceived--
		return fmt.Errorf("purchase %s: connection reset during update", id)
	}
	purchase, ok := m.purchases[id]
	if !ok || purchase.Status != StatusDraft {
		return fmt.Errorf("%w: purchase %s is not in draft", shared.ErrInvalidStateTransition, id)
	}
	purchase.Status = StatusReceived
	purchase.ReceivedBy = actorID
	purchase.ReceivedAt = at
	m.purchases[id] = purchase
	return nil
}

func (m *memoryRepo) UpdatePayment(_ context.Context, id uuid.UUID, paid decimal.Decimal, status PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	purchase, ok := m.purchases[id]
	if !ok {
		return fmt.Errorf("%w: purchase %s", shared.ErrNotFound, id)
	}
	purchase.PaidAmount = paid
	purchase.PaymentStatus = status
	m.purchases[id] = purchase
	return nil
}

func (m *memoryRepo) List(_ context.Context, filter Filter) ([]Purchase, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Purchase
	for _, purchase := range m.purchases {
		if filter.Status != "" && purchase.Status != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && purchase.PaymentStatus != filter.PaymentStatus {
			continue
		}
		out = append(out, purchase)
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
	return make([]ledger.MovementRecord, len(drafts)), nil
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

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func validInput() CreateInput {
	return CreateInput{
		SupplierID: uuid.New(),
		LocationID: uuid.New(),
		CreatedBy:  uuid.New(),
		Lines: []LineInput{
			{StockID: uuid.New(), VariantID: uuid.New(), Quantity: dec("10"), UnitCost: dec("100")},
			{StockID: uuid.New(), VariantID: uuid.New(), Quantity: dec("3"), UnitCost: dec("25.50")},
		},
	}
}

func TestCreateComputesTotalCost(t *testing.T) {
	svc := NewService(newMemoryRepo(), &fakeLedger{}, newFakeIdempotency(), nil, nil)
	ctx := context.Background()

	purchase, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	require.Equal(t, StatusDraft, purchase.Status)
	require.Equal(t, PaymentUnpaid, purchase.PaymentStatus)
	// 10*100 + 3*25.50 = 1076.50
	require.True(t, purchase.TotalCost.Equal(dec("1076.50")), "got %s", purchase.TotalCost)
	require.True(t, purchase.PaidAmount.IsZero())
	require.True(t, purchase.UnpaidAmount().Equal(dec("1076.50")))
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), &fakeLedger{}, newFakeIdempotency(), nil, nil)
	ctx := context.Background()

	cases := map[string]func(*CreateInput){
		"missing supplier": func(in *CreateInput) { in.SupplierID = uuid.Nil },
		"missing location": func(in *CreateInput) { in.LocationID = uuid.Nil },
		"no lines":         func(in *CreateInput) { in.Lines = nil },
		"zero quantity":    func(in *CreateInput) { in.Lines[0].Quantity = decimal.Zero },
		"negative cost":    func(in *CreateInput) { in.Lines[1].UnitCost = dec("-1") },
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

func TestConfirmDeliveryEmitsIntakePerLine(t *testing.T) {
	emitter := &fakeLedger{}
	svc := NewService(newMemoryRepo(), emitter, newFakeIdempotency(), nil, nil)
	ctx := context.Background()

	input := validInput()
	purchase, err := svc.Create(ctx, input)
	require.NoError(t, err)

	actor := uuid.New()
	received, err := svc.ConfirmDelivery(ctx, purchase.ID, actor)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, received.Status)
	require.Equal(t, actor, received.ReceivedBy)

	require.Len(t, emitter.drafts, 1)
	drafts := emitter.drafts[0]
	require.Len(t, drafts, 2)
	for i, draft := range drafts {
		require.Equal(t, ledger.MovementIntake, draft.Type)
		require.Equal(t, input.LocationID, draft.LocationID)
		require.Equal(t, ledger.RefIntakePurchase, draft.RefKind)
		require.Equal(t, purchase.ID, draft.RefID)
		require.True(t, draft.Quantity.Equal(input.Lines[i].Quantity))
	}
	require.True(t, drafts[0].Value.Equal(dec("1000")))
	require.True(t, drafts[1].Value.Equal(dec("76.50")))
}

func TestConfirmDeliveryIsIdempotent(t *testing.T) {
	emitter := &fakeLedger{}
	svc := NewService(newMemoryRepo(), emitter, newFakeIdempotency(), nil, nil)
	ctx := context.Background()

	purchase, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = svc.ConfirmDelivery(ctx, purchase.ID, uuid.New())
	require.NoError(t, err)

	// Re-confirming a received purchase is a no-op, not an error.
	again, err := svc.ConfirmDelivery(ctx, purchase.ID, uuid.New())
	require.NoError(t, err)
	require.Equal(t, StatusReceived, again.Status)
	require.Len(t, emitter.drafts, 1)
}

func TestConfirmDeliveryFailureLeavesDraft(t *testing.T) {
	emitter := &fakeLedger{err: fmt.Errorf("%w: append failed", shared.ErrConflict)}
	svc := NewService(newMemoryRepo(), emitter, newFakeIdempotency(), nil, nil)
	ctx := context.Background()

	purchase, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = svc.ConfirmDelivery(ctx, purchase.ID, uuid.New())
	require.ErrorIs(t, err, shared.ErrConflict)

	current, err := svc.Get(ctx, purchase.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, current.Status)

	// The idempotency claim is released so the retry emits.
	emitter.err = nil
	received, err := svc.ConfirmDelivery(ctx, purchase.ID, uuid.New())
	require.NoError(t, err)
	require.Equal(t, StatusReceived, received.Status)
	require.Len(t, emitter.drafts, 1)
}

func TestConfirmDeliveryStatusFlipFailureEmitsNothing(t *testing.T) {
	repo := newMemoryRepo()
	emitter := &fakeLedger{}
	svc := NewService(repo, emitter, newFakeIdempotency(), nil, nil)
	ctx := context.Background()

	purchase, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	// The RECEIVED flip shares the append transaction, so its failure
	// rolls the intake entries back with it.
	repo.failMarkReceived = 1
	_, err = svc.ConfirmDelivery(ctx, purchase.ID, uuid.New())
	require.Error(t, err)
	require.Empty(t, emitter.drafts)

	current, err := svc.Get(ctx, purchase.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, current.Status)

	// The claim was released, so the retry emits exactly once.
	received, err := svc.ConfirmDelivery(ctx, purchase.ID, uuid.New())
	require.NoError(t, err)
	require.Equal(t, StatusReceived, received.Status)
	require.Len(t, emitter.drafts, 1)
}

func TestPaymentProgression(t *testing.T) {
	emitter := &fakeLedger{}
	svc := NewService(newMemoryRepo(), emitter, newFakeIdempotency(), nil, nil)
	ctx := context.Background()

	purchase, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	actor := uuid.New()

	partial, err := svc.RecordPayment(ctx, purchase.ID, dec("500"), actor)
	require.NoError(t, err)
	require.Equal(t, PaymentPartiallyPaid, partial.PaymentStatus)
	require.True(t, partial.PaidAmount.Equal(dec("500")))
	require.True(t, partial.UnpaidAmount().Equal(dec("576.50")))

	full, err := svc.RecordPayment(ctx, purchase.ID, dec("576.50"), actor)
	require.NoError(t, err)
	require.Equal(t, PaymentPaid, full.PaymentStatus)
	require.True(t, full.UnpaidAmount().IsZero())

	// Payments never touch the ledger.
	require.Empty(t, emitter.drafts)
}

func TestPaymentValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), &fakeLedger{}, newFakeIdempotency(), nil, nil)
	ctx := context.Background()

	purchase, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	actor := uuid.New()

	_, err = svc.RecordPayment(ctx, purchase.ID, decimal.Zero, actor)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.RecordPayment(ctx, purchase.ID, dec("-10"), actor)
	require.ErrorIs(t, err, shared.ErrValidation)

	// Overpayment is rejected and the paid amount stays put.
	_, err = svc.RecordPayment(ctx, purchase.ID, dec("2000"), actor)
	require.ErrorIs(t, err, shared.ErrValidation)
	current, err := svc.Get(ctx, purchase.ID)
	require.NoError(t, err)
	require.True(t, current.PaidAmount.IsZero())
	require.Equal(t, PaymentUnpaid, current.PaymentStatus)
}
