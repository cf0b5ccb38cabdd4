package modifications

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-stock/internal/ledger"
	"github.com/meridian-pos/meridian-stock/internal/shared"
)

type memoryRepo struct {
	mu            sync.Mutex
	modifications map[uuid.UUID]Modification
	failInserts   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{modifications: make(map[uuid.UUID]Modification)}
}

func (m *memoryRepo) Insert(_ context.Context, modification Modification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInserts > 0 {
		m.failInserts--
		return fmt.Errorf("modification %s: connection reset during insert", modification.ID)
	}
	m.modifications[modification.ID] = modification
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id uuid.UUID) (Modification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	modification, ok := m.modifications[id]
	if !ok {
		return Modification{}, fmt.Errorf("%w: modification %s", shared.ErrNotFound, id)
	}
	return modification, nil
}

func (m *memoryRepo) List(_ context.Context, filter Filter) ([]Modification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Modification
	for _, modification := range m.modifications {
		if filter.Reason != "" && modification.Reason != filter.Reason {
			continue
		}
		out = append(out, modification)
	}
	return out, len(out), nil
}

func (m *memoryRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.modifications)
}

type fakeLedger struct {
	mu     sync.Mutex
	drafts []ledger.Draft
	err    error
}

// AppendAllThen mirrors the ledger's transactional contract: when the
// post hook fails, the append rolls back and nothing is recorded.
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
	records := make([]ledger.MovementRecord, 0, len(drafts))
	for _, draft := range drafts {
		f.drafts = append(f.drafts, draft)
		records = append(records, ledger.MovementRecord{ID: uuid.New(), Quantity: draft.Quantity, Value: draft.Value})
	}
	return records, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func validInput() CreateInput {
	return CreateInput{
		LocationID: uuid.New(),
		StockID:    uuid.New(),
		VariantID:  uuid.New(),
		Quantity:   dec("-3"),
		Value:      dec("-300"),
		Reason:     ReasonDamage,
		CreatedBy:  uuid.New(),
	}
}

func TestCreateAppendsImmediately(t *testing.T) {
	repo := newMemoryRepo()
	emitter := &fakeLedger{}
	svc := NewService(repo, emitter, nil)
	ctx := context.Background()

	input := validInput()
	modification, record, err := svc.Create(ctx, input)
	require.NoError(t, err)
	require.Equal(t, ReasonDamage, modification.Reason)
	require.True(t, record.Quantity.Equal(dec("-3")))

	require.Len(t, emitter.drafts, 1)
	draft := emitter.drafts[0]
	require.Equal(t, ledger.MovementModification, draft.Type)
	require.Equal(t, ledger.RefModification, draft.RefKind)
	require.Equal(t, modification.ID, draft.RefID)
	require.True(t, draft.Value.Equal(dec("-300")))
	require.Equal(t, 1, repo.count())
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), &fakeLedger{}, nil)
	ctx := context.Background()

	cases := map[string]func(*CreateInput){
		"missing location": func(in *CreateInput) { in.LocationID = uuid.Nil },
		"zero quantity":    func(in *CreateInput) { in.Quantity = decimal.Zero; in.Value = decimal.Zero },
		"unknown reason":   func(in *CreateInput) { in.Reason = "SHRINKAGE" },
		"missing reason":   func(in *CreateInput) { in.Reason = "" },
		"missing staff":    func(in *CreateInput) { in.CreatedBy = uuid.Nil },
		"sign mismatch":    func(in *CreateInput) { in.Value = dec("300") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			input := validInput()
			mutate(&input)
			_, _, err := svc.Create(ctx, input)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestCreateRejectedByLedgerRecordsNothing(t *testing.T) {
	repo := newMemoryRepo()
	emitter := &fakeLedger{err: fmt.Errorf("%w: balance would go negative", shared.ErrInsufficientStock)}
	svc := NewService(repo, emitter, nil)
	ctx := context.Background()

	_, _, err := svc.Create(ctx, validInput())
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, 0, repo.count())
}

func TestCreateRowFailureAppendsNothing(t *testing.T) {
	repo := newMemoryRepo()
	emitter := &fakeLedger{}
	svc := NewService(repo, emitter, nil)
	ctx := context.Background()

	// The row insert shares the append transaction; its failure rolls
	// the ledger entry back with it.
	repo.failInserts = 1
	_, _, err := svc.Create(ctx, validInput())
	require.Error(t, err)
	require.Empty(t, emitter.drafts)
	require.Equal(t, 0, repo.count())
}

func TestPositiveCorrectionAllowed(t *testing.T) {
	repo := newMemoryRepo()
	emitter := &fakeLedger{}
	svc := NewService(repo, emitter, nil)
	ctx := context.Background()

	input := validInput()
	input.Quantity = dec("2")
	input.Value = dec("150")
	input.Reason = ReasonCorrection

	_, record, err := svc.Create(ctx, input)
	require.NoError(t, err)
	require.True(t, record.Quantity.Equal(dec("2")))
	require.Equal(t, 1, repo.count())
}
