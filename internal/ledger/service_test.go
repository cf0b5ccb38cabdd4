package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-stock/internal/shared"
)

type memoryRepo struct {
	mu            sync.Mutex
	balances      map[shared.BalanceKey]Balance
	movements     []MovementRecord
	failConflicts int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{balances: make(map[shared.BalanceKey]Balance)}
}

type memoryTx struct {
	repo      *memoryRepo
	balances  map[shared.BalanceKey]Balance
	movements []MovementRecord
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failConflicts > 0 {
		r.failConflicts--
		return fmt.Errorf("%w: simulated serialization failure", shared.ErrConflict)
	}
	tx := &memoryTx{repo: r, balances: make(map[shared.BalanceKey]Balance)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for key, balance := range tx.balances {
		r.balances[key] = balance
	}
	r.movements = append(r.movements, tx.movements...)
	return nil
}

func (tx *memoryTx) GetBalanceForUpdate(ctx context.Context, locationID, variantID uuid.UUID) (Balance, error) {
	key := shared.BalanceKey{LocationID: locationID, VariantID: variantID}
	if balance, ok := tx.balances[key]; ok {
		return balance, nil
	}
	if balance, ok := tx.repo.balances[key]; ok {
		return balance, nil
	}
	return zeroBalance(locationID, variantID), ErrBalanceNotFound
}

func (tx *memoryTx) UpsertBalance(ctx context.Context, balance Balance) error {
	key := shared.BalanceKey{LocationID: balance.LocationID, VariantID: balance.VariantID}
	tx.balances[key] = balance
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, record MovementRecord) error {
	tx.movements = append(tx.movements, record)
	return nil
}

func (r *memoryRepo) GetBalance(ctx context.Context, locationID, variantID uuid.UUID) (Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := shared.BalanceKey{LocationID: locationID, VariantID: variantID}
	if balance, ok := r.balances[key]; ok {
		return balance, nil
	}
	return zeroBalance(locationID, variantID), ErrBalanceNotFound
}

func (r *memoryRepo) ListBalances(ctx context.Context, locationID uuid.UUID) ([]Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var balances []Balance
	for _, balance := range r.balances {
		if locationID == uuid.Nil || balance.LocationID == locationID {
			balances = append(balances, balance)
		}
	}
	return balances, nil
}

func (r *memoryRepo) ListBalanceKeys(ctx context.Context) ([]shared.BalanceKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []shared.BalanceKey
	for key := range r.balances {
		keys = append(keys, key)
	}
	return keys, nil
}

func (r *memoryRepo) MovementsForKey(ctx context.Context, locationID, variantID uuid.UUID) ([]MovementRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var records []MovementRecord
	for _, record := range r.movements {
		if record.LocationID == locationID && record.VariantID == variantID {
			records = append(records, record)
		}
	}
	return records, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter Filter) ([]MovementRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]MovementRecord, len(r.movements))
	copy(result, r.movements)
	return result, nil
}

func newTestService(repo *memoryRepo) *Service {
	projector := NewProjector(repo)
	return NewService(repo, nil, projector, nil, nil, ServiceConfig{}, nil)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func intakeDraft(locationID, variantID, stockID uuid.UUID, qty, value string) Draft {
	return Draft{
		StockID:    stockID,
		VariantID:  variantID,
		LocationID: locationID,
		Type:       MovementIntake,
		Quantity:   dec(qty),
		Value:      dec(value),
	}
}

func TestAppendWeightedAverage(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	location, variant, stock := uuid.New(), uuid.New(), uuid.New()

	record, err := svc.Append(ctx, intakeDraft(location, variant, stock, "10", "1000"))
	require.NoError(t, err)
	require.True(t, record.NewQuantity.Equal(dec("10")), "got %s", record.NewQuantity)
	require.True(t, record.NewAverage.Equal(dec("100")), "got %s", record.NewAverage)
	require.Equal(t, int64(1), record.Seq)

	record, err = svc.Append(ctx, intakeDraft(location, variant, stock, "5", "600"))
	require.NoError(t, err)
	require.True(t, record.PrevQuantity.Equal(dec("10")))
	require.True(t, record.PrevAverage.Equal(dec("100")))
	require.True(t, record.NewQuantity.Equal(dec("15")))
	require.True(t, record.NewAverage.Equal(dec("106.6667")), "got %s", record.NewAverage)
	require.Equal(t, int64(2), record.Seq)

	balance, err := svc.GetBalance(ctx, location, variant)
	require.NoError(t, err)
	require.True(t, balance.Quantity.Equal(dec("15")))
	require.True(t, balance.AverageValue.Equal(dec("106.6667")))
}

func TestAverageUnchangedOnOutflow(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	location, variant, stock := uuid.New(), uuid.New(), uuid.New()

	_, err := svc.Append(ctx, intakeDraft(location, variant, stock, "10", "1000"))
	require.NoError(t, err)

	record, err := svc.Append(ctx, Draft{
		StockID:    stock,
		VariantID:  variant,
		LocationID: location,
		Type:       MovementModification,
		Quantity:   dec("-4"),
		Value:      dec("-400"),
	})
	require.NoError(t, err)
	require.True(t, record.NewQuantity.Equal(dec("6")))
	require.True(t, record.NewAverage.Equal(dec("100")), "outflow must not move the average, got %s", record.NewAverage)
}

func TestInsufficientStockRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	location, variant, stock := uuid.New(), uuid.New(), uuid.New()

	_, err := svc.Append(ctx, intakeDraft(location, variant, stock, "15", "1500"))
	require.NoError(t, err)

	_, err = svc.Append(ctx, Draft{
		StockID:    stock,
		VariantID:  variant,
		LocationID: location,
		Type:       MovementModification,
		Quantity:   dec("-20"),
		Value:      dec("-2000"),
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	balance, err := svc.GetBalance(ctx, location, variant)
	require.NoError(t, err)
	require.True(t, balance.Quantity.Equal(dec("15")), "balance must be unchanged, got %s", balance.Quantity)
	require.Len(t, repo.movements, 1)
}

func TestAppendAllAtomic(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	from, to, variant, stock := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	_, err := svc.Append(ctx, intakeDraft(from, variant, stock, "15", "1500"))
	require.NoError(t, err)

	transfer := uuid.New()
	pair := []Draft{
		{StockID: stock, VariantID: variant, LocationID: from, Type: MovementTransferOut, Quantity: dec("-20"), Value: dec("-2000"), RefKind: RefTransfer, RefID: transfer},
		{StockID: stock, VariantID: variant, LocationID: to, Type: MovementTransferIn, Quantity: dec("20"), Value: dec("2000"), RefKind: RefTransfer, RefID: transfer},
	}
	_, err = svc.AppendAll(ctx, pair)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Len(t, repo.movements, 1, "neither transfer leg may land")

	pair[0].Quantity = dec("-10")
	pair[0].Value = dec("-1000")
	pair[1].Quantity = dec("10")
	pair[1].Value = dec("1000")
	records, err := svc.AppendAll(ctx, pair)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.True(t, records[0].Quantity.Neg().Equal(records[1].Quantity))
	require.True(t, records[0].Value.Neg().Equal(records[1].Value))

	fromBalance, err := svc.GetBalance(ctx, from, variant)
	require.NoError(t, err)
	require.True(t, fromBalance.Quantity.Equal(dec("5")))
	toBalance, err := svc.GetBalance(ctx, to, variant)
	require.NoError(t, err)
	require.True(t, toBalance.Quantity.Equal(dec("10")))
}

func TestConsumptionValuedAtAverage(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	location, variant, stock := uuid.New(), uuid.New(), uuid.New()

	_, err := svc.Append(ctx, intakeDraft(location, variant, stock, "10", "1000"))
	require.NoError(t, err)

	records, err := svc.ConsumeOrderItems(ctx, []ConsumptionLine{{
		StockID:    stock,
		VariantID:  variant,
		LocationID: location,
		Quantity:   dec("3"),
		OrderItem:  uuid.New(),
		StaffID:    uuid.New(),
	}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.True(t, records[0].Quantity.Equal(dec("-3")))
	require.True(t, records[0].Value.Equal(dec("-300")), "consumption valued at average, got %s", records[0].Value)
	require.Equal(t, RefOrderItem, records[0].RefKind)
}

func TestDraftValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	location, variant, stock := uuid.New(), uuid.New(), uuid.New()

	cases := map[string]Draft{
		"zero quantity": {StockID: stock, VariantID: variant, LocationID: location, Type: MovementModification, Quantity: decimal.Zero},
		"missing ids":   {Type: MovementIntake, Quantity: dec("1"), Value: dec("10")},
		"unknown type":  {StockID: stock, VariantID: variant, LocationID: location, Type: "BOGUS", Quantity: dec("1")},
		"negative intake": {
			StockID: stock, VariantID: variant, LocationID: location,
			Type: MovementIntake, Quantity: dec("-1"), Value: dec("-10"),
		},
		"sign mismatch": {
			StockID: stock, VariantID: variant, LocationID: location,
			Type: MovementIntake, Quantity: dec("1"), Value: dec("-10"),
		},
		"ref kind without id": {
			StockID: stock, VariantID: variant, LocationID: location,
			Type: MovementIntake, Quantity: dec("1"), Value: dec("10"), RefKind: RefTransfer,
		},
	}
	for name, draft := range cases {
		_, err := svc.Append(ctx, draft)
		require.ErrorIs(t, err, shared.ErrValidation, name)
	}
	require.Empty(t, repo.movements)
}

func TestConflictRetry(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	location, variant, stock := uuid.New(), uuid.New(), uuid.New()

	repo.failConflicts = 2
	_, err := svc.Append(ctx, intakeDraft(location, variant, stock, "10", "1000"))
	require.NoError(t, err, "bounded retries should absorb transient conflicts")

	repo.failConflicts = 10
	_, err = svc.Append(ctx, intakeDraft(location, variant, stock, "10", "1000"))
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestConcurrentAppendsSerialize(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	location, variant, stock := uuid.New(), uuid.New(), uuid.New()

	_, err := svc.Append(ctx, intakeDraft(location, variant, stock, "100", "10000"))
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Append(ctx, Draft{
				StockID:    stock,
				VariantID:  variant,
				LocationID: location,
				Type:       MovementModification,
				Quantity:   dec("-5"),
				Value:      dec("-500"),
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := svc.GetBalance(ctx, location, variant)
	require.NoError(t, err)
	require.True(t, balance.Quantity.Equal(dec("60")), "final quantity independent of interleaving, got %s", balance.Quantity)
	require.Equal(t, int64(workers+1), balance.LastSeq)

	seen := make(map[int64]bool)
	for _, record := range repo.movements {
		require.False(t, seen[record.Seq], "sequence numbers must be unique per key")
		seen[record.Seq] = true
		require.True(t, record.NewQuantity.Equal(record.PrevQuantity.Add(record.Quantity)))
	}
}

type fakeRegistry struct {
	stocks     map[uuid.UUID]uuid.UUID
	locations  map[uuid.UUID]bool
	referenced map[uuid.UUID]int
	markErr    error
}

func (f *fakeRegistry) VariantStock(ctx context.Context, variantID uuid.UUID) (uuid.UUID, error) {
	stockID, ok := f.stocks[variantID]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: stock variant %s", shared.ErrNotFound, variantID)
	}
	return stockID, nil
}

func (f *fakeRegistry) LocationExists(ctx context.Context, locationID uuid.UUID) error {
	if !f.locations[locationID] {
		return fmt.Errorf("%w: location %s", shared.ErrNotFound, locationID)
	}
	return nil
}

func (f *fakeRegistry) MarkVariantReferenced(ctx context.Context, variantID uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.referenced[variantID]++
	return nil
}

func TestRegistryChecks(t *testing.T) {
	repo := newMemoryRepo()
	location, variant, stock := uuid.New(), uuid.New(), uuid.New()
	reg := &fakeRegistry{
		stocks:     map[uuid.UUID]uuid.UUID{variant: stock},
		locations:  map[uuid.UUID]bool{location: true},
		referenced: map[uuid.UUID]int{},
	}
	svc := NewService(repo, reg, NewProjector(repo), nil, nil, ServiceConfig{}, nil)
	ctx := context.Background()

	_, err := svc.Append(ctx, intakeDraft(location, uuid.New(), stock, "1", "10"))
	require.ErrorIs(t, err, shared.ErrNotFound, "unknown variant")

	_, err = svc.Append(ctx, intakeDraft(uuid.New(), variant, stock, "1", "10"))
	require.ErrorIs(t, err, shared.ErrNotFound, "unknown location")

	_, err = svc.Append(ctx, intakeDraft(location, variant, uuid.New(), "1", "10"))
	require.ErrorIs(t, err, shared.ErrValidation, "variant bound to another stock")

	_, err = svc.Append(ctx, intakeDraft(location, variant, stock, "1", "10"))
	require.NoError(t, err)
	require.Equal(t, 1, reg.referenced[variant])

	occurred := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	record, err := svc.Append(ctx, Draft{
		StockID: stock, VariantID: variant, LocationID: location,
		Type: MovementIntake, Quantity: dec("1"), Value: dec("10"), OccurredAt: occurred,
	})
	require.NoError(t, err)
	require.Equal(t, occurred, record.OccurredAt)
}

func TestMarkReferencedFailureAbortsAppend(t *testing.T) {
	repo := newMemoryRepo()
	location, variant, stock := uuid.New(), uuid.New(), uuid.New()
	reg := &fakeRegistry{
		stocks:     map[uuid.UUID]uuid.UUID{variant: stock},
		locations:  map[uuid.UUID]bool{location: true},
		referenced: map[uuid.UUID]int{},
		markErr:    fmt.Errorf("registry unavailable"),
	}
	svc := NewService(repo, reg, NewProjector(repo), nil, nil, ServiceConfig{}, nil)
	ctx := context.Background()

	// The freeze runs inside the append transaction, so its failure
	// rolls the movement back: no record may commit with an unfrozen
	// variant.
	_, err := svc.Append(ctx, intakeDraft(location, variant, stock, "1", "10"))
	require.Error(t, err)
	require.Empty(t, repo.movements)

	balance, err := svc.GetBalance(ctx, location, variant)
	require.NoError(t, err)
	require.True(t, balance.Quantity.IsZero())
}

func TestPostHookFailureRollsBackAppend(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	location, variant, stock := uuid.New(), uuid.New(), uuid.New()

	_, err := svc.AppendAllThen(ctx, []Draft{intakeDraft(location, variant, stock, "10", "1000")},
		func(context.Context) error { return fmt.Errorf("status flip rejected") })
	require.Error(t, err)
	require.Empty(t, repo.movements)

	balance, err := svc.GetBalance(ctx, location, variant)
	require.NoError(t, err)
	require.True(t, balance.Quantity.IsZero())

	// A clean hook commits both sides.
	records, err := svc.AppendAllThen(ctx, []Draft{intakeDraft(location, variant, stock, "10", "1000")},
		func(context.Context) error { return nil })
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, repo.movements, 1)
}
