package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-stock/internal/shared"
)

// ProjectionRepo is the read side the projector folds from.
type ProjectionRepo interface {
	GetBalance(ctx context.Context, locationID, variantID uuid.UUID) (Balance, error)
	MovementsForKey(ctx context.Context, locationID, variantID uuid.UUID) ([]MovementRecord, error)
}

// Drift describes a disagreement between the incremental balance and a full
// fold of the ledger for one key.
type Drift struct {
	Key          shared.BalanceKey
	Folded       Balance
	Materialized Balance
	Dirty        bool
}

// ErrLedgerCorrupt indicates a movement record whose stored snapshot does not
// chain from its predecessor.
var ErrLedgerCorrupt = errors.New("ledger: snapshot chain broken")

// Projector derives current balances from the movement ledger. Reads hit an
// in-process cache seeded from the materialised balance rows; the ledger
// service applies every committed balance synchronously.
type Projector struct {
	repo  ProjectionRepo
	mu    sync.RWMutex
	cache map[shared.BalanceKey]Balance
}

// NewProjector constructs a Projector.
func NewProjector(repo ProjectionRepo) *Projector {
	return &Projector{repo: repo, cache: make(map[shared.BalanceKey]Balance)}
}

// GetBalance returns the current balance for one key. A key with no ledger
// history reads as a zero balance, not an error.
func (p *Projector) GetBalance(ctx context.Context, locationID, variantID uuid.UUID) (Balance, error) {
	key := shared.BalanceKey{LocationID: locationID, VariantID: variantID}
	p.mu.RLock()
	balance, ok := p.cache[key]
	p.mu.RUnlock()
	if ok {
		return balance, nil
	}

	balance, err := p.repo.GetBalance(ctx, locationID, variantID)
	if err != nil {
		if !errors.Is(err, ErrBalanceNotFound) {
			return Balance{}, err
		}
		balance, err = p.Recompute(ctx, locationID, variantID)
		if err != nil {
			return Balance{}, err
		}
	}
	p.Apply(balance)
	return balance, nil
}

// Apply installs a committed balance into the cache.
func (p *Projector) Apply(balance Balance) {
	key := shared.BalanceKey{LocationID: balance.LocationID, VariantID: balance.VariantID}
	p.mu.Lock()
	p.cache[key] = balance
	p.mu.Unlock()
}

// Invalidate drops one key from the cache.
func (p *Projector) Invalidate(key shared.BalanceKey) {
	p.mu.Lock()
	delete(p.cache, key)
	p.mu.Unlock()
}

// Recompute folds every movement for the key from scratch. The fold verifies
// the stored snapshot chain as it goes and must agree with the incremental
// cache; disagreement means repair is needed.
func (p *Projector) Recompute(ctx context.Context, locationID, variantID uuid.UUID) (Balance, error) {
	records, err := p.repo.MovementsForKey(ctx, locationID, variantID)
	if err != nil {
		return Balance{}, err
	}
	balance := zeroBalance(locationID, variantID)
	qty := decimal.Zero
	avg := decimal.Zero
	for _, record := range records {
		if !record.PrevQuantity.Equal(qty) {
			return Balance{}, fmt.Errorf("%w: record %s seq %d expects prev quantity %s, fold has %s",
				ErrLedgerCorrupt, record.ID, record.Seq, record.PrevQuantity, qty)
		}
		qty = qty.Add(record.Quantity)
		if qty.IsNegative() {
			return Balance{}, fmt.Errorf("%w: record %s seq %d drives quantity negative", ErrLedgerCorrupt, record.ID, record.Seq)
		}
		if record.Quantity.Sign() > 0 {
			avg = avg.Mul(qty.Sub(record.Quantity)).Add(record.Value).DivRound(qty, averageScale)
		}
		balance.LastSeq = record.Seq
		balance.UpdatedAt = record.OccurredAt
	}
	balance.Quantity = qty
	balance.AverageValue = avg
	return balance, nil
}

// Verify compares the full fold with the materialised balance row.
func (p *Projector) Verify(ctx context.Context, locationID, variantID uuid.UUID) (Drift, error) {
	key := shared.BalanceKey{LocationID: locationID, VariantID: variantID}
	folded, err := p.Recompute(ctx, locationID, variantID)
	if err != nil {
		return Drift{Key: key}, err
	}
	materialized, err := p.repo.GetBalance(ctx, locationID, variantID)
	if err != nil {
		if !errors.Is(err, ErrBalanceNotFound) {
			return Drift{Key: key}, err
		}
		materialized = zeroBalance(locationID, variantID)
	}
	drift := Drift{
		Key:          key,
		Folded:       folded,
		Materialized: materialized,
	}
	drift.Dirty = !folded.Quantity.Equal(materialized.Quantity) ||
		!folded.AverageValue.Equal(materialized.AverageValue) ||
		folded.LastSeq != materialized.LastSeq
	return drift, nil
}
