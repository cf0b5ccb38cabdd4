package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-stock/internal/shared"
)

func TestRecomputeMatchesIncremental(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	location, variant, stock := uuid.New(), uuid.New(), uuid.New()

	steps := []Draft{
		intakeDraft(location, variant, stock, "10", "1000"),
		intakeDraft(location, variant, stock, "5", "600"),
		{StockID: stock, VariantID: variant, LocationID: location, Type: MovementModification, Quantity: dec("-8"), Value: dec("-853.34")},
		intakeDraft(location, variant, stock, "2.5", "300"),
	}
	for _, draft := range steps {
		_, err := svc.Append(ctx, draft)
		require.NoError(t, err)

		incremental, err := svc.GetBalance(ctx, location, variant)
		require.NoError(t, err)
		folded, err := svc.Recompute(ctx, location, variant)
		require.NoError(t, err)
		require.True(t, folded.Quantity.Equal(incremental.Quantity),
			"fold %s vs incremental %s", folded.Quantity, incremental.Quantity)
		require.True(t, folded.AverageValue.Equal(incremental.AverageValue),
			"fold %s vs incremental %s", folded.AverageValue, incremental.AverageValue)
		require.Equal(t, incremental.LastSeq, folded.LastSeq)

		drift, err := svc.Verify(ctx, location, variant)
		require.NoError(t, err)
		require.False(t, drift.Dirty)
	}
}

func TestRecomputeDetectsBrokenChain(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	location, variant, stock := uuid.New(), uuid.New(), uuid.New()

	_, err := svc.Append(ctx, intakeDraft(location, variant, stock, "10", "1000"))
	require.NoError(t, err)
	_, err = svc.Append(ctx, intakeDraft(location, variant, stock, "5", "600"))
	require.NoError(t, err)

	repo.movements[1].PrevQuantity = dec("7")
	_, err = svc.Recompute(ctx, location, variant)
	require.ErrorIs(t, err, ErrLedgerCorrupt)
}

func TestVerifyReportsDrift(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	location, variant, stock := uuid.New(), uuid.New(), uuid.New()

	_, err := svc.Append(ctx, intakeDraft(location, variant, stock, "10", "1000"))
	require.NoError(t, err)

	key := shared.BalanceKey{LocationID: location, VariantID: variant}
	tampered := repo.balances[key]
	tampered.Quantity = dec("9")
	repo.balances[key] = tampered

	drift, err := svc.Verify(ctx, location, variant)
	require.NoError(t, err)
	require.True(t, drift.Dirty)
	require.True(t, drift.Folded.Quantity.Equal(dec("10")))
	require.True(t, drift.Materialized.Quantity.Equal(dec("9")))
}

func TestGetBalanceUnknownKeyIsZero(t *testing.T) {
	repo := newMemoryRepo()
	projector := NewProjector(repo)
	ctx := context.Background()

	balance, err := projector.GetBalance(ctx, uuid.New(), uuid.New())
	require.NoError(t, err)
	require.True(t, balance.Quantity.IsZero())
	require.True(t, balance.AverageValue.IsZero())
	require.Equal(t, int64(0), balance.LastSeq)
}

func TestProjectorCacheMissSeedsFromStore(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	location, variant, stock := uuid.New(), uuid.New(), uuid.New()

	_, err := svc.Append(ctx, intakeDraft(location, variant, stock, "10", "1000"))
	require.NoError(t, err)

	// A fresh projector simulates another process reading after restart.
	fresh := NewProjector(repo)
	balance, err := fresh.GetBalance(ctx, location, variant)
	require.NoError(t, err)
	require.True(t, balance.Quantity.Equal(dec("10")))
	require.True(t, balance.AverageValue.Equal(dec("100")))
}
