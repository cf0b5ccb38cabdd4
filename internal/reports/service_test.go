package reports

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	movementRows   []MovementTypeSummary
	movementCalls  int
	purchaseRows   []PurchaseStatusSummary
	purchaseCalls  int
	workflowCounts WorkflowCounts
	workflowCalls  int
	valuationRows  []ValuationRow
	valuationCalls int
}

func (m *mockRepo) MovementSummary(_ context.Context, _ MovementParams) ([]MovementTypeSummary, error) {
	m.movementCalls++
	return m.movementRows, nil
}

func (m *mockRepo) PurchaseSummary(_ context.Context, _ PurchaseParams) ([]PurchaseStatusSummary, error) {
	m.purchaseCalls++
	return m.purchaseRows, nil
}

func (m *mockRepo) WorkflowCounts(_ context.Context) (WorkflowCounts, error) {
	m.workflowCalls++
	return m.workflowCounts, nil
}

func (m *mockRepo) Valuation(_ context.Context, _ uuid.UUID) ([]ValuationRow, error) {
	m.valuationCalls++
	return m.valuationRows, nil
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewService(repo, NewCache(client, time.Minute))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestMovementSummaryCachesUntilBump(t *testing.T) {
	repo := &mockRepo{movementRows: []MovementTypeSummary{
		{Type: "INTAKE", Count: 3, TotalQuantity: dec("15"), TotalValue: dec("1600")},
		{Type: "TRANSFER_OUT", Count: 1, TotalQuantity: dec("-5"), TotalValue: dec("-500")},
	}}
	svc := newTestService(t, repo)
	ctx := context.Background()

	first, err := svc.MovementSummary(ctx, MovementParams{})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.True(t, first[0].TotalQuantity.Equal(dec("15")))

	// Second call with identical arguments serves from cache.
	second, err := svc.MovementSummary(ctx, MovementParams{})
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, repo.movementCalls)

	// A ledger append bumps the version and forces a reload.
	svc.cache.BumpVersion(ctx)
	_, err = svc.MovementSummary(ctx, MovementParams{})
	require.NoError(t, err)
	require.Equal(t, 2, repo.movementCalls)
}

func TestMovementSummaryScopesKeys(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.MovementSummary(ctx, MovementParams{LocationID: uuid.New()})
	require.NoError(t, err)
	_, err = svc.MovementSummary(ctx, MovementParams{LocationID: uuid.New()})
	require.NoError(t, err)
	require.Equal(t, 2, repo.movementCalls)
}

func TestPurchaseSummary(t *testing.T) {
	repo := &mockRepo{purchaseRows: []PurchaseStatusSummary{
		{PaymentStatus: "PAID", Count: 2, TotalCost: dec("2000"), PaidAmount: dec("2000")},
		{PaymentStatus: "UNPAID", Count: 1, TotalCost: dec("500"), PaidAmount: dec("0")},
	}}
	svc := newTestService(t, repo)

	out, err := svc.PurchaseSummary(context.Background(), PurchaseParams{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.True(t, out[0].PaidAmount.Equal(dec("2000")))
}

func TestWorkflowCounts(t *testing.T) {
	repo := &mockRepo{workflowCounts: WorkflowCounts{
		Transfers: []StatusCount{{Status: "PENDING", Count: 4}, {Status: "APPROVED", Count: 9}},
		Requests:  []StatusCount{{Status: "CANCELLED", Count: 1}},
	}}
	svc := newTestService(t, repo)
	ctx := context.Background()

	counts, err := svc.WorkflowCounts(ctx)
	require.NoError(t, err)
	require.Len(t, counts.Transfers, 2)
	require.Equal(t, int64(4), counts.Transfers[0].Count)

	_, err = svc.WorkflowCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repo.workflowCalls)
}

func TestValuationSumsGrandTotal(t *testing.T) {
	repo := &mockRepo{valuationRows: []ValuationRow{
		{LocationID: uuid.New(), VariantID: uuid.New(), Quantity: dec("10"), AverageValue: dec("100"), TotalValue: dec("1000")},
		{LocationID: uuid.New(), VariantID: uuid.New(), Quantity: dec("3"), AverageValue: dec("25.50"), TotalValue: dec("76.50")},
	}}
	svc := newTestService(t, repo)

	report, err := svc.Valuation(context.Background(), uuid.Nil)
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)
	require.True(t, report.GrandTotal.Equal(dec("1076.50")), "got %s", report.GrandTotal)
}
