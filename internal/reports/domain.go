package reports

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementParams scopes a movement summary.
type MovementParams struct {
	From       time.Time
	To         time.Time
	LocationID uuid.UUID
	StockID    uuid.UUID
}

// MovementTypeSummary aggregates ledger records of one movement type.
type MovementTypeSummary struct {
	Type          string          `json:"type"`
	Count         int64           `json:"count"`
	TotalQuantity decimal.Decimal `json:"totalQuantity"`
	TotalValue    decimal.Decimal `json:"totalValue"`
}

// PurchaseParams scopes a purchase summary.
type PurchaseParams struct {
	From       time.Time
	To         time.Time
	SupplierID uuid.UUID
}

// PurchaseStatusSummary aggregates purchases by payment status.
type PurchaseStatusSummary struct {
	PaymentStatus string          `json:"paymentStatus"`
	Count         int64           `json:"count"`
	TotalCost     decimal.Decimal `json:"totalCost"`
	PaidAmount    decimal.Decimal `json:"paidAmount"`
}

// StatusCount pairs a workflow status with its row count.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// WorkflowCounts groups approval pipeline counts per workflow.
type WorkflowCounts struct {
	Transfers []StatusCount `json:"transfers"`
	Requests  []StatusCount `json:"requests"`
}

// ValuationRow values one balance at its moving-average cost.
type ValuationRow struct {
	LocationID   uuid.UUID       `json:"locationId"`
	VariantID    uuid.UUID       `json:"variantId"`
	Quantity     decimal.Decimal `json:"quantity"`
	AverageValue decimal.Decimal `json:"averageValue"`
	TotalValue   decimal.Decimal `json:"totalValue"`
}

// ValuationReport is the stock valuation for one scope.
type ValuationReport struct {
	Rows       []ValuationRow  `json:"rows"`
	GrandTotal decimal.Decimal `json:"grandTotal"`
}
