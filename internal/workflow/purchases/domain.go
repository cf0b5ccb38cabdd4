package purchases

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates the delivery lifecycle. RECEIVED is terminal.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusReceived Status = "RECEIVED"
)

// PaymentStatus is derived from the paid amount against the total cost. It
// moves independently of the delivery status and never drives the ledger.
type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "UNPAID"
	PaymentPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentPaid          PaymentStatus = "PAID"
)

// Line is one ordered variant on a purchase. UnitCost prices the intake
// movement emitted on delivery.
type Line struct {
	ID        uuid.UUID
	StockID   uuid.UUID
	VariantID uuid.UUID
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
}

// LineTotal is quantity times unit cost, rounded to cents.
func (l Line) LineTotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitCost).Round(2)
}

// Purchase is a supplier order delivered to one location. Confirming the
// delivery emits one INTAKE movement per line; payments only move the
// payment sub-state.
type Purchase struct {
	ID            uuid.UUID
	SupplierID    uuid.UUID
	LocationID    uuid.UUID
	Lines         []Line
	Status        Status
	PaymentStatus PaymentStatus
	TotalCost     decimal.Decimal
	PaidAmount    decimal.Decimal
	DeliveryDate  time.Time
	Notes         string
	CreatedBy     uuid.UUID
	ReceivedBy    uuid.UUID
	CreatedAt     time.Time
	ReceivedAt    time.Time
}

// UnpaidAmount is the open balance on the purchase.
func (p Purchase) UnpaidAmount() decimal.Decimal {
	return p.TotalCost.Sub(p.PaidAmount)
}

func derivePaymentStatus(paid, total decimal.Decimal) PaymentStatus {
	switch {
	case paid.Sign() <= 0:
		return PaymentUnpaid
	case paid.GreaterThanOrEqual(total):
		return PaymentPaid
	default:
		return PaymentPartiallyPaid
	}
}

// Filter narrows purchase listings.
type Filter struct {
	Status        Status
	PaymentStatus PaymentStatus
	SupplierID    uuid.UUID
	LocationID    uuid.UUID
	Page          int
	PerPage       int
}
