package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIntake represents goods received from a supplier purchase.
	MovementIntake MovementType = "INTAKE"
	// MovementModification represents a manual correction (damage, loss, ...).
	MovementModification MovementType = "MODIFICATION"
	// MovementOrderItemConsumption represents stock drawn down by a sold order item.
	MovementOrderItemConsumption MovementType = "ORDER_ITEM_CONSUMPTION"
	// MovementTransferIn is the receiving leg of a transfer.
	MovementTransferIn MovementType = "TRANSFER_IN"
	// MovementTransferOut is the sending leg of a transfer.
	MovementTransferOut MovementType = "TRANSFER_OUT"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIntake, MovementModification, MovementOrderItemConsumption, MovementTransferIn, MovementTransferOut:
		return true
	default:
		return false
	}
}

// RefKind names the workflow entity a movement record originates from.
// A record carries at most one back-reference.
type RefKind string

const (
	// RefIntakePurchase points at a stock intake purchase.
	RefIntakePurchase RefKind = "INTAKE_PURCHASE"
	// RefModification points at a stock modification.
	RefModification RefKind = "MODIFICATION"
	// RefOrderItem points at a sold order item.
	RefOrderItem RefKind = "ORDER_ITEM"
	// RefTransfer points at an inter-location transfer.
	RefTransfer RefKind = "TRANSFER"
	// RefStockRequest points at a warehouse stock request.
	RefStockRequest RefKind = "STOCK_REQUEST"
)

// MovementRecord is one immutable signed quantity/value change applied to a
// (location, variant) pair. Records are append-only and never mutated.
type MovementRecord struct {
	ID         uuid.UUID
	Seq        int64
	StockID    uuid.UUID
	VariantID  uuid.UUID
	LocationID uuid.UUID
	Type       MovementType

	Quantity decimal.Decimal
	Value    decimal.Decimal

	// Running weighted-average snapshot before and after this record,
	// captured at append time.
	PrevQuantity decimal.Decimal
	PrevAverage  decimal.Decimal
	NewQuantity  decimal.Decimal
	NewAverage   decimal.Decimal

	RefKind RefKind
	RefID   uuid.UUID
	StaffID uuid.UUID
	Note    string

	OccurredAt time.Time
}

// Draft describes a movement before the snapshot fields are computed.
type Draft struct {
	StockID    uuid.UUID
	VariantID  uuid.UUID
	LocationID uuid.UUID
	Type       MovementType
	Quantity   decimal.Decimal
	Value      decimal.Decimal
	RefKind    RefKind
	RefID      uuid.UUID
	StaffID    uuid.UUID
	Note       string
	OccurredAt time.Time
}

// Balance is the derived current quantity and weighted-average value for one
// (location, variant) pair.
type Balance struct {
	LocationID   uuid.UUID
	VariantID    uuid.UUID
	Quantity     decimal.Decimal
	AverageValue decimal.Decimal
	LastSeq      int64
	UpdatedAt    time.Time
}

// Filter narrows movement listings.
type Filter struct {
	LocationID uuid.UUID
	VariantID  uuid.UUID
	StockID    uuid.UUID
	Types      []MovementType
	From       time.Time
	To         time.Time
	Limit      int
}

// averageScale is the decimal precision kept on running averages.
const averageScale = 4

// zeroBalance returns an empty balance for key.
func zeroBalance(locationID, variantID uuid.UUID) Balance {
	return Balance{
		LocationID:   locationID,
		VariantID:    variantID,
		Quantity:     decimal.Zero,
		AverageValue: decimal.Zero,
	}
}
