package requests

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates the request lifecycle. APPROVED and CANCELLED are
// terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusCancelled Status = "CANCELLED"
)

// StockRequest is a pull-style transfer: a shop asks a warehouse for stock.
// The source must be a warehouse; approval moves the stock exactly like a
// transfer, tagged with the request as back-reference.
type StockRequest struct {
	ID          uuid.UUID
	WarehouseID uuid.UUID
	LocationID  uuid.UUID
	StockID     uuid.UUID
	VariantID   uuid.UUID
	Quantity    decimal.Decimal
	Value       decimal.Decimal
	RequestedBy uuid.UUID
	ApprovedBy  uuid.UUID
	Status      Status
	Note        string
	CreatedAt   time.Time
	ApprovedAt  time.Time
}

// Filter narrows request listings.
type Filter struct {
	Status      Status
	WarehouseID uuid.UUID
	LocationID  uuid.UUID
	Page        int
	PerPage     int
}
