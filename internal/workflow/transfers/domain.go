package transfers

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-stock/internal/shared"
)

// Status enumerates the transfer lifecycle. APPROVED and CANCELLED are
// terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusCancelled Status = "CANCELLED"
)

// Transfer moves stock of one variant between two locations. Approval emits
// exactly two ledger records atomically; cancellation has no ledger effect.
type Transfer struct {
	ID             uuid.UUID
	FromLocationID uuid.UUID
	ToLocationID   uuid.UUID
	StockID        uuid.UUID
	VariantID      uuid.UUID
	Quantity       decimal.Decimal
	Value          decimal.Decimal
	RequestedBy    uuid.UUID
	ApprovedBy     uuid.UUID
	Status         Status
	Note           string
	CreatedAt      time.Time
	ApprovedAt     time.Time
}

// Filter narrows transfer listings.
type Filter struct {
	Status         Status
	FromLocationID uuid.UUID
	ToLocationID   uuid.UUID
	Page           int
	PerPage        int
}

// ApproverPolicy decides whether an actor may approve a transfer. The ledger
// itself does not enforce this; it is a workflow policy hook.
type ApproverPolicy interface {
	Authorize(requestedBy, approver uuid.UUID) error
}

type distinctActors struct{}

func (distinctActors) Authorize(requestedBy, approver uuid.UUID) error {
	if approver == uuid.Nil {
		return fmt.Errorf("%w: approver required", shared.ErrValidation)
	}
	if requestedBy == approver {
		return fmt.Errorf("%w: approver must differ from requester", shared.ErrValidation)
	}
	return nil
}

// DistinctActorsPolicy requires the approver to differ from the requester.
func DistinctActorsPolicy() ApproverPolicy {
	return distinctActors{}
}
