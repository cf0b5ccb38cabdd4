package modifications

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reason classifies why stock was adjusted outside the normal flows.
type Reason string

const (
	ReasonDamage     Reason = "DAMAGE"
	ReasonLoss       Reason = "LOSS"
	ReasonCorrection Reason = "CORRECTION"
	ReasonExpiry     Reason = "EXPIRY"
	ReasonTheft      Reason = "THEFT"
)

// Valid reports whether r is a known reason.
func (r Reason) Valid() bool {
	switch r {
	case ReasonDamage, ReasonLoss, ReasonCorrection, ReasonExpiry, ReasonTheft:
		return true
	}
	return false
}

// Modification is a direct signed adjustment of one balance. It has no
// approval lifecycle: recording it appends the ledger entry immediately.
// Reversing an earlier movement is done with a compensating modification,
// never by touching history.
type Modification struct {
	ID         uuid.UUID
	LocationID uuid.UUID
	StockID    uuid.UUID
	VariantID  uuid.UUID
	Quantity   decimal.Decimal
	Value      decimal.Decimal
	Reason     Reason
	Note       string
	CreatedBy  uuid.UUID
	CreatedAt  time.Time
}

// Filter narrows modification listings.
type Filter struct {
	Reason     Reason
	LocationID uuid.UUID
	VariantID  uuid.UUID
	Page       int
	PerPage    int
}
