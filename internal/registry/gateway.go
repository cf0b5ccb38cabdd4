package registry

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meridian-pos/meridian-stock/internal/shared"
)

// LedgerGateway adapts the registry service to the identity checks the
// ledger performs on append.
type LedgerGateway struct {
	service *Service
}

// NewLedgerGateway constructs a LedgerGateway.
func NewLedgerGateway(service *Service) *LedgerGateway {
	return &LedgerGateway{service: service}
}

// VariantStock returns the stock a variant belongs to.
func (g *LedgerGateway) VariantStock(ctx context.Context, variantID uuid.UUID) (uuid.UUID, error) {
	variant, err := g.service.GetVariant(ctx, variantID)
	if err != nil {
		return uuid.Nil, err
	}
	return variant.StockID, nil
}

// LocationExists verifies a location id.
func (g *LedgerGateway) LocationExists(ctx context.Context, locationID uuid.UUID) error {
	_, err := g.service.GetLocation(ctx, locationID)
	return err
}

// EnsureWarehouse verifies the location exists and is a warehouse. Stock
// requests may only draw from warehouses.
func (g *LedgerGateway) EnsureWarehouse(ctx context.Context, locationID uuid.UUID) error {
	location, err := g.service.GetLocation(ctx, locationID)
	if err != nil {
		return err
	}
	if location.Kind != LocationKindWarehouse {
		return fmt.Errorf("%w: location %s is not a warehouse", shared.ErrValidation, locationID)
	}
	return nil
}

// MarkVariantReferenced freezes the variant after its first ledger reference.
func (g *LedgerGateway) MarkVariantReferenced(ctx context.Context, variantID uuid.UUID) error {
	return g.service.MarkVariantReferenced(ctx, variantID)
}
