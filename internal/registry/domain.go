package registry

import (
	"time"

	"github.com/google/uuid"
)

// LocationKind distinguishes selling locations from warehouses.
type LocationKind string

const (
	// LocationKindShop marks a point-of-sale location.
	LocationKindShop LocationKind = "SHOP"
	// LocationKindWarehouse marks a storage warehouse.
	LocationKindWarehouse LocationKind = "WAREHOUSE"
)

// Stock is the product-like grouping a variant belongs to.
type Stock struct {
	ID        uuid.UUID
	Name      string
	Category  string
	CreatedAt time.Time
}

// StockVariant is the canonical stock keeping unit. A variant becomes
// immutable once any movement record references it.
type StockVariant struct {
	ID         uuid.UUID
	StockID    uuid.UUID
	Name       string
	Unit       string
	Referenced bool
	CreatedAt  time.Time
}

// Location is a shop or warehouse holding stock.
type Location struct {
	ID        uuid.UUID
	Name      string
	Kind      LocationKind
	CreatedAt time.Time
}

// Supplier provides intake purchases.
type Supplier struct {
	ID        uuid.UUID
	Name      string
	Contact   string
	CreatedAt time.Time
}

// Staff identifies an actor for workflow and audit purposes.
type Staff struct {
	ID        uuid.UUID
	Name      string
	Role      string
	CreatedAt time.Time
}

// ListFilter narrows registry listings.
type ListFilter struct {
	Search  string
	Page    int
	PerPage int
}
