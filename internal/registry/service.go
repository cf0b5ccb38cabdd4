package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/meridian-pos/meridian-stock/internal/shared"
)

// RepositoryPort abstracts persistence for the registry service.
type RepositoryPort interface {
	InsertStock(ctx context.Context, stock Stock) error
	GetStock(ctx context.Context, id uuid.UUID) (Stock, error)
	ListStocks(ctx context.Context, filter ListFilter) ([]Stock, int, error)

	InsertVariant(ctx context.Context, variant StockVariant) error
	GetVariant(ctx context.Context, id uuid.UUID) (StockVariant, error)
	ListVariants(ctx context.Context, stockID uuid.UUID, filter ListFilter) ([]StockVariant, int, error)
	UpdateVariantName(ctx context.Context, id uuid.UUID, name string) error
	MarkVariantReferenced(ctx context.Context, id uuid.UUID) error

	InsertLocation(ctx context.Context, location Location) error
	GetLocation(ctx context.Context, id uuid.UUID) (Location, error)
	ListLocations(ctx context.Context, filter ListFilter) ([]Location, int, error)

	InsertSupplier(ctx context.Context, supplier Supplier) error
	GetSupplier(ctx context.Context, id uuid.UUID) (Supplier, error)
	ListSuppliers(ctx context.Context, filter ListFilter) ([]Supplier, int, error)

	InsertStaff(ctx context.Context, staff Staff) error
	GetStaff(ctx context.Context, id uuid.UUID) (Staff, error)
}

// Service maintains canonical identity for stocks, variants, locations,
// suppliers and staff.
type Service struct {
	repo RepositoryPort
}

// NewService constructs the registry service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateStock registers a new stock grouping.
func (s *Service) CreateStock(ctx context.Context, name, category string) (Stock, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Stock{}, fmt.Errorf("%w: stock name required", shared.ErrValidation)
	}
	stock := Stock{ID: uuid.New(), Name: name, Category: strings.TrimSpace(category)}
	if err := s.repo.InsertStock(ctx, stock); err != nil {
		return Stock{}, err
	}
	return stock, nil
}

// CreateVariant registers a stock keeping unit under an existing stock.
func (s *Service) CreateVariant(ctx context.Context, stockID uuid.UUID, name, unit string) (StockVariant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return StockVariant{}, fmt.Errorf("%w: variant name required", shared.ErrValidation)
	}
	if unit == "" {
		return StockVariant{}, fmt.Errorf("%w: unit of measure required", shared.ErrValidation)
	}
	if _, err := s.repo.GetStock(ctx, stockID); err != nil {
		return StockVariant{}, err
	}
	variant := StockVariant{ID: uuid.New(), StockID: stockID, Name: name, Unit: unit}
	if err := s.repo.InsertVariant(ctx, variant); err != nil {
		return StockVariant{}, err
	}
	return variant, nil
}

// RenameVariant updates the variant name. Variants already referenced by the
// ledger are immutable.
func (s *Service) RenameVariant(ctx context.Context, id uuid.UUID, name string) (StockVariant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return StockVariant{}, fmt.Errorf("%w: variant name required", shared.ErrValidation)
	}
	variant, err := s.repo.GetVariant(ctx, id)
	if err != nil {
		return StockVariant{}, err
	}
	if variant.Referenced {
		return StockVariant{}, fmt.Errorf("%w: variant %s is referenced by the ledger and cannot change", shared.ErrValidation, id)
	}
	if err := s.repo.UpdateVariantName(ctx, id, name); err != nil {
		return StockVariant{}, err
	}
	variant.Name = name
	return variant, nil
}

// MarkVariantReferenced freezes a variant after its first ledger reference.
// Called by the ledger on append; marking twice is harmless.
func (s *Service) MarkVariantReferenced(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkVariantReferenced(ctx, id)
}

// CreateLocation registers a shop or warehouse.
func (s *Service) CreateLocation(ctx context.Context, name string, kind LocationKind) (Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Location{}, fmt.Errorf("%w: location name required", shared.ErrValidation)
	}
	if kind != LocationKindShop && kind != LocationKindWarehouse {
		return Location{}, fmt.Errorf("%w: unknown location kind %q", shared.ErrValidation, kind)
	}
	location := Location{ID: uuid.New(), Name: name, Kind: kind}
	if err := s.repo.InsertLocation(ctx, location); err != nil {
		return Location{}, err
	}
	return location, nil
}

// CreateSupplier registers a supplier.
func (s *Service) CreateSupplier(ctx context.Context, name, contact string) (Supplier, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Supplier{}, fmt.Errorf("%w: supplier name required", shared.ErrValidation)
	}
	supplier := Supplier{ID: uuid.New(), Name: name, Contact: strings.TrimSpace(contact)}
	if err := s.repo.InsertSupplier(ctx, supplier); err != nil {
		return Supplier{}, err
	}
	return supplier, nil
}

// CreateStaff registers a staff member.
func (s *Service) CreateStaff(ctx context.Context, name, role string) (Staff, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Staff{}, fmt.Errorf("%w: staff name required", shared.ErrValidation)
	}
	staff := Staff{ID: uuid.New(), Name: name, Role: role}
	if err := s.repo.InsertStaff(ctx, staff); err != nil {
		return Staff{}, err
	}
	return staff, nil
}

// GetStock returns one stock grouping.
func (s *Service) GetStock(ctx context.Context, id uuid.UUID) (Stock, error) {
	return s.repo.GetStock(ctx, id)
}

// GetVariant returns one variant.
func (s *Service) GetVariant(ctx context.Context, id uuid.UUID) (StockVariant, error) {
	return s.repo.GetVariant(ctx, id)
}

// GetLocation returns one location.
func (s *Service) GetLocation(ctx context.Context, id uuid.UUID) (Location, error) {
	return s.repo.GetLocation(ctx, id)
}

// GetSupplier returns one supplier.
func (s *Service) GetSupplier(ctx context.Context, id uuid.UUID) (Supplier, error) {
	return s.repo.GetSupplier(ctx, id)
}

// GetStaff returns one staff member.
func (s *Service) GetStaff(ctx context.Context, id uuid.UUID) (Staff, error) {
	return s.repo.GetStaff(ctx, id)
}

// ListStocks lists stock groupings.
func (s *Service) ListStocks(ctx context.Context, filter ListFilter) ([]Stock, shared.Pagination, error) {
	stocks, total, err := s.repo.ListStocks(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return stocks, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// ListVariants lists variants under a stock.
func (s *Service) ListVariants(ctx context.Context, stockID uuid.UUID, filter ListFilter) ([]StockVariant, shared.Pagination, error) {
	variants, total, err := s.repo.ListVariants(ctx, stockID, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return variants, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// ListLocations lists locations.
func (s *Service) ListLocations(ctx context.Context, filter ListFilter) ([]Location, shared.Pagination, error) {
	locations, total, err := s.repo.ListLocations(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return locations, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// ListSuppliers lists suppliers.
func (s *Service) ListSuppliers(ctx context.Context, filter ListFilter) ([]Supplier, shared.Pagination, error) {
	suppliers, total, err := s.repo.ListSuppliers(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return suppliers, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}
