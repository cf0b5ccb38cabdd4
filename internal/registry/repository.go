package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-stock/internal/platform/db"
	"github.com/meridian-pos/meridian-stock/internal/shared"
)

// Repository persists registry data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) InsertStock(ctx context.Context, stock Stock) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO stocks (id, name, category, created_at) VALUES ($1, $2, $3, NOW())`,
		stock.ID, stock.Name, stock.Category)
	return err
}

func (r *Repository) GetStock(ctx context.Context, id uuid.UUID) (Stock, error) {
	var stock Stock
	err := r.pool.QueryRow(ctx, `SELECT id, name, category, created_at FROM stocks WHERE id=$1`, id).
		Scan(&stock.ID, &stock.Name, &stock.Category, &stock.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stock{}, fmt.Errorf("%w: stock %s", shared.ErrNotFound, id)
		}
		return Stock{}, err
	}
	return stock, nil
}

func (r *Repository) ListStocks(ctx context.Context, filter ListFilter) ([]Stock, int, error) {
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)
	pattern := "%" + filter.Search + "%"
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stocks WHERE name ILIKE $1`, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, category, created_at FROM stocks
WHERE name ILIKE $1 ORDER BY name ASC LIMIT $2 OFFSET $3`, pattern, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var stocks []Stock
	for rows.Next() {
		var stock Stock
		if err := rows.Scan(&stock.ID, &stock.Name, &stock.Category, &stock.CreatedAt); err != nil {
			return nil, 0, err
		}
		stocks = append(stocks, stock)
	}
	return stocks, total, rows.Err()
}

func (r *Repository) InsertVariant(ctx context.Context, variant StockVariant) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO stock_variants (id, stock_id, name, unit, referenced, created_at)
VALUES ($1, $2, $3, $4, FALSE, NOW())`, variant.ID, variant.StockID, variant.Name, variant.Unit)
	return err
}

func (r *Repository) GetVariant(ctx context.Context, id uuid.UUID) (StockVariant, error) {
	var variant StockVariant
	err := r.pool.QueryRow(ctx, `SELECT id, stock_id, name, unit, referenced, created_at FROM stock_variants WHERE id=$1`, id).
		Scan(&variant.ID, &variant.StockID, &variant.Name, &variant.Unit, &variant.Referenced, &variant.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockVariant{}, fmt.Errorf("%w: stock variant %s", shared.ErrNotFound, id)
		}
		return StockVariant{}, err
	}
	return variant, nil
}

func (r *Repository) ListVariants(ctx context.Context, stockID uuid.UUID, filter ListFilter) ([]StockVariant, int, error) {
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)
	pattern := "%" + filter.Search + "%"
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_variants WHERE stock_id=$1 AND name ILIKE $2`, stockID, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, stock_id, name, unit, referenced, created_at FROM stock_variants
WHERE stock_id=$1 AND name ILIKE $2 ORDER BY name ASC LIMIT $3 OFFSET $4`, stockID, pattern, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var variants []StockVariant
	for rows.Next() {
		var variant StockVariant
		if err := rows.Scan(&variant.ID, &variant.StockID, &variant.Name, &variant.Unit, &variant.Referenced, &variant.CreatedAt); err != nil {
			return nil, 0, err
		}
		variants = append(variants, variant)
	}
	return variants, total, rows.Err()
}

func (r *Repository) UpdateVariantName(ctx context.Context, id uuid.UUID, name string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_variants SET name=$2 WHERE id=$1 AND referenced=FALSE`, id, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: stock variant %s", shared.ErrNotFound, id)
	}
	return nil
}

// MarkVariantReferenced joins the caller's transaction when one is
// bound to ctx, so the freeze commits with the movement that caused it.
func (r *Repository) MarkVariantReferenced(ctx context.Context, id uuid.UUID) error {
	_, err := db.FromContext(ctx, r.pool).Exec(ctx, `UPDATE stock_variants SET referenced=TRUE WHERE id=$1`, id)
	return err
}

func (r *Repository) InsertLocation(ctx context.Context, location Location) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO locations (id, name, kind, created_at) VALUES ($1, $2, $3, NOW())`,
		location.ID, location.Name, string(location.Kind))
	return err
}

func (r *Repository) GetLocation(ctx context.Context, id uuid.UUID) (Location, error) {
	var location Location
	var kind string
	err := r.pool.QueryRow(ctx, `SELECT id, name, kind, created_at FROM locations WHERE id=$1`, id).
		Scan(&location.ID, &location.Name, &kind, &location.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, fmt.Errorf("%w: location %s", shared.ErrNotFound, id)
		}
		return Location{}, err
	}
	location.Kind = LocationKind(kind)
	return location, nil
}

func (r *Repository) ListLocations(ctx context.Context, filter ListFilter) ([]Location, int, error) {
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)
	pattern := "%" + filter.Search + "%"
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM locations WHERE name ILIKE $1`, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, kind, created_at FROM locations
WHERE name ILIKE $1 ORDER BY name ASC LIMIT $2 OFFSET $3`, pattern, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var locations []Location
	for rows.Next() {
		var location Location
		var kind string
		if err := rows.Scan(&location.ID, &location.Name, &kind, &location.CreatedAt); err != nil {
			return nil, 0, err
		}
		location.Kind = LocationKind(kind)
		locations = append(locations, location)
	}
	return locations, total, rows.Err()
}

func (r *Repository) InsertSupplier(ctx context.Context, supplier Supplier) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO suppliers (id, name, contact, created_at) VALUES ($1, $2, $3, NOW())`,
		supplier.ID, supplier.Name, supplier.Contact)
	return err
}

func (r *Repository) GetSupplier(ctx context.Context, id uuid.UUID) (Supplier, error) {
	var supplier Supplier
	err := r.pool.QueryRow(ctx, `SELECT id, name, contact, created_at FROM suppliers WHERE id=$1`, id).
		Scan(&supplier.ID, &supplier.Name, &supplier.Contact, &supplier.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, fmt.Errorf("%w: supplier %s", shared.ErrNotFound, id)
		}
		return Supplier{}, err
	}
	return supplier, nil
}

func (r *Repository) ListSuppliers(ctx context.Context, filter ListFilter) ([]Supplier, int, error) {
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)
	pattern := "%" + filter.Search + "%"
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers WHERE name ILIKE $1`, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, contact, created_at FROM suppliers
WHERE name ILIKE $1 ORDER BY name ASC LIMIT $2 OFFSET $3`, pattern, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var suppliers []Supplier
	for rows.Next() {
		var supplier Supplier
		if err := rows.Scan(&supplier.ID, &supplier.Name, &supplier.Contact, &supplier.CreatedAt); err != nil {
			return nil, 0, err
		}
		suppliers = append(suppliers, supplier)
	}
	return suppliers, total, rows.Err()
}

func (r *Repository) InsertStaff(ctx context.Context, staff Staff) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO staff (id, name, role, created_at) VALUES ($1, $2, $3, NOW())`,
		staff.ID, staff.Name, staff.Role)
	return err
}

func (r *Repository) GetStaff(ctx context.Context, id uuid.UUID) (Staff, error) {
	var staff Staff
	err := r.pool.QueryRow(ctx, `SELECT id, name, role, created_at FROM staff WHERE id=$1`, id).
		Scan(&staff.ID, &staff.Name, &staff.Role, &staff.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Staff{}, fmt.Errorf("%w: staff %s", shared.ErrNotFound, id)
		}
		return Staff{}, err
	}
	return staff, nil
}
