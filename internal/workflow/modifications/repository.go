package modifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-stock/internal/platform/db"
	"github.com/meridian-pos/meridian-stock/internal/shared"
)

// Repository persists modifications in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const modificationColumns = `id, location_id, stock_id, variant_id, quantity, value, reason, note, created_by, created_at`

// Insert writes the row via the transaction bound to ctx when the
// caller runs inside a ledger append, so the row and the ledger entry
// commit together.
func (r *Repository) Insert(ctx context.Context, modification Modification) error {
	_, err := db.FromContext(ctx, r.pool).Exec(ctx, `INSERT INTO stock_modifications (`+modificationColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		modification.ID, modification.LocationID, modification.StockID, modification.VariantID,
		modification.Quantity, modification.Value, string(modification.Reason), modification.Note,
		modification.CreatedBy, modification.CreatedAt)
	return err
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Modification, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+modificationColumns+` FROM stock_modifications WHERE id=$1`, id)
	modification, err := scanModification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Modification{}, fmt.Errorf("%w: modification %s", shared.ErrNotFound, id)
		}
		return Modification{}, err
	}
	return modification, nil
}

func (r *Repository) List(ctx context.Context, filter Filter) ([]Modification, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Reason != "" {
		add("reason=$%d", string(filter.Reason))
	}
	if filter.LocationID != uuid.Nil {
		add("location_id=$%d", filter.LocationID)
	}
	if filter.VariantID != uuid.Nil {
		add("variant_id=$%d", filter.VariantID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_modifications`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT `+modificationColumns+` FROM stock_modifications%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Modification
	for rows.Next() {
		modification, err := scanModification(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, modification)
	}
	return items, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModification(row rowScanner) (Modification, error) {
	var (
		modification Modification
		reason       string
		createdAt    time.Time
	)
	err := row.Scan(&modification.ID, &modification.LocationID, &modification.StockID, &modification.VariantID,
		&modification.Quantity, &modification.Value, &reason, &modification.Note, &modification.CreatedBy, &createdAt)
	if err != nil {
		return Modification{}, err
	}
	modification.Reason = Reason(reason)
	modification.CreatedAt = createdAt
	return modification, nil
}
