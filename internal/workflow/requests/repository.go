package requests

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-stock/internal/platform/db"
	"github.com/meridian-pos/meridian-stock/internal/shared"
)

// Repository persists stock requests in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const requestColumns = `id, warehouse_id, location_id, stock_id, variant_id, quantity, value,
requested_by, approved_by, status, note, created_at, approved_at`

func (r *Repository) Insert(ctx context.Context, request StockRequest) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO stock_requests (`+requestColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, $9, $10, $11, NULL)`,
		request.ID, request.WarehouseID, request.LocationID, request.StockID, request.VariantID,
		request.Quantity, request.Value, request.RequestedBy, string(request.Status), request.Note, request.CreatedAt)
	return err
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (StockRequest, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM stock_requests WHERE id=$1`, id)
	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockRequest{}, fmt.Errorf("%w: request %s", shared.ErrNotFound, id)
		}
		return StockRequest{}, err
	}
	return request, nil
}

// UpdateStatus flips the row via the transaction bound to ctx when the
// caller runs inside a ledger append, so the flip and the legs commit
// together.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, actorID uuid.UUID, at time.Time) error {
	q := db.FromContext(ctx, r.pool)
	var (
		tag pgconn.CommandTag
		err error
	)
	if to == StatusApproved {
		tag, err = q.Exec(ctx, `UPDATE stock_requests SET status=$3, approved_by=$4, approved_at=$5
WHERE id=$1 AND status=$2`, id, string(from), string(to), actorID, at)
	} else {
		tag, err = q.Exec(ctx, `UPDATE stock_requests SET status=$3 WHERE id=$1 AND status=$2`,
			id, string(from), string(to))
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: request %s left status %s", shared.ErrInvalidStateTransition, id, from)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, filter Filter) ([]StockRequest, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("status=$%d", string(filter.Status))
	}
	if filter.WarehouseID != uuid.Nil {
		add("warehouse_id=$%d", filter.WarehouseID)
	}
	if filter.LocationID != uuid.Nil {
		add("location_id=$%d", filter.LocationID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT `+requestColumns+` FROM stock_requests%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []StockRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, request)
	}
	return items, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (StockRequest, error) {
	var (
		request    StockRequest
		status     string
		approvedBy *uuid.UUID
		approvedAt *time.Time
	)
	err := row.Scan(&request.ID, &request.WarehouseID, &request.LocationID, &request.StockID, &request.VariantID,
		&request.Quantity, &request.Value, &request.RequestedBy, &approvedBy, &status, &request.Note,
		&request.CreatedAt, &approvedAt)
	if err != nil {
		return StockRequest{}, err
	}
	request.Status = Status(status)
	if approvedBy != nil {
		request.ApprovedBy = *approvedBy
	}
	if approvedAt != nil {
		request.ApprovedAt = *approvedAt
	}
	return request, nil
}
