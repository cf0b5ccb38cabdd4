package transfers

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

// Repository persists transfers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const transferColumns = `id, from_location_id, to_location_id, stock_id, variant_id, quantity, value,
requested_by, approved_by, status, note, created_at, approved_at`

func (r *Repository) Insert(ctx context.Context, transfer Transfer) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO stock_transfers (`+transferColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, $9, $10, $11, NULL)`,
		transfer.ID, transfer.FromLocationID, transfer.ToLocationID, transfer.StockID, transfer.VariantID,
		transfer.Quantity, transfer.Value, transfer.RequestedBy, string(transfer.Status), transfer.Note, transfer.CreatedAt)
	return err
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Transfer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM stock_transfers WHERE id=$1`, id)
	transfer, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, fmt.Errorf("%w: transfer %s", shared.ErrNotFound, id)
		}
		return Transfer{}, err
	}
	return transfer, nil
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
		tag, err = q.Exec(ctx, `UPDATE stock_transfers SET status=$3, approved_by=$4, approved_at=$5
WHERE id=$1 AND status=$2`, id, string(from), string(to), actorID, at)
	} else {
		tag, err = q.Exec(ctx, `UPDATE stock_transfers SET status=$3 WHERE id=$1 AND status=$2`,
			id, string(from), string(to))
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: transfer %s left status %s", shared.ErrInvalidStateTransition, id, from)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, filter Filter) ([]Transfer, int, error) {
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
	if filter.FromLocationID != uuid.Nil {
		add("from_location_id=$%d", filter.FromLocationID)
	}
	if filter.ToLocationID != uuid.Nil {
		add("to_location_id=$%d", filter.ToLocationID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_transfers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT `+transferColumns+` FROM stock_transfers%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var transfers []Transfer
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, err
		}
		transfers = append(transfers, transfer)
	}
	return transfers, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (Transfer, error) {
	var (
		transfer   Transfer
		status     string
		approvedBy *uuid.UUID
		approvedAt *time.Time
	)
	err := row.Scan(&transfer.ID, &transfer.FromLocationID, &transfer.ToLocationID, &transfer.StockID, &transfer.VariantID,
		&transfer.Quantity, &transfer.Value, &transfer.RequestedBy, &approvedBy, &status, &transfer.Note,
		&transfer.CreatedAt, &approvedAt)
	if err != nil {
		return Transfer{}, err
	}
	transfer.Status = Status(status)
	if approvedBy != nil {
		transfer.ApprovedBy = *approvedBy
	}
	if approvedAt != nil {
		transfer.ApprovedAt = *approvedAt
	}
	return transfer, nil
}
