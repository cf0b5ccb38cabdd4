package purchases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-stock/internal/platform/db"
	"github.com/meridian-pos/meridian-stock/internal/shared"
)

// Repository persists purchases and their lines in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const purchaseColumns = `id, supplier_id, location_id, status, payment_status, total_cost, paid_amount,
delivery_date, notes, created_by, received_by, created_at, received_at`

func (r *Repository) Insert(ctx context.Context, purchase Purchase) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO stock_intake_purchases (`+purchaseColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, $11, NULL)`,
		purchase.ID, purchase.SupplierID, purchase.LocationID, string(purchase.Status), string(purchase.PaymentStatus),
		purchase.TotalCost, purchase.PaidAmount, purchase.DeliveryDate, purchase.Notes, purchase.CreatedBy, purchase.CreatedAt)
	if err != nil {
		return err
	}
	for _, line := range purchase.Lines {
		_, err = tx.Exec(ctx, `INSERT INTO stock_intake_purchase_lines (id, purchase_id, stock_id, variant_id, quantity, unit_cost)
VALUES ($1, $2, $3, $4, $5, $6)`,
			line.ID, purchase.ID, line.StockID, line.VariantID, line.Quantity, line.UnitCost)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Purchase, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM stock_intake_purchases WHERE id=$1`, id)
	purchase, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, fmt.Errorf("%w: purchase %s", shared.ErrNotFound, id)
		}
		return Purchase{}, err
	}
	purchase.Lines, err = r.lines(ctx, id)
	if err != nil {
		return Purchase{}, err
	}
	return purchase, nil
}

// MarkReceived flips the row via the transaction bound to ctx when the
// caller runs inside a ledger append, so the flip and the intake
// entries commit together.
func (r *Repository) MarkReceived(ctx context.Context, id uuid.UUID, actorID uuid.UUID, at time.Time) error {
	tag, err := db.FromContext(ctx, r.pool).Exec(ctx, `UPDATE stock_intake_purchases SET status=$2, received_by=$3, received_at=$4
WHERE id=$1 AND status=$5`, id, string(StatusReceived), actorID, at, string(StatusDraft))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: purchase %s is not in draft", shared.ErrInvalidStateTransition, id)
	}
	return nil
}

func (r *Repository) UpdatePayment(ctx context.Context, id uuid.UUID, paid decimal.Decimal, status PaymentStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_intake_purchases SET paid_amount=$2, payment_status=$3 WHERE id=$1`,
		id, paid, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: purchase %s", shared.ErrNotFound, id)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, filter Filter) ([]Purchase, int, error) {
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
	if filter.PaymentStatus != "" {
		add("payment_status=$%d", string(filter.PaymentStatus))
	}
	if filter.SupplierID != uuid.Nil {
		add("supplier_id=$%d", filter.SupplierID)
	}
	if filter.LocationID != uuid.Nil {
		add("location_id=$%d", filter.LocationID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_intake_purchases`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`SELECT `+purchaseColumns+` FROM stock_intake_purchases%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var purchases []Purchase
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, 0, err
		}
		purchases = append(purchases, purchase)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range purchases {
		if purchases[i].Lines, err = r.lines(ctx, purchases[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return purchases, total, nil
}

func (r *Repository) lines(ctx context.Context, purchaseID uuid.UUID) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, stock_id, variant_id, quantity, unit_cost
FROM stock_intake_purchase_lines WHERE purchase_id=$1 ORDER BY id`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.StockID, &line.VariantID, &line.Quantity, &line.UnitCost); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row rowScanner) (Purchase, error) {
	var (
		purchase   Purchase
		status     string
		payStatus  string
		receivedBy *uuid.UUID
		receivedAt *time.Time
	)
	err := row.Scan(&purchase.ID, &purchase.SupplierID, &purchase.LocationID, &status, &payStatus,
		&purchase.TotalCost, &purchase.PaidAmount, &purchase.DeliveryDate, &purchase.Notes,
		&purchase.CreatedBy, &receivedBy, &purchase.CreatedAt, &receivedAt)
	if err != nil {
		return Purchase{}, err
	}
	purchase.Status = Status(status)
	purchase.PaymentStatus = PaymentStatus(payStatus)
	if receivedBy != nil {
		purchase.ReceivedBy = *receivedBy
	}
	if receivedAt != nil {
		purchase.ReceivedAt = *receivedAt
	}
	return purchase, nil
}
