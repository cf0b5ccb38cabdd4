package reports

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository folds reports directly in PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs PgRepository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) MovementSummary(ctx context.Context, params MovementParams) ([]MovementTypeSummary, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if params.LocationID != uuid.Nil {
		add("location_id=$%d", params.LocationID)
	}
	if params.StockID != uuid.Nil {
		add("stock_id=$%d", params.StockID)
	}
	if !params.From.IsZero() {
		add("occurred_at >= $%d", params.From)
	}
	if !params.To.IsZero() {
		add("occurred_at < $%d", params.To)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := r.pool.Query(ctx, `SELECT movement_type, COUNT(*), COALESCE(SUM(quantity), 0), COALESCE(SUM(value), 0)
FROM stock_movements`+where+` GROUP BY movement_type ORDER BY movement_type`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MovementTypeSummary
	for rows.Next() {
		var summary MovementTypeSummary
		if err := rows.Scan(&summary.Type, &summary.Count, &summary.TotalQuantity, &summary.TotalValue); err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (r *PgRepository) PurchaseSummary(ctx context.Context, params PurchaseParams) ([]PurchaseStatusSummary, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if params.SupplierID != uuid.Nil {
		add("supplier_id=$%d", params.SupplierID)
	}
	if !params.From.IsZero() {
		add("created_at >= $%d", params.From)
	}
	if !params.To.IsZero() {
		add("created_at < $%d", params.To)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := r.pool.Query(ctx, `SELECT payment_status, COUNT(*), COALESCE(SUM(total_cost), 0), COALESCE(SUM(paid_amount), 0)
FROM stock_intake_purchases`+where+` GROUP BY payment_status ORDER BY payment_status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PurchaseStatusSummary
	for rows.Next() {
		var summary PurchaseStatusSummary
		if err := rows.Scan(&summary.PaymentStatus, &summary.Count, &summary.TotalCost, &summary.PaidAmount); err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (r *PgRepository) WorkflowCounts(ctx context.Context) (WorkflowCounts, error) {
	var counts WorkflowCounts
	var err error
	if counts.Transfers, err = r.statusCounts(ctx, "stock_transfers"); err != nil {
		return WorkflowCounts{}, err
	}
	if counts.Requests, err = r.statusCounts(ctx, "stock_requests"); err != nil {
		return WorkflowCounts{}, err
	}
	return counts, nil
}

func (r *PgRepository) statusCounts(ctx context.Context, table string) ([]StatusCount, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM `+table+` GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var count StatusCount
		if err := rows.Scan(&count.Status, &count.Count); err != nil {
			return nil, err
		}
		out = append(out, count)
	}
	return out, rows.Err()
}

func (r *PgRepository) Valuation(ctx context.Context, locationID uuid.UUID) ([]ValuationRow, error) {
	query := `SELECT location_id, variant_id, quantity, average_value
FROM stock_balances WHERE quantity > 0`
	var args []any
	if locationID != uuid.Nil {
		query += ` AND location_id=$1`
		args = append(args, locationID)
	}
	query += ` ORDER BY location_id, variant_id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ValuationRow
	for rows.Next() {
		var row ValuationRow
		if err := rows.Scan(&row.LocationID, &row.VariantID, &row.Quantity, &row.AverageValue); err != nil {
			return nil, err
		}
		row.TotalValue = row.Quantity.Mul(row.AverageValue).Round(2)
		out = append(out, row)
	}
	return out, rows.Err()
}
