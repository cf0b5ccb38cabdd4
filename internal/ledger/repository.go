package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-stock/internal/platform/db"
	"github.com/meridian-pos/meridian-stock/internal/shared"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
// The transaction is bound to the callback's context so repositories
// resolving their querier via db.FromContext write into the same
// transaction. Serialization failures surface as shared.ErrConflict so
// the service can retry the whole operation.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(db.IntoContext(ctx, tx), &txRepo{tx: tx}); err != nil {
		if db.IsSerializationFailure(err) {
			return fmt.Errorf("%w: %v", shared.ErrConflict, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if db.IsSerializationFailure(err) {
			return fmt.Errorf("%w: %v", shared.ErrConflict, err)
		}
		return err
	}
	return nil
}

const movementColumns = `id, seq, stock_id, variant_id, location_id, movement_type, quantity, value,
prev_quantity, prev_average, new_quantity, new_average, ref_kind, ref_id, staff_id, note, occurred_at`

func (r *txRepo) GetBalanceForUpdate(ctx context.Context, locationID, variantID uuid.UUID) (Balance, error) {
	row := r.tx.QueryRow(ctx, `SELECT location_id, variant_id, quantity, average_value, last_seq, updated_at
FROM stock_balances WHERE location_id=$1 AND variant_id=$2 FOR UPDATE`, locationID, variantID)
	var balance Balance
	err := row.Scan(&balance.LocationID, &balance.VariantID, &balance.Quantity, &balance.AverageValue, &balance.LastSeq, &balance.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zeroBalance(locationID, variantID), ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return balance, nil
}

func (r *txRepo) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_balances (location_id, variant_id, quantity, average_value, last_seq, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (location_id, variant_id) DO UPDATE
SET quantity=EXCLUDED.quantity, average_value=EXCLUDED.average_value, last_seq=EXCLUDED.last_seq, updated_at=EXCLUDED.updated_at`,
		balance.LocationID, balance.VariantID, balance.Quantity, balance.AverageValue, balance.LastSeq, balance.UpdatedAt)
	return err
}

func (r *txRepo) InsertMovement(ctx context.Context, record MovementRecord) error {
	var refKind *string
	if record.RefKind != "" {
		kind := string(record.RefKind)
		refKind = &kind
	}
	var refID *uuid.UUID
	if record.RefID != uuid.Nil {
		id := record.RefID
		refID = &id
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (`+movementColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		record.ID, record.Seq, record.StockID, record.VariantID, record.LocationID, string(record.Type),
		record.Quantity, record.Value, record.PrevQuantity, record.PrevAverage, record.NewQuantity, record.NewAverage,
		refKind, refID, record.StaffID, record.Note, record.OccurredAt)
	return err
}

// GetBalance reads the materialised balance row.
func (r *Repository) GetBalance(ctx context.Context, locationID, variantID uuid.UUID) (Balance, error) {
	row := r.pool.QueryRow(ctx, `SELECT location_id, variant_id, quantity, average_value, last_seq, updated_at
FROM stock_balances WHERE location_id=$1 AND variant_id=$2`, locationID, variantID)
	var balance Balance
	err := row.Scan(&balance.LocationID, &balance.VariantID, &balance.Quantity, &balance.AverageValue, &balance.LastSeq, &balance.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zeroBalance(locationID, variantID), ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return balance, nil
}

// ListBalances returns balances, optionally scoped to one location.
func (r *Repository) ListBalances(ctx context.Context, locationID uuid.UUID) ([]Balance, error) {
	query := `SELECT location_id, variant_id, quantity, average_value, last_seq, updated_at FROM stock_balances`
	args := []any{}
	if locationID != uuid.Nil {
		query += ` WHERE location_id=$1`
		args = append(args, locationID)
	}
	query += ` ORDER BY location_id, variant_id`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var balances []Balance
	for rows.Next() {
		var balance Balance
		if err := rows.Scan(&balance.LocationID, &balance.VariantID, &balance.Quantity, &balance.AverageValue, &balance.LastSeq, &balance.UpdatedAt); err != nil {
			return nil, err
		}
		balances = append(balances, balance)
	}
	return balances, rows.Err()
}

// ListBalanceKeys returns every (location, variant) pair with ledger history.
func (r *Repository) ListBalanceKeys(ctx context.Context) ([]shared.BalanceKey, error) {
	rows, err := r.pool.Query(ctx, `SELECT location_id, variant_id FROM stock_balances ORDER BY location_id, variant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []shared.BalanceKey
	for rows.Next() {
		var key shared.BalanceKey
		if err := rows.Scan(&key.LocationID, &key.VariantID); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// MovementsForKey returns the full movement history for one key in sequence order.
func (r *Repository) MovementsForKey(ctx context.Context, locationID, variantID uuid.UUID) ([]MovementRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE location_id=$1 AND variant_id=$2 ORDER BY seq ASC`, locationID, variantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

// ListMovements returns records matching the filter, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter Filter) ([]MovementRecord, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.LocationID != uuid.Nil {
		add("location_id=$%d", filter.LocationID)
	}
	if filter.VariantID != uuid.Nil {
		add("variant_id=$%d", filter.VariantID)
	}
	if filter.StockID != uuid.Nil {
		add("stock_id=$%d", filter.StockID)
	}
	if !filter.From.IsZero() {
		add("occurred_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("occurred_at <= $%d", filter.To)
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		add("movement_type = ANY($%d)", types)
	}
	query := `SELECT ` + movementColumns + ` FROM stock_movements`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(` ORDER BY occurred_at DESC, seq DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

func scanMovements(rows pgx.Rows) ([]MovementRecord, error) {
	var records []MovementRecord
	for rows.Next() {
		var (
			record  MovementRecord
			typeStr string
			refKind *string
			refID   *uuid.UUID
		)
		if err := rows.Scan(&record.ID, &record.Seq, &record.StockID, &record.VariantID, &record.LocationID, &typeStr,
			&record.Quantity, &record.Value, &record.PrevQuantity, &record.PrevAverage, &record.NewQuantity, &record.NewAverage,
			&refKind, &refID, &record.StaffID, &record.Note, &record.OccurredAt); err != nil {
			return nil, err
		}
		record.Type = MovementType(typeStr)
		if refKind != nil {
			record.RefKind = RefKind(*refKind)
		}
		if refID != nil {
			record.RefID = *refID
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
