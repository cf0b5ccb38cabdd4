package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WorkflowModule names the workflow owning an idempotency claim.
type WorkflowModule string

const (
	ModuleTransfers WorkflowModule = "transfers"
	ModuleRequests  WorkflowModule = "stock_requests"
	ModulePurchases WorkflowModule = "purchases"
)

// KeyRetention is how long consumed claims stay in the table before the
// cleanup job prunes them. A claim only guards the window between
// emission and the status flip; anything this old is a settled workflow.
const KeyRetention = 30 * 24 * time.Hour

// ErrIdempotencyConflict indicates the claim was already taken.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// ApprovalKey builds the claim key guarding one workflow action on one
// row, e.g. "transfers:approve:<id>".
func ApprovalKey(module WorkflowModule, action string, id uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", module, action, id)
}

// IdempotencyStore persists workflow claims in idempotency_keys.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// CheckAndInsert claims key for module. A duplicate insert reports
// ErrIdempotencyConflict so the caller can refuse the repeat action.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key string, module WorkflowModule) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`,
		key, string(module), time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Cleanup removes claims older than the given retention; zero or
// negative falls back to KeyRetention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	if olderThan <= 0 {
		olderThan = KeyRetention
	}
	cutoff := time.Now().Add(-olderThan)
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}

// Delete releases a claim, used when the guarded emission failed and a
// retry must be allowed.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key)
	return err
}
