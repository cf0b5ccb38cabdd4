package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-stock/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByID(ctx context.Context, clientID string) (*Client, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByID fetches an API client by its public id.
func (r *PGRepository) FindByID(ctx context.Context, clientID string) (*Client, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, secret_hash, is_active, created_at, updated_at
FROM api_clients WHERE id=$1`, clientID)
	var client Client
	err := row.Scan(&client.ID, &client.Name, &client.SecretHash, &client.IsActive, &client.CreatedAt, &client.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &client, nil
}

var _ Repository = (*PGRepository)(nil)
