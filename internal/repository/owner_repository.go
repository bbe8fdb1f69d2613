package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// OwnerRepository defines persistence access for tenant owner accounts.
type OwnerRepository interface {
	Create(ctx context.Context, owner *domain.Owner) error
	GetByID(ctx context.Context, id string) (*domain.Owner, error)
	GetByEmail(ctx context.Context, email string) (*domain.Owner, error)
}

type ownerRepository struct {
	pool *pgxpool.Pool
}

// NewOwnerRepository returns a Postgres-backed implementation.
func NewOwnerRepository(pool *pgxpool.Pool) OwnerRepository {
	return &ownerRepository{pool: pool}
}

func (r *ownerRepository) Create(ctx context.Context, owner *domain.Owner) error {
	const query = `
        INSERT INTO owners (name, email, password_hash)
        VALUES ($1, $2, $3)
        RETURNING id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		owner.Name,
		owner.Email,
		owner.PasswordHash,
	).Scan(&owner.ID, &owner.CreatedAt, &owner.UpdatedAt)
}

func (r *ownerRepository) GetByID(ctx context.Context, id string) (*domain.Owner, error) {
	const query = `
        SELECT id, name, email, password_hash, created_at, updated_at
        FROM owners WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ownerRepository) GetByEmail(ctx context.Context, email string) (*domain.Owner, error) {
	const query = `
        SELECT id, name, email, password_hash, created_at, updated_at
        FROM owners WHERE email=$1`
	return r.fetchSingle(ctx, query, email)
}

func (r *ownerRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Owner, error) {
	var owner domain.Owner
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&owner.ID,
		&owner.Name,
		&owner.Email,
		&owner.PasswordHash,
		&owner.CreatedAt,
		&owner.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &owner, nil
}
