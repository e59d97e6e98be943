package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"podcast-subscription-backend/internal/domain"
	"podcast-subscription-backend/internal/domain/model"
	"podcast-subscription-backend/internal/domain/ports/repository"
)

// Ensure userRepo implements repository.UserRepository
var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	const q = `SELECT doc FROM users WHERE id=$1;`

	var raw []byte
	if err := r.pool.QueryRow(ctx, q, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrOperationFailed
	}

	var u model.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, domain.ErrOperationFailed
	}
	if u.Deleted {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}
