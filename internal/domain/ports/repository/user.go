package repository

import (
	"context"

	"podcast-subscription-backend/internal/domain/model"
)

type UserRepository interface {
	// FindByID returns domain.ErrNotFound when the user does not exist.
	FindByID(ctx context.Context, id string) (*model.User, error)
}
