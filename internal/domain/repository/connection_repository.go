package repository

import (
	"context"

	"dentalink/internal/domain/entity"
)

type ConnectionRepository interface {
	ListByOwner(ctx context.Context, ownerID string) ([]*entity.Connection, error)
}
