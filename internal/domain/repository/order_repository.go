package repository

import (
	"context"

	"dentalink/internal/domain/entity"
)

type OrderRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Order, error)
}
