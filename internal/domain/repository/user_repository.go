package repository

import (
	"context"

	"dentalink/internal/domain/entity"
)

type UserRepository interface {
	GetByUID(ctx context.Context, uid string) (*entity.User, error)
	// GetDisplayName resolves the display label of an acting identity,
	// personal or company.
	GetDisplayName(ctx context.Context, identity string) (string, error)
	AddDeviceToken(ctx context.Context, uid, token string) error
	// ListDeviceTokens collects the push tokens of every account acting under
	// the given identity (the account itself plus company staff).
	ListDeviceTokens(ctx context.Context, identity string) ([]string, error)
}
