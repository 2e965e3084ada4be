package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dentalink/internal/domain/entity"
	"dentalink/internal/domain/repository"
	"dentalink/pkg/errors"
)

type firestoreUserRepository struct {
	client *firestore.Client
}

func NewFirestoreUserRepository(client *firestore.Client) repository.UserRepository {
	return &firestoreUserRepository{
		client: client,
	}
}

func (r *firestoreUserRepository) GetByUID(ctx context.Context, uid string) (*entity.User, error) {
	doc, err := r.client.Collection("users").Doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("User", nil)
		}
		return nil, errors.Internal("Failed to get user", err)
	}

	var user entity.User
	if err := doc.DataTo(&user); err != nil {
		return nil, errors.Internal("Failed to parse user data", err)
	}
	user.UID = doc.Ref.ID

	return &user, nil
}

func (r *firestoreUserRepository) GetDisplayName(ctx context.Context, identity string) (string, error) {
	user, err := r.GetByUID(ctx, identity)
	if err == nil {
		return user.ActingName(), nil
	}
	if !errors.Is(err, "NOT_FOUND") {
		return "", err
	}

	// Company identities live in their own collection.
	doc, err := r.client.Collection("companies").Doc(identity).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", errors.NotFound("Identity", nil)
		}
		return "", errors.Internal("Failed to get company", err)
	}

	name, err := doc.DataAt("name")
	if err != nil {
		return "", errors.Internal("Failed to parse company data", err)
	}
	label, _ := name.(string)

	return label, nil
}

func (r *firestoreUserRepository) AddDeviceToken(ctx context.Context, uid, token string) error {
	_, err := r.client.Collection("users").Doc(uid).Update(ctx, []firestore.Update{
		{Path: "deviceTokens", Value: firestore.ArrayUnion(token)},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("User", err)
		}
		return errors.Internal("Failed to register device token", err)
	}

	return nil
}

func (r *firestoreUserRepository) ListDeviceTokens(ctx context.Context, identity string) ([]string, error) {
	var tokens []string

	user, err := r.GetByUID(ctx, identity)
	if err == nil {
		tokens = append(tokens, user.DeviceTokens...)
	} else if !errors.Is(err, "NOT_FOUND") {
		return nil, err
	}

	// Staff accounts acting under a company identity receive its
	// notifications too.
	docs, err := r.client.Collection("users").
		Where("companyId", "==", identity).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Internal("Failed to query staff device tokens", err)
	}

	for _, doc := range docs {
		var staff entity.User
		if err := doc.DataTo(&staff); err != nil {
			continue
		}
		tokens = append(tokens, staff.DeviceTokens...)
	}

	return tokens, nil
}
