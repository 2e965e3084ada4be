package repository

import (
	"context"

	"cloud.google.com/go/firestore"

	"dentalink/internal/domain/entity"
	"dentalink/internal/domain/repository"
	"dentalink/pkg/errors"
)

type firestoreConnectionRepository struct {
	client *firestore.Client
}

func NewFirestoreConnectionRepository(client *firestore.Client) repository.ConnectionRepository {
	return &firestoreConnectionRepository{
		client: client,
	}
}

func (r *firestoreConnectionRepository) ListByOwner(ctx context.Context, ownerID string) ([]*entity.Connection, error) {
	docs, err := r.client.Collection("connections").
		Where("ownerId", "==", ownerID).
		OrderBy("displayName", firestore.Asc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Internal("Failed to query connections", err)
	}

	var connections []*entity.Connection
	for _, doc := range docs {
		var connection entity.Connection
		if err := doc.DataTo(&connection); err != nil {
			continue
		}
		connection.ID = doc.Ref.ID
		connections = append(connections, &connection)
	}

	return connections, nil
}
