package repository

import (
	"context"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dentalink/internal/domain/entity"
	"dentalink/internal/domain/repository"
	"dentalink/pkg/errors"
)

type firestoreChatRepository struct {
	client *firestore.Client
}

func NewFirestoreChatRepository(client *firestore.Client) repository.ChatRepository {
	return &firestoreChatRepository{
		client: client,
	}
}

func (r *firestoreChatRepository) rooms() *firestore.CollectionRef {
	return r.client.Collection("rooms")
}

func (r *firestoreChatRepository) messages(roomID string) *firestore.CollectionRef {
	return r.rooms().Doc(roomID).Collection("messages")
}

func (r *firestoreChatRepository) CreateRoom(ctx context.Context, room *entity.Room) error {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}

	now := time.Now()
	room.CreatedAt = now
	room.UpdatedAt = now
	if room.LastMessageAt.IsZero() {
		// Placeholder until the first message lands.
		room.LastMessageAt = now
	}
	if room.Typing == nil {
		room.Typing = make(map[string]bool)
	}

	_, err := r.rooms().Doc(room.ID).Set(ctx, room)
	if err != nil {
		return errors.Internal("Failed to create room", err)
	}

	return nil
}

func (r *firestoreChatRepository) GetRoomByID(ctx context.Context, id string) (*entity.Room, error) {
	doc, err := r.rooms().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Room", nil)
		}
		return nil, errors.Internal("Failed to get room", err)
	}

	var room entity.Room
	if err := doc.DataTo(&room); err != nil {
		return nil, errors.Internal("Failed to parse room data", err)
	}
	room.ID = doc.Ref.ID

	return &room, nil
}

func (r *firestoreChatRepository) GetRoomByOrderID(ctx context.Context, orderID string) (*entity.Room, error) {
	iter := r.rooms().Where("orderId", "==", orderID).Limit(1).Documents(ctx)
	doc, err := iter.Next()
	if err != nil {
		if err == iterator.Done {
			return nil, errors.NotFound("Room for order", nil)
		}
		return nil, errors.Internal("Failed to query room by order", err)
	}

	var room entity.Room
	if err := doc.DataTo(&room); err != nil {
		return nil, errors.Internal("Failed to parse room data", err)
	}
	room.ID = doc.Ref.ID

	return &room, nil
}

func (r *firestoreChatRepository) GetDirectRoom(ctx context.Context, a, b string) (*entity.Room, error) {
	docs, err := r.rooms().Where("participants", "array-contains", a).Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Internal("Failed to query direct room", err)
	}

	for _, doc := range docs {
		var room entity.Room
		if err := doc.DataTo(&room); err != nil {
			continue
		}
		if room.OrderID != "" {
			continue
		}
		if len(room.Participants) == 2 && room.HasParticipant(a) && room.HasParticipant(b) {
			room.ID = doc.Ref.ID
			return &room, nil
		}
	}

	return nil, errors.NotFound("Direct room", nil)
}

func (r *firestoreChatRepository) ListRoomsByParticipant(ctx context.Context, identity string, limit, offset int) ([]*entity.Room, int64, error) {
	query := r.rooms().Where("participants", "array-contains", identity).OrderBy("updatedAt", firestore.Desc)

	allDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		log.Printf("Firestore error while fetching rooms for %s: %v", identity, err)
		return nil, 0, errors.Internal("Failed to fetch rooms", err)
	}

	total := int64(len(allDocs))

	start := offset
	if start > len(allDocs) {
		start = len(allDocs)
	}
	end := len(allDocs)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var rooms []*entity.Room
	for i := start; i < end; i++ {
		var room entity.Room
		if err := allDocs[i].DataTo(&room); err != nil {
			log.Printf("Error parsing room data for %s: %v", identity, err)
			continue
		}
		room.ID = allDocs[i].Ref.ID
		rooms = append(rooms, &room)
	}

	return rooms, total, nil
}

func (r *firestoreChatRepository) UpdateRoomSummary(ctx context.Context, roomID string, summary repository.RoomSummary) error {
	var at interface{} = summary.LastMessageAt
	if summary.LastMessageAt.IsZero() {
		at = firestore.ServerTimestamp
	}

	_, err := r.rooms().Doc(roomID).Update(ctx, []firestore.Update{
		{Path: "lastMessage", Value: summary.LastMessage},
		{Path: "lastMessageAt", Value: at},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Room", err)
		}
		return errors.Internal("Failed to update room summary", err)
	}

	return nil
}

func (r *firestoreChatRepository) SetTyping(ctx context.Context, roomID, identity string, typing bool) error {
	_, err := r.rooms().Doc(roomID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"typing", identity}, Value: typing},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Room", err)
		}
		return errors.Internal("Failed to update typing flag", err)
	}

	return nil
}

func (r *firestoreChatRepository) CreateMessage(ctx context.Context, message *entity.Message) error {
	if message.Empty() {
		return errors.BadRequest("Message has no content", nil)
	}
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	wr, err := r.messages(message.RoomID).Doc(message.ID).Set(ctx, message)
	if err != nil {
		return errors.Internal("Failed to create message", err)
	}

	// CreatedAt is a server timestamp; the struct still holds the zero
	// sentinel after the write. Fill it from the commit time so callers
	// return the stored value, not the sentinel.
	message.CreatedAt = wr.UpdateTime

	return nil
}

func (r *firestoreChatRepository) ListMessages(ctx context.Context, roomID string, limit, offset int) ([]*entity.Message, int64, error) {
	query := r.messages(roomID).OrderBy("createdAt", firestore.Asc)

	allDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		log.Printf("Firestore error while fetching messages for room %s: %v", roomID, err)
		return nil, 0, errors.Internal("Failed to fetch messages", err)
	}

	total := int64(len(allDocs))

	start := offset
	if start > len(allDocs) {
		start = len(allDocs)
	}
	end := len(allDocs)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var messages []*entity.Message
	for i := start; i < end; i++ {
		var message entity.Message
		if err := allDocs[i].DataTo(&message); err != nil {
			log.Printf("Error parsing message data for room %s: %v", roomID, err)
			continue
		}
		message.ID = allDocs[i].Ref.ID
		messages = append(messages, &message)
	}

	return messages, total, nil
}

func (r *firestoreChatRepository) GetNewestMessage(ctx context.Context, roomID string) (*entity.Message, error) {
	iter := r.messages(roomID).OrderBy("createdAt", firestore.Desc).Limit(1).Documents(ctx)
	doc, err := iter.Next()
	if err != nil {
		if err == iterator.Done {
			return nil, errors.NotFound("Message", nil)
		}
		return nil, errors.Internal("Failed to query newest message", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	message.ID = doc.Ref.ID

	return &message, nil
}

func (r *firestoreChatRepository) ListUnreadForeign(ctx context.Context, roomID, reader string) ([]*entity.Message, error) {
	docs, err := r.messages(roomID).
		Where("read", "==", false).
		Where("authorId", "!=", reader).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Internal("Failed to query unread messages", err)
	}

	var messages []*entity.Message
	for _, doc := range docs {
		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			continue
		}
		message.ID = doc.Ref.ID
		messages = append(messages, &message)
	}

	return messages, nil
}

func (r *firestoreChatRepository) MarkMessagesRead(ctx context.Context, roomID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	batch := r.client.Batch()
	for _, id := range messageIDs {
		batch.Update(r.messages(roomID).Doc(id), []firestore.Update{
			{Path: "read", Value: true},
		})
	}

	if _, err := batch.Commit(ctx); err != nil {
		return errors.Internal("Failed to mark messages read", err)
	}

	return nil
}

func (r *firestoreChatRepository) DeleteMessages(ctx context.Context, roomID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	batch := r.client.Batch()
	for _, id := range messageIDs {
		batch.Delete(r.messages(roomID).Doc(id))
	}

	if _, err := batch.Commit(ctx); err != nil {
		return errors.Internal("Failed to delete messages", err)
	}

	return nil
}

func (r *firestoreChatRepository) SubscribeMessages(ctx context.Context, roomID string) (repository.MessageStream, error) {
	query := r.messages(roomID).OrderBy("createdAt", firestore.Asc)
	return newMessageStream(ctx, query, roomID), nil
}

func (r *firestoreChatRepository) SubscribeUnread(ctx context.Context, roomID, reader string) (repository.MessageStream, error) {
	query := r.messages(roomID).
		Where("read", "==", false).
		Where("authorId", "!=", reader)
	return newMessageStream(ctx, query, roomID), nil
}

func (r *firestoreChatRepository) SubscribeRooms(ctx context.Context, identity string) (repository.RoomStream, error) {
	query := r.rooms().Where("participants", "array-contains", identity)
	return newRoomStream(ctx, query, identity), nil
}
