package repository

import (
	"context"
	"time"

	"dentalink/internal/domain/entity"
)

type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeModified
	ChangeRemoved
)

// MessageChange is one typed diff from a live message subscription.
// Initial marks entries delivered with the first snapshot, i.e. messages
// that already existed when the subscription started.
type MessageChange struct {
	Kind    ChangeKind
	Initial bool
	Message *entity.Message
}

// RoomChange is one typed diff from a live room-list subscription.
type RoomChange struct {
	Kind    ChangeKind
	Initial bool
	Room    *entity.Room
}

// MessageStream is a cancellable live subscription handle. The owner must
// call Close when done; leaked streams are a correctness bug, not just a
// resource leak. Changes is closed after a failure or Close; Err reports
// the failure, if any.
type MessageStream interface {
	Changes() <-chan MessageChange
	Err() error
	Close()
}

type RoomStream interface {
	Changes() <-chan RoomChange
	Err() error
	Close()
}

// RoomSummary is the denormalized last-message state kept on the room record.
// A zero LastMessageAt means the store assigns the time at commit.
type RoomSummary struct {
	LastMessage   string
	LastMessageAt time.Time
}

type ChatRepository interface {
	CreateRoom(ctx context.Context, room *entity.Room) error
	GetRoomByID(ctx context.Context, id string) (*entity.Room, error)
	GetRoomByOrderID(ctx context.Context, orderID string) (*entity.Room, error)
	// GetDirectRoom finds the non-order-linked room for the unordered pair.
	GetDirectRoom(ctx context.Context, a, b string) (*entity.Room, error)
	ListRoomsByParticipant(ctx context.Context, identity string, limit, offset int) ([]*entity.Room, int64, error)
	UpdateRoomSummary(ctx context.Context, roomID string, summary RoomSummary) error
	SetTyping(ctx context.Context, roomID, identity string, typing bool) error
	SubscribeRooms(ctx context.Context, identity string) (RoomStream, error)

	CreateMessage(ctx context.Context, message *entity.Message) error
	ListMessages(ctx context.Context, roomID string, limit, offset int) ([]*entity.Message, int64, error)
	GetNewestMessage(ctx context.Context, roomID string) (*entity.Message, error)
	// ListUnreadForeign returns unread messages authored by anyone but reader.
	ListUnreadForeign(ctx context.Context, roomID, reader string) ([]*entity.Message, error)
	MarkMessagesRead(ctx context.Context, roomID string, messageIDs []string) error
	// DeleteMessages removes the batch atomically: all or nothing.
	DeleteMessages(ctx context.Context, roomID string, messageIDs []string) error
	SubscribeMessages(ctx context.Context, roomID string) (MessageStream, error)
	SubscribeUnread(ctx context.Context, roomID, reader string) (MessageStream, error)
}
