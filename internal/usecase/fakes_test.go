package usecase

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"dentalink/internal/domain/entity"
	"dentalink/internal/domain/repository"
	"dentalink/pkg/errors"
)

// In-memory chat store with live subscriptions, mirroring the behavior of
// the Firestore adapter: filtered unread streams emit Removed when a
// message stops matching, and new subscriptions replay the current state
// with Initial set.

type fakeMessageStream struct {
	mu     sync.Mutex
	ch     chan repository.MessageChange
	closed bool
}

func newFakeMessageStream() *fakeMessageStream {
	return &fakeMessageStream{ch: make(chan repository.MessageChange, 64)}
}

func (s *fakeMessageStream) Changes() <-chan repository.MessageChange { return s.ch }
func (s *fakeMessageStream) Err() error                               { return nil }

func (s *fakeMessageStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *fakeMessageStream) emit(change repository.MessageChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.ch <- change
	}
}

type fakeRoomStream struct {
	mu     sync.Mutex
	ch     chan repository.RoomChange
	closed bool
}

func newFakeRoomStream() *fakeRoomStream {
	return &fakeRoomStream{ch: make(chan repository.RoomChange, 64)}
}

func (s *fakeRoomStream) Changes() <-chan repository.RoomChange { return s.ch }
func (s *fakeRoomStream) Err() error                            { return nil }

func (s *fakeRoomStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *fakeRoomStream) emit(change repository.RoomChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.ch <- change
	}
}

type unreadSub struct {
	roomID string
	reader string
	stream *fakeMessageStream
}

type roomSub struct {
	identity string
	stream   *fakeRoomStream
}

type fakeChatRepo struct {
	mu       sync.Mutex
	rooms    map[string]*entity.Room
	messages map[string][]*entity.Message
	nextID   int

	msgSubs    map[string][]*fakeMessageStream
	unreadSubs []*unreadSub
	roomSubs   []*roomSub

	createRoomErr error
	deleteErr     error
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{
		rooms:    make(map[string]*entity.Room),
		messages: make(map[string][]*entity.Message),
		msgSubs:  make(map[string][]*fakeMessageStream),
	}
}

func (r *fakeChatRepo) id(prefix string) string {
	r.nextID++
	return fmt.Sprintf("%s-%d", prefix, r.nextID)
}

func (r *fakeChatRepo) CreateRoom(ctx context.Context, room *entity.Room) error {
	r.mu.Lock()
	if r.createRoomErr != nil {
		err := r.createRoomErr
		r.mu.Unlock()
		return err
	}

	room.ID = r.id("room")
	now := time.Now()
	room.CreatedAt = now
	room.UpdatedAt = now
	stored := *room
	r.rooms[room.ID] = &stored

	subs := r.matchingRoomSubs(&stored)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.emit(repository.RoomChange{Kind: repository.ChangeAdded, Room: &stored})
	}
	return nil
}

func (r *fakeChatRepo) matchingRoomSubs(room *entity.Room) []*fakeRoomStream {
	var subs []*fakeRoomStream
	for _, sub := range r.roomSubs {
		if room.HasParticipant(sub.identity) {
			subs = append(subs, sub.stream)
		}
	}
	return subs
}

func (r *fakeChatRepo) GetRoomByID(ctx context.Context, id string) (*entity.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, errors.NotFound("Room", nil)
	}
	copied := *room
	return &copied, nil
}

func (r *fakeChatRepo) GetRoomByOrderID(ctx context.Context, orderID string) (*entity.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, room := range r.rooms {
		if room.OrderID == orderID {
			copied := *room
			return &copied, nil
		}
	}
	return nil, errors.NotFound("Room", nil)
}

func (r *fakeChatRepo) GetDirectRoom(ctx context.Context, a, b string) (*entity.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, room := range r.rooms {
		if room.OrderID == "" && room.HasParticipant(a) && room.HasParticipant(b) {
			copied := *room
			return &copied, nil
		}
	}
	return nil, errors.NotFound("Room", nil)
}

func (r *fakeChatRepo) ListRoomsByParticipant(ctx context.Context, identity string, limit, offset int) ([]*entity.Room, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rooms []*entity.Room
	for _, room := range r.rooms {
		if room.HasParticipant(identity) {
			copied := *room
			rooms = append(rooms, &copied)
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})

	total := int64(len(rooms))
	start := offset
	if start > len(rooms) {
		start = len(rooms)
	}
	end := len(rooms)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return rooms[start:end], total, nil
}

func (r *fakeChatRepo) UpdateRoomSummary(ctx context.Context, roomID string, summary repository.RoomSummary) error {
	r.mu.Lock()

	room, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound("Room", nil)
	}

	room.LastMessage = summary.LastMessage
	if summary.LastMessageAt.IsZero() {
		room.LastMessageAt = time.Now()
	} else {
		room.LastMessageAt = summary.LastMessageAt
	}
	room.UpdatedAt = time.Now()

	copied := *room
	subs := r.matchingRoomSubs(room)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.emit(repository.RoomChange{Kind: repository.ChangeModified, Room: &copied})
	}
	return nil
}

func (r *fakeChatRepo) SetTyping(ctx context.Context, roomID, identity string, typing bool) error {
	r.mu.Lock()

	room, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound("Room", nil)
	}

	if room.Typing == nil {
		room.Typing = make(map[string]bool)
	}
	room.Typing[identity] = typing

	copied := *room
	subs := r.matchingRoomSubs(room)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.emit(repository.RoomChange{Kind: repository.ChangeModified, Room: &copied})
	}
	return nil
}

func (r *fakeChatRepo) SubscribeRooms(ctx context.Context, identity string) (repository.RoomStream, error) {
	stream := newFakeRoomStream()

	r.mu.Lock()
	for _, room := range r.rooms {
		if room.HasParticipant(identity) {
			copied := *room
			stream.emit(repository.RoomChange{Kind: repository.ChangeAdded, Initial: true, Room: &copied})
		}
	}
	r.roomSubs = append(r.roomSubs, &roomSub{identity: identity, stream: stream})
	r.mu.Unlock()

	return stream, nil
}

// CreateMessage mirrors the store adapter's contract: empty messages are
// rejected, and the store-assigned commit time is written back onto the
// caller's struct.
func (r *fakeChatRepo) CreateMessage(ctx context.Context, message *entity.Message) error {
	if message.Empty() {
		return errors.BadRequest("Message has no content", nil)
	}

	r.mu.Lock()

	message.ID = r.id("msg")
	message.CreatedAt = time.Now()
	stored := *message
	r.messages[message.RoomID] = append(r.messages[message.RoomID], &stored)

	msgSubs := append([]*fakeMessageStream(nil), r.msgSubs[message.RoomID]...)
	var unreadTargets []*fakeMessageStream
	for _, sub := range r.unreadSubs {
		if sub.roomID == message.RoomID && messageUnreadFor(&stored, sub.reader) {
			unreadTargets = append(unreadTargets, sub.stream)
		}
	}
	r.mu.Unlock()

	change := repository.MessageChange{Kind: repository.ChangeAdded, Message: &stored}
	for _, sub := range msgSubs {
		sub.emit(change)
	}
	for _, sub := range unreadTargets {
		sub.emit(change)
	}
	return nil
}

func messageUnreadFor(message *entity.Message, reader string) bool {
	return !message.Read && message.AuthorID != reader
}

func (r *fakeChatRepo) ListMessages(ctx context.Context, roomID string, limit, offset int) ([]*entity.Message, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := r.messages[roomID]
	total := int64(len(stored))

	start := offset
	if start > len(stored) {
		start = len(stored)
	}
	end := len(stored)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var messages []*entity.Message
	for _, message := range stored[start:end] {
		copied := *message
		messages = append(messages, &copied)
	}
	return messages, total, nil
}

func (r *fakeChatRepo) GetNewestMessage(ctx context.Context, roomID string) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := r.messages[roomID]
	if len(stored) == 0 {
		return nil, errors.NotFound("Message", nil)
	}
	copied := *stored[len(stored)-1]
	return &copied, nil
}

func (r *fakeChatRepo) ListUnreadForeign(ctx context.Context, roomID, reader string) ([]*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var unread []*entity.Message
	for _, message := range r.messages[roomID] {
		if messageUnreadFor(message, reader) {
			copied := *message
			unread = append(unread, &copied)
		}
	}
	return unread, nil
}

func (r *fakeChatRepo) MarkMessagesRead(ctx context.Context, roomID string, messageIDs []string) error {
	ids := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		ids[id] = struct{}{}
	}

	r.mu.Lock()

	type emission struct {
		stream *fakeMessageStream
		change repository.MessageChange
	}
	var emissions []emission

	for _, message := range r.messages[roomID] {
		if _, ok := ids[message.ID]; !ok || message.Read {
			continue
		}
		wasUnreadFor := func(reader string) bool { return messageUnreadFor(message, reader) }

		for _, sub := range r.unreadSubs {
			if sub.roomID == roomID && wasUnreadFor(sub.reader) {
				left := *message
				left.Read = true
				emissions = append(emissions, emission{sub.stream, repository.MessageChange{
					Kind:    repository.ChangeRemoved,
					Message: &left,
				}})
			}
		}

		message.Read = true
		copied := *message
		for _, sub := range r.msgSubs[roomID] {
			emissions = append(emissions, emission{sub, repository.MessageChange{
				Kind:    repository.ChangeModified,
				Message: &copied,
			}})
		}
	}
	r.mu.Unlock()

	for _, e := range emissions {
		e.stream.emit(e.change)
	}
	return nil
}

func (r *fakeChatRepo) DeleteMessages(ctx context.Context, roomID string, messageIDs []string) error {
	r.mu.Lock()
	if r.deleteErr != nil {
		err := r.deleteErr
		r.mu.Unlock()
		return err
	}

	ids := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		ids[id] = struct{}{}
	}

	type emission struct {
		stream *fakeMessageStream
		change repository.MessageChange
	}
	var emissions []emission

	var kept []*entity.Message
	for _, message := range r.messages[roomID] {
		if _, ok := ids[message.ID]; !ok {
			kept = append(kept, message)
			continue
		}

		copied := *message
		change := repository.MessageChange{Kind: repository.ChangeRemoved, Message: &copied}
		for _, sub := range r.msgSubs[roomID] {
			emissions = append(emissions, emission{sub, change})
		}
		for _, sub := range r.unreadSubs {
			if sub.roomID == roomID && messageUnreadFor(message, sub.reader) {
				emissions = append(emissions, emission{sub.stream, change})
			}
		}
	}
	r.messages[roomID] = kept
	r.mu.Unlock()

	for _, e := range emissions {
		e.stream.emit(e.change)
	}
	return nil
}

func (r *fakeChatRepo) SubscribeMessages(ctx context.Context, roomID string) (repository.MessageStream, error) {
	stream := newFakeMessageStream()

	r.mu.Lock()
	for _, message := range r.messages[roomID] {
		copied := *message
		stream.emit(repository.MessageChange{Kind: repository.ChangeAdded, Initial: true, Message: &copied})
	}
	r.msgSubs[roomID] = append(r.msgSubs[roomID], stream)
	r.mu.Unlock()

	return stream, nil
}

func (r *fakeChatRepo) SubscribeUnread(ctx context.Context, roomID, reader string) (repository.MessageStream, error) {
	stream := newFakeMessageStream()

	r.mu.Lock()
	for _, message := range r.messages[roomID] {
		if messageUnreadFor(message, reader) {
			copied := *message
			stream.emit(repository.MessageChange{Kind: repository.ChangeAdded, Initial: true, Message: &copied})
		}
	}
	r.unreadSubs = append(r.unreadSubs, &unreadSub{roomID: roomID, reader: reader, stream: stream})
	r.mu.Unlock()

	return stream, nil
}

type fakeOrderRepo struct {
	orders map[string]*entity.Order
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, id string) (*entity.Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return nil, errors.NotFound("Order", nil)
	}
	copied := *order
	return &copied, nil
}

type fakeConnectionRepo struct {
	connections []*entity.Connection
}

func (r *fakeConnectionRepo) ListByOwner(ctx context.Context, ownerID string) ([]*entity.Connection, error) {
	var owned []*entity.Connection
	for _, connection := range r.connections {
		if connection.OwnerID == ownerID {
			owned = append(owned, connection)
		}
	}
	return owned, nil
}

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*entity.User
	names  map[string]string
	tokens map[string][]string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:  make(map[string]*entity.User),
		names:  make(map[string]string),
		tokens: make(map[string][]string),
	}
}

func (r *fakeUserRepo) GetByUID(ctx context.Context, uid string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[uid]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) GetDisplayName(ctx context.Context, identity string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.names[identity]
	if !ok {
		return "", errors.NotFound("User", nil)
	}
	return name, nil
}

func (r *fakeUserRepo) AddDeviceToken(ctx context.Context, uid, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[uid] = append(r.tokens[uid], token)
	return nil
}

func (r *fakeUserRepo) ListDeviceTokens(ctx context.Context, identity string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tokens[identity]...), nil
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads []string
	err     error
}

func (u *fakeUploader) UploadAttachment(ctx context.Context, roomID string, ordinal int64, fileName, mimeType string, content io.Reader) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	url := fmt.Sprintf("https://blobs.test/%s/%d-%s", roomID, ordinal, fileName)
	u.uploads = append(u.uploads, url)
	return url, nil
}

type notification struct {
	identity string
	title    string
	body     string
	data     map[string]string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *fakeNotifier) Notify(ctx context.Context, identity, title, body string, data map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{identity: identity, title: title, body: body, data: data})
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *fakeNotifier) last() notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[len(n.sent)-1]
}

type fakeVisibility struct {
	mu         sync.Mutex
	foreground bool
}

func (v *fakeVisibility) IsForeground(identity string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.foreground
}

func (v *fakeVisibility) setForeground(foreground bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.foreground = foreground
}
