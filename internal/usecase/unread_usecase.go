package usecase

import (
	"context"
	"log"
	"sync"

	"dentalink/internal/domain/repository"
)

// UnreadEngine folds one filtered live stream per room — messages not
// authored by the actor and not yet read — into per-room counts and a
// cached total. Updating one room's count touches only the cached values,
// never the other rooms. Rooms entering or leaving the actor's room set
// attach or tear down their stream; a torn-down room stops contributing.
type UnreadEngine struct {
	chatRepo repository.ChatRepository
	actor    string
	onChange func(roomID string, count, total int)

	mu      sync.Mutex
	counts  map[string]int
	unread  map[string]map[string]struct{}
	streams map[string]repository.MessageStream
	total   int

	roomStream repository.RoomStream
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewUnreadEngine builds an engine for one acting identity. onChange fires
// after every count movement and may be nil.
func NewUnreadEngine(chatRepo repository.ChatRepository, actor string, onChange func(roomID string, count, total int)) *UnreadEngine {
	return &UnreadEngine{
		chatRepo: chatRepo,
		actor:    actor,
		onChange: onChange,
		counts:   make(map[string]int),
		unread:   make(map[string]map[string]struct{}),
		streams:  make(map[string]repository.MessageStream),
	}
}

func (e *UnreadEngine) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	roomStream, err := e.chatRepo.SubscribeRooms(ctx, e.actor)
	if err != nil {
		cancel()
		return err
	}
	e.roomStream = roomStream

	e.wg.Add(1)
	go e.run(ctx)

	return nil
}

func (e *UnreadEngine) run(ctx context.Context) {
	defer e.wg.Done()

	for change := range e.roomStream.Changes() {
		switch change.Kind {
		case repository.ChangeAdded:
			e.watch(ctx, change.Room.ID)
		case repository.ChangeRemoved:
			e.unwatch(change.Room.ID)
		}
	}

	if err := e.roomStream.Err(); err != nil {
		log.Printf("Unread Warning: Room stream for %s stopped: %v", e.actor, err)
	}
}

func (e *UnreadEngine) watch(ctx context.Context, roomID string) {
	e.mu.Lock()
	if _, ok := e.streams[roomID]; ok {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	stream, err := e.chatRepo.SubscribeUnread(ctx, roomID, e.actor)
	if err != nil {
		log.Printf("Unread Warning: Failed to subscribe room %s for %s: %v", roomID, e.actor, err)
		return
	}

	e.mu.Lock()
	e.streams[roomID] = stream
	e.unread[roomID] = make(map[string]struct{})
	e.mu.Unlock()

	e.wg.Add(1)
	go e.consume(roomID, stream)
}

func (e *UnreadEngine) consume(roomID string, stream repository.MessageStream) {
	defer e.wg.Done()

	for change := range stream.Changes() {
		e.apply(roomID, change)
	}

	if err := stream.Err(); err != nil {
		log.Printf("Unread Warning: Stream of room %s for %s stopped: %v", roomID, e.actor, err)
	}
}

func (e *UnreadEngine) apply(roomID string, change repository.MessageChange) {
	e.mu.Lock()

	set, ok := e.unread[roomID]
	if !ok {
		// The room was unwatched while the event was in flight.
		e.mu.Unlock()
		return
	}

	switch change.Kind {
	case repository.ChangeAdded:
		set[change.Message.ID] = struct{}{}
	case repository.ChangeRemoved:
		delete(set, change.Message.ID)
	case repository.ChangeModified:
		if change.Message.Read || change.Message.AuthorID == e.actor {
			delete(set, change.Message.ID)
		} else {
			set[change.Message.ID] = struct{}{}
		}
	}

	count := len(set)
	delta := count - e.counts[roomID]
	e.counts[roomID] = count
	e.total += delta
	total := e.total

	e.mu.Unlock()

	if delta != 0 && e.onChange != nil {
		e.onChange(roomID, count, total)
	}
}

func (e *UnreadEngine) unwatch(roomID string) {
	e.mu.Lock()

	stream, ok := e.streams[roomID]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.streams, roomID)
	delete(e.unread, roomID)

	e.total -= e.counts[roomID]
	delete(e.counts, roomID)
	total := e.total

	e.mu.Unlock()

	stream.Close()

	if e.onChange != nil {
		e.onChange(roomID, 0, total)
	}
}

// Counts returns a copy of the per-room counts.
func (e *UnreadEngine) Counts() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()

	counts := make(map[string]int, len(e.counts))
	for roomID, count := range e.counts {
		counts[roomID] = count
	}
	return counts
}

func (e *UnreadEngine) Total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total
}

// SnapshotUnread computes the actor's per-room unread counts and total in
// one pass, without holding any subscription open. Used for the REST
// snapshot; live tracking goes through UnreadEngine.
func SnapshotUnread(ctx context.Context, chatRepo repository.ChatRepository, actor string) (map[string]int, int, error) {
	rooms, _, err := chatRepo.ListRoomsByParticipant(ctx, actor, 0, 0)
	if err != nil {
		return nil, 0, err
	}

	counts := make(map[string]int, len(rooms))
	total := 0
	for _, room := range rooms {
		messages, err := chatRepo.ListUnreadForeign(ctx, room.ID, actor)
		if err != nil {
			log.Printf("Failed to count unread in room %s for %s: %v", room.ID, actor, err)
			continue
		}
		if len(messages) == 0 {
			continue
		}
		counts[room.ID] = len(messages)
		total += len(messages)
	}

	return counts, total, nil
}

// Stop cancels every live subscription the engine holds.
func (e *UnreadEngine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.roomStream != nil {
		e.roomStream.Close()
	}

	e.mu.Lock()
	streams := make([]repository.MessageStream, 0, len(e.streams))
	for _, stream := range e.streams {
		streams = append(streams, stream)
	}
	e.streams = make(map[string]repository.MessageStream)
	e.mu.Unlock()

	for _, stream := range streams {
		stream.Close()
	}

	e.wg.Wait()
}
