package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"dentalink/internal/domain/repository"
	"dentalink/internal/infrastructure/ratelimit"
	"dentalink/internal/usecase"
	"dentalink/pkg/logger"
)

// Inbound frame types.
const (
	frameTypePing      = "ping"
	frameTypePresence  = "presence"
	frameTypeJoinRoom  = "join_room"
	frameTypeLeaveRoom = "leave_room"
	frameTypeTyping    = "typing"
)

// Outbound frame types.
const (
	frameTypePong            = "pong"
	frameTypeMessageAdded    = "message_added"
	frameTypeMessageModified = "message_modified"
	frameTypeMessageRemoved  = "message_removed"
	frameTypeRoomUpdated     = "room_updated"
	frameTypeRoomRemoved     = "room_removed"
	frameTypeUnreadUpdate    = "unread_update"
	frameTypeError           = "error"
)

type frame struct {
	Type   string          `json:"type"`
	RoomID string          `json:"room_id,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type outboundFrame struct {
	Type   string      `json:"type"`
	RoomID string      `json:"room_id,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

type presenceData struct {
	Foreground bool `json:"foreground"`
}

type typingData struct {
	Typing bool `json:"typing"`
}

type unreadData struct {
	Count int `json:"count"`
	Total int `json:"total"`
}

// MessageObserver receives every live diff of an open room, after it has
// been relayed to the identity's tabs. The notification dispatcher hangs
// off this hook.
type MessageObserver interface {
	OnMessageChange(ctx context.Context, actor, roomID string, change repository.MessageChange)
}

// SessionHub owns the live store subscriptions of every connected
// identity: one room-list stream and one unread engine per identity, plus
// one message stream per joined room. Everything is torn down when the
// identity's last tab disconnects — a leaked stream would keep feeding
// stale unread counts and duplicate notifications.
type SessionHub struct {
	chatRepo  repository.ChatRepository
	messages  *usecase.MessageService
	typing    *usecase.TypingTracker
	limiter   *ratelimit.RateLimiter
	observers []MessageObserver

	manager *Manager
	ctx     context.Context

	mu       sync.Mutex
	sessions map[string]*identitySession
}

type identitySession struct {
	actor  string
	ctx    context.Context
	cancel context.CancelFunc
	engine *usecase.UnreadEngine
	rooms  repository.RoomStream

	mu      sync.Mutex
	watches map[string]*roomWatch
	joined  map[*Client]map[string]struct{}
}

type roomWatch struct {
	stream repository.MessageStream
	refs   int
}

func NewSessionHub(
	chatRepo repository.ChatRepository,
	messages *usecase.MessageService,
	typing *usecase.TypingTracker,
	limiter *ratelimit.RateLimiter,
) *SessionHub {
	return &SessionHub{
		chatRepo: chatRepo,
		messages: messages,
		typing:   typing,
		limiter:  limiter,
		sessions: make(map[string]*identitySession),
	}
}

func (h *SessionHub) Start(ctx context.Context) {
	h.ctx = ctx
}

// AddObserver registers a consumer of live message diffs.
func (h *SessionHub) AddObserver(observer MessageObserver) {
	h.observers = append(h.observers, observer)
}

func (h *SessionHub) identityOnline(actor string) {
	ctx, cancel := context.WithCancel(h.ctx)

	session := &identitySession{
		actor:   actor,
		ctx:     ctx,
		cancel:  cancel,
		watches: make(map[string]*roomWatch),
		joined:  make(map[*Client]map[string]struct{}),
	}

	session.engine = usecase.NewUnreadEngine(h.chatRepo, actor, func(roomID string, count, total int) {
		h.send(actor, outboundFrame{
			Type:   frameTypeUnreadUpdate,
			RoomID: roomID,
			Data:   unreadData{Count: count, Total: total},
		})
	})
	if err := session.engine.Start(ctx); err != nil {
		logger.Error("Failed to start unread engine for %s: %v", actor, err)
	}

	rooms, err := h.chatRepo.SubscribeRooms(ctx, actor)
	if err != nil {
		logger.Error("Failed to subscribe room list for %s: %v", actor, err)
	} else {
		session.rooms = rooms
		go h.relayRooms(session)
	}

	h.mu.Lock()
	h.sessions[actor] = session
	h.mu.Unlock()
}

func (h *SessionHub) identityOffline(actor string) {
	h.mu.Lock()
	session, ok := h.sessions[actor]
	if ok {
		delete(h.sessions, actor)
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	session.cancel()
	session.engine.Stop()
	if session.rooms != nil {
		session.rooms.Close()
	}

	session.mu.Lock()
	for roomID, watch := range session.watches {
		watch.stream.Close()
		delete(session.watches, roomID)
	}
	session.mu.Unlock()
}

func (h *SessionHub) relayRooms(session *identitySession) {
	for change := range session.rooms.Changes() {
		frameType := frameTypeRoomUpdated
		if change.Kind == repository.ChangeRemoved {
			frameType = frameTypeRoomRemoved
		}
		h.send(session.actor, outboundFrame{
			Type:   frameType,
			RoomID: change.Room.ID,
			Data:   change.Room,
		})
	}

	if err := session.rooms.Err(); err != nil {
		logger.Warn("Room list stream for %s stopped: %v", session.actor, err)
	}
}

func (h *SessionHub) handleFrame(client *Client, payload []byte) {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		logger.Warn("Bad frame from client %s: %v", client.UID, err)
		h.sendError(client, "Invalid frame")
		return
	}

	switch f.Type {
	case frameTypePing:
		h.sendTo(client, outboundFrame{Type: frameTypePong})

	case frameTypePresence:
		var data presenceData
		if err := json.Unmarshal(f.Data, &data); err != nil {
			h.sendError(client, "Invalid presence frame")
			return
		}
		client.setForeground(data.Foreground)

	case frameTypeJoinRoom:
		if f.RoomID == "" {
			h.sendError(client, "Missing room id")
			return
		}
		h.joinRoom(client, f.RoomID)

	case frameTypeLeaveRoom:
		if f.RoomID == "" {
			h.sendError(client, "Missing room id")
			return
		}
		h.leaveRoom(client, f.RoomID)

	case frameTypeTyping:
		var data typingData
		if err := json.Unmarshal(f.Data, &data); err != nil {
			h.sendError(client, "Invalid typing frame")
			return
		}
		// Excess typing events are silently dropped.
		if allowed, _ := h.limiter.Allow(client.Identity, "typing"); !allowed {
			return
		}
		var err error
		if data.Typing {
			err = h.typing.NotifyTyping(h.ctx, client.Identity, f.RoomID)
		} else {
			err = h.typing.StopTyping(h.ctx, client.Identity, f.RoomID)
		}
		if err != nil {
			logger.Warn("Typing update for %s in room %s failed: %v", client.Identity, f.RoomID, err)
		}

	default:
		h.sendError(client, "Unknown frame type")
	}
}

func (h *SessionHub) joinRoom(client *Client, roomID string) {
	session := h.session(client.Identity)
	if session == nil {
		return
	}

	session.mu.Lock()
	joined, ok := session.joined[client]
	if !ok {
		joined = make(map[string]struct{})
		session.joined[client] = joined
	}
	if _, already := joined[roomID]; already {
		session.mu.Unlock()
		return
	}
	joined[roomID] = struct{}{}

	if watch, ok := session.watches[roomID]; ok {
		watch.refs++
		session.mu.Unlock()
		return
	}
	session.mu.Unlock()

	stream, err := h.messages.Subscribe(session.ctx, client.Identity, roomID)
	if err != nil {
		logger.Warn("Client %s failed to join room %s: %v", client.UID, roomID, err)
		h.sendError(client, "Cannot join room")
		return
	}

	session.mu.Lock()
	session.watches[roomID] = &roomWatch{stream: stream, refs: 1}
	session.mu.Unlock()

	go h.relayMessages(session, roomID, stream)
}

func (h *SessionHub) leaveRoom(client *Client, roomID string) {
	session := h.session(client.Identity)
	if session == nil {
		return
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	joined, ok := session.joined[client]
	if !ok {
		return
	}
	if _, was := joined[roomID]; !was {
		return
	}
	delete(joined, roomID)

	watch, ok := session.watches[roomID]
	if !ok {
		return
	}
	watch.refs--
	if watch.refs == 0 {
		watch.stream.Close()
		delete(session.watches, roomID)
	}
}

// clientGone releases every room the tab had joined.
func (h *SessionHub) clientGone(client *Client) {
	session := h.session(client.Identity)
	if session == nil {
		return
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	for roomID := range session.joined[client] {
		if watch, ok := session.watches[roomID]; ok {
			watch.refs--
			if watch.refs == 0 {
				watch.stream.Close()
				delete(session.watches, roomID)
			}
		}
	}
	delete(session.joined, client)
}

func (h *SessionHub) relayMessages(session *identitySession, roomID string, stream repository.MessageStream) {
	for change := range stream.Changes() {
		frameType := frameTypeMessageAdded
		switch change.Kind {
		case repository.ChangeModified:
			frameType = frameTypeMessageModified
		case repository.ChangeRemoved:
			frameType = frameTypeMessageRemoved
		}
		h.send(session.actor, outboundFrame{
			Type:   frameType,
			RoomID: roomID,
			Data:   change.Message,
		})

		for _, observer := range h.observers {
			observer.OnMessageChange(session.ctx, session.actor, roomID, change)
		}
	}

	if err := stream.Err(); err != nil {
		logger.Warn("Message stream of room %s for %s stopped: %v", roomID, session.actor, err)
	}
}

func (h *SessionHub) session(actor string) *identitySession {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[actor]
}

func (h *SessionHub) send(identity string, f outboundFrame) {
	payload, err := json.Marshal(f)
	if err != nil {
		logger.Error("Failed to marshal frame %s: %v", f.Type, err)
		return
	}
	h.manager.SendToIdentity(identity, payload)
}

func (h *SessionHub) sendTo(client *Client, f outboundFrame) {
	payload, err := json.Marshal(f)
	if err != nil {
		logger.Error("Failed to marshal frame %s: %v", f.Type, err)
		return
	}
	select {
	case client.Send <- payload:
	default:
	}
}

func (h *SessionHub) sendError(client *Client, message string) {
	h.sendTo(client, outboundFrame{
		Type: frameTypeError,
		Data: map[string]string{"message": message},
	})
}
