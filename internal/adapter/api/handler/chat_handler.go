package handler

import (
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"dentalink/internal/domain/repository"
	"dentalink/internal/infrastructure/ratelimit"
	"dentalink/internal/usecase"
	"dentalink/pkg/errors"
	"dentalink/pkg/logger"
	"dentalink/pkg/response"
)

const maxAttachmentSize = 20 * 1024 * 1024

type ChatHandler struct {
	resolver *usecase.RoomResolver
	messages *usecase.MessageService
	typing   *usecase.TypingTracker
	userRepo repository.UserRepository
	chatRepo repository.ChatRepository
	limiter  *ratelimit.RateLimiter
}

func NewChatHandler(
	resolver *usecase.RoomResolver,
	messages *usecase.MessageService,
	typing *usecase.TypingTracker,
	userRepo repository.UserRepository,
	chatRepo repository.ChatRepository,
	limiter *ratelimit.RateLimiter,
) *ChatHandler {
	return &ChatHandler{
		resolver: resolver,
		messages: messages,
		typing:   typing,
		userRepo: userRepo,
		chatRepo: chatRepo,
		limiter:  limiter,
	}
}

type resolveRoomRequest struct {
	OrderID       string `json:"order_id"`
	CounterpartID string `json:"counterpart_id"`
}

type resolveRoomResponse struct {
	Room        interface{} `json:"room,omitempty"`
	Provisional interface{} `json:"provisional,omitempty"`
}

type typingRequest struct {
	Typing bool `json:"typing"`
}

type deleteMessagesRequest struct {
	MessageIDs []string `json:"message_ids" validate:"required,min=1"`
}

type registerDeviceRequest struct {
	Token string `json:"token" validate:"required"`
}

// ResolveRoom maps an order or a counterpart onto a chat room. Order rooms
// are created on first resolution; counterpart rooms without history come
// back as a provisional descriptor and are only persisted on first send.
func (h *ChatHandler) ResolveRoom(c echo.Context) error {
	var req resolveRoomRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if (req.OrderID == "") == (req.CounterpartID == "") {
		return response.Error(c, errors.BadRequest("Exactly one of order_id or counterpart_id is required", nil))
	}

	actor := c.Get("actor").(string)

	if allowed, retryAfter := h.limiter.Allow(actor, "resolve_room"); !allowed {
		c.Response().Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		return response.Error(c, errors.New("RATE_LIMITED", "Too many room resolutions", http.StatusTooManyRequests, nil))
	}

	if req.OrderID != "" {
		room, err := h.resolver.ResolveByOrder(c.Request().Context(), actor, req.OrderID)
		if err != nil {
			return response.Error(c, err)
		}
		return response.Success(c, resolveRoomResponse{Room: room})
	}

	resolved, err := h.resolver.ResolveByCounterpart(c.Request().Context(), actor, req.CounterpartID)
	if err != nil {
		return response.Error(c, err)
	}

	if resolved.IsProvisional() {
		return response.Success(c, resolveRoomResponse{Provisional: resolved.Provisional})
	}
	return response.Success(c, resolveRoomResponse{Room: resolved.Room})
}

// GetRooms lists the actor's rooms, most recently active first.
func (h *ChatHandler) GetRooms(c echo.Context) error {
	actor := c.Get("actor").(string)
	limit, offset := pagination(c, 20)

	rooms, total, err := h.messages.Rooms(c.Request().Context(), actor, limit, offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.SuccessPaginated(c, rooms, total, limit, offset)
}

// GetMessages returns a room's message history, ascending by creation time.
func (h *ChatHandler) GetMessages(c echo.Context) error {
	roomID := c.Param("id")
	actor := c.Get("actor").(string)
	limit, offset := pagination(c, 50)

	messages, total, err := h.messages.History(c.Request().Context(), actor, roomID, limit, offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.SuccessPaginated(c, messages, total, limit, offset)
}

// SendMessage posts a message to an existing room. Multipart: a "text"
// field plus any number of "files" parts.
func (h *ChatHandler) SendMessage(c echo.Context) error {
	roomID := c.Param("id")
	actor := c.Get("actor").(string)

	if allowed, retryAfter := h.limiter.Allow(actor, "send_message"); !allowed {
		c.Response().Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		return response.Error(c, errors.New("RATE_LIMITED", "Too many messages", http.StatusTooManyRequests, nil))
	}

	text := c.FormValue("text")
	uploads, closers, err := formUploads(c)
	if err != nil {
		return response.Error(c, err)
	}
	defer closeAll(closers)

	message, err := h.messages.SendToRoom(c.Request().Context(), actor, roomID, text, uploads)
	if err != nil {
		return response.Error(c, err)
	}
	if message == nil {
		// Empty send is a silent no-op.
		return c.NoContent(http.StatusNoContent)
	}

	return response.Created(c, message)
}

// SendProvisionalMessage posts the first message of a not-yet-persisted
// direct room. The room is re-resolved so a room created since the
// provisional descriptor was handed out is reused instead of duplicated.
func (h *ChatHandler) SendProvisionalMessage(c echo.Context) error {
	actor := c.Get("actor").(string)

	counterpart := c.FormValue("counterpart_id")
	if counterpart == "" {
		return response.Error(c, errors.BadRequest("Missing counterpart_id", nil))
	}

	if allowed, retryAfter := h.limiter.Allow(actor, "send_message"); !allowed {
		c.Response().Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		return response.Error(c, errors.New("RATE_LIMITED", "Too many messages", http.StatusTooManyRequests, nil))
	}

	text := c.FormValue("text")
	uploads, closers, err := formUploads(c)
	if err != nil {
		return response.Error(c, err)
	}
	defer closeAll(closers)

	resolved, err := h.resolver.ResolveByCounterpart(c.Request().Context(), actor, counterpart)
	if err != nil {
		return response.Error(c, err)
	}

	message, err := h.messages.Send(c.Request().Context(), actor, resolved, text, uploads)
	if err != nil {
		return response.Error(c, err)
	}
	if message == nil {
		return c.NoContent(http.StatusNoContent)
	}

	return response.Created(c, message)
}

// MarkRead flips every unread foreign message in the room to read.
func (h *ChatHandler) MarkRead(c echo.Context) error {
	roomID := c.Param("id")
	actor := c.Get("actor").(string)

	if err := h.messages.MarkRead(c.Request().Context(), actor, roomID); err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusOK)
}

// DeleteMessages removes a batch of the actor's own messages and recomputes
// the room summary.
func (h *ChatHandler) DeleteMessages(c echo.Context) error {
	roomID := c.Param("id")
	actor := c.Get("actor").(string)

	var req deleteMessagesRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	if err := h.messages.DeleteMany(c.Request().Context(), actor, roomID, req.MessageIDs); err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusOK)
}

// SetTyping starts or stops the actor's typing flag in the room. Start
// refreshes the expiry timer; absent a stop, the flag clears on its own.
func (h *ChatHandler) SetTyping(c echo.Context) error {
	roomID := c.Param("id")
	actor := c.Get("actor").(string)

	var req typingRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if allowed, _ := h.limiter.Allow(actor, "typing"); !allowed {
		// Dropped typing updates are invisible; the flag expires anyway.
		return c.NoContent(http.StatusOK)
	}

	var err error
	if req.Typing {
		err = h.typing.NotifyTyping(c.Request().Context(), actor, roomID)
	} else {
		err = h.typing.StopTyping(c.Request().Context(), actor, roomID)
	}
	if err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusOK)
}

// GetConnections returns the actor's roster of chat-eligible counterparts.
func (h *ChatHandler) GetConnections(c echo.Context) error {
	actor := c.Get("actor").(string)

	connections, err := h.resolver.Roster(c.Request().Context(), actor)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, connections)
}

// GetUnread returns a point-in-time snapshot of per-room unread counts and
// the total. Live updates flow over the websocket instead.
func (h *ChatHandler) GetUnread(c echo.Context) error {
	actor := c.Get("actor").(string)

	counts, total, err := usecase.SnapshotUnread(c.Request().Context(), h.chatRepo, actor)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"rooms": counts,
		"total": total,
	})
}

// RegisterDevice stores a push token for the authenticated account.
func (h *ChatHandler) RegisterDevice(c echo.Context) error {
	uid := c.Get("uid").(string)

	var req registerDeviceRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	if err := h.userRepo.AddDeviceToken(c.Request().Context(), uid, req.Token); err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusOK)
}

func pagination(c echo.Context, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if offsetStr := c.QueryParam("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

// formUploads collects the "files" parts of a multipart send. The caller
// closes the returned readers after the send completes.
func formUploads(c echo.Context) ([]usecase.Upload, []multipart.File, error) {
	form, err := c.MultipartForm()
	if err != nil {
		// A plain form post without files is fine.
		return nil, nil, nil
	}

	var uploads []usecase.Upload
	var closers []multipart.File
	for _, fileHeader := range form.File["files"] {
		if fileHeader.Size > maxAttachmentSize {
			closeAll(closers)
			return nil, nil, errors.BadRequest("Attachment exceeds the size limit", nil)
		}

		src, err := fileHeader.Open()
		if err != nil {
			closeAll(closers)
			logger.Error("Failed to open uploaded file %s: %v", fileHeader.Filename, err)
			return nil, nil, errors.Internal("Unable to read attachment", err)
		}
		closers = append(closers, src)

		uploads = append(uploads, usecase.Upload{
			FileName: fileHeader.Filename,
			MimeType: fileHeader.Header.Get("Content-Type"),
			Content:  src,
		})
	}

	return uploads, closers, nil
}

func closeAll(closers []multipart.File) {
	for _, closer := range closers {
		closer.Close()
	}
}
