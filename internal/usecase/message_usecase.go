package usecase

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"dentalink/internal/domain/entity"
	"dentalink/internal/domain/repository"
	"dentalink/pkg/errors"
)

// Summary label shown when the last message carries attachments but no text.
const attachmentSentLabel = "Attachment sent"

// Uploader is the blob-store port for message attachments.
type Uploader interface {
	UploadAttachment(ctx context.Context, roomID string, ordinal int64, fileName, mimeType string, content io.Reader) (string, error)
}

type Upload struct {
	FileName string
	MimeType string
	Content  io.Reader
}

type MessageService struct {
	chatRepo repository.ChatRepository
	userRepo repository.UserRepository
	uploader Uploader
	typing   *TypingTracker

	mu sync.Mutex
	// realized maps a provisional placeholder id to the room it became, so
	// a second send against the same placeholder reuses the room instead of
	// creating another one.
	realized map[string]string
}

func NewMessageService(
	chatRepo repository.ChatRepository,
	userRepo repository.UserRepository,
	uploader Uploader,
	typing *TypingTracker,
) *MessageService {
	return &MessageService{
		chatRepo: chatRepo,
		userRepo: userRepo,
		uploader: uploader,
		typing:   typing,
		realized: make(map[string]string),
	}
}

// Send appends one message to the target room. A provisional target is
// persisted first, at most once per placeholder. Sending nothing — no text,
// no uploads — is a no-op: no room is created and no write happens.
func (s *MessageService) Send(ctx context.Context, actor string, target ResolvedRoom, text string, uploads []Upload) (*entity.Message, error) {
	if text == "" && len(uploads) == 0 {
		return nil, nil
	}

	room := target.Room
	if target.IsProvisional() {
		realized, err := s.realizeRoom(ctx, target.Provisional)
		if err != nil {
			return nil, err
		}
		room = realized
	}
	if room == nil {
		return nil, errors.BadRequest("No target room", nil)
	}
	if !room.HasParticipant(actor) {
		return nil, errors.Forbidden("You are not a participant of this conversation", nil)
	}

	attachments, err := s.uploadAll(ctx, room.ID, uploads)
	if err != nil {
		return nil, err
	}

	authorName, err := s.userRepo.GetDisplayName(ctx, actor)
	if err != nil {
		// Fall back to the label captured at room creation.
		log.Printf("Send Warning: Failed to resolve display name for %s: %v", actor, err)
		authorName = room.ParticipantNames[actor]
	}

	message := &entity.Message{
		RoomID:      room.ID,
		AuthorID:    actor,
		AuthorName:  authorName,
		Text:        text,
		Attachments: attachments,
		Read:        false,
	}

	if err := s.chatRepo.CreateMessage(ctx, message); err != nil {
		log.Printf("Send Error: Failed to append message to room %s: %v", room.ID, err)
		return nil, err
	}

	summaryText := text
	if summaryText == "" {
		summaryText = attachmentSentLabel
	}
	if err := s.chatRepo.UpdateRoomSummary(ctx, room.ID, repository.RoomSummary{LastMessage: summaryText}); err != nil {
		log.Printf("Send Error: Failed to update summary of room %s: %v", room.ID, err)
		return nil, err
	}

	if err := s.typing.StopTyping(ctx, actor, room.ID); err != nil {
		log.Printf("Send Warning: Failed to clear typing flag for %s in room %s: %v", actor, room.ID, err)
	}

	return message, nil
}

// SendToRoom sends into an already-persisted room by id.
func (s *MessageService) SendToRoom(ctx context.Context, actor, roomID, text string, uploads []Upload) (*entity.Message, error) {
	if text == "" && len(uploads) == 0 {
		return nil, nil
	}

	room, err := s.chatRepo.GetRoomByID(ctx, roomID)
	if err != nil {
		log.Printf("SendToRoom Error: Room %s not found: %v", roomID, err)
		return nil, err
	}

	return s.Send(ctx, actor, ResolvedRoom{Room: room}, text, uploads)
}

func (s *MessageService) realizeRoom(ctx context.Context, provisional *entity.ProvisionalRoom) (*entity.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if roomID, ok := s.realized[provisional.PlaceholderID]; ok {
		return s.chatRepo.GetRoomByID(ctx, roomID)
	}

	room := &entity.Room{
		Participants:     provisional.Participants,
		ParticipantNames: provisional.ParticipantNames,
	}
	if err := s.chatRepo.CreateRoom(ctx, room); err != nil {
		log.Printf("Send Error: Failed to create room from provisional %s: %v", provisional.PlaceholderID, err)
		return nil, err
	}

	s.realized[provisional.PlaceholderID] = room.ID
	return room, nil
}

func (s *MessageService) uploadAll(ctx context.Context, roomID string, uploads []Upload) ([]entity.Attachment, error) {
	if len(uploads) == 0 {
		return nil, nil
	}

	// The ordinal distinguishes blobs of a send from every other send; a
	// blob orphaned by a later append failure stays unreferenced and harmless.
	base := time.Now().UnixNano()

	var attachments []entity.Attachment
	for i, upload := range uploads {
		url, err := s.uploader.UploadAttachment(ctx, roomID, base+int64(i), upload.FileName, upload.MimeType, upload.Content)
		if err != nil {
			log.Printf("Send Error: Failed to upload attachment %s to room %s: %v", upload.FileName, roomID, err)
			return nil, errors.Internal("Failed to upload attachment", err)
		}
		attachments = append(attachments, entity.Attachment{
			URL:      url,
			FileName: upload.FileName,
			MimeType: upload.MimeType,
		})
	}

	return attachments, nil
}

// Subscribe opens the live ordered message stream of a persisted room.
func (s *MessageService) Subscribe(ctx context.Context, actor, roomID string) (repository.MessageStream, error) {
	room, err := s.chatRepo.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(actor) {
		return nil, errors.Forbidden("You are not a participant of this conversation", nil)
	}

	return s.chatRepo.SubscribeMessages(ctx, roomID)
}

// MarkRead flips every unread message authored by the counterpart to read.
// Read flags never flip back.
func (s *MessageService) MarkRead(ctx context.Context, actor, roomID string) error {
	room, err := s.chatRepo.GetRoomByID(ctx, roomID)
	if err != nil {
		log.Printf("MarkRead Error: Room %s not found: %v", roomID, err)
		return err
	}
	if !room.HasParticipant(actor) {
		return errors.Forbidden("You are not a participant of this conversation", nil)
	}

	unread, err := s.chatRepo.ListUnreadForeign(ctx, roomID, actor)
	if err != nil {
		log.Printf("MarkRead Error: Failed to list unread messages of room %s: %v", roomID, err)
		return err
	}
	if len(unread) == 0 {
		return nil
	}

	ids := make([]string, 0, len(unread))
	for _, message := range unread {
		ids = append(ids, message.ID)
	}

	if err := s.chatRepo.MarkMessagesRead(ctx, roomID, ids); err != nil {
		log.Printf("MarkRead Error: Failed to mark %d messages read in room %s: %v", len(ids), roomID, err)
		return err
	}

	return nil
}

// DeleteMany removes the given messages as one atomic batch and re-derives
// the room summary from the newest survivor, or clears it when none remain.
// Only the author may delete a message; one foreign id rejects the whole
// batch before anything is removed.
func (s *MessageService) DeleteMany(ctx context.Context, actor, roomID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	room, err := s.chatRepo.GetRoomByID(ctx, roomID)
	if err != nil {
		log.Printf("DeleteMany Error: Room %s not found: %v", roomID, err)
		return err
	}
	if !room.HasParticipant(actor) {
		return errors.Forbidden("You are not a participant of this conversation", nil)
	}

	existing, _, err := s.chatRepo.ListMessages(ctx, roomID, 0, 0)
	if err != nil {
		log.Printf("DeleteMany Error: Failed to list messages of room %s: %v", roomID, err)
		return err
	}
	authors := make(map[string]string, len(existing))
	for _, message := range existing {
		authors[message.ID] = message.AuthorID
	}
	for _, id := range messageIDs {
		if author, ok := authors[id]; ok && author != actor {
			log.Printf("DeleteMany Error: %s tried to delete message %s authored by %s", actor, id, author)
			return errors.Forbidden("You can only delete your own messages", nil)
		}
	}

	if err := s.chatRepo.DeleteMessages(ctx, roomID, messageIDs); err != nil {
		log.Printf("DeleteMany Error: Failed to delete %d messages from room %s: %v", len(messageIDs), roomID, err)
		return err
	}

	newest, err := s.chatRepo.GetNewestMessage(ctx, roomID)
	if err != nil {
		if !errors.Is(err, "NOT_FOUND") {
			log.Printf("DeleteMany Error: Failed to re-derive summary of room %s: %v", roomID, err)
			return err
		}
		// Nothing left: reset to the placeholder state of a fresh room.
		return s.chatRepo.UpdateRoomSummary(ctx, roomID, repository.RoomSummary{
			LastMessage:   "",
			LastMessageAt: room.CreatedAt,
		})
	}

	summaryText := newest.Text
	if summaryText == "" {
		summaryText = attachmentSentLabel
	}

	return s.chatRepo.UpdateRoomSummary(ctx, roomID, repository.RoomSummary{
		LastMessage:   summaryText,
		LastMessageAt: newest.CreatedAt,
	})
}

// History returns the persisted message log, ascending by creation time.
func (s *MessageService) History(ctx context.Context, actor, roomID string, limit, offset int) ([]*entity.Message, int64, error) {
	room, err := s.chatRepo.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, 0, err
	}
	if !room.HasParticipant(actor) {
		return nil, 0, errors.Forbidden("You are not a participant of this conversation", nil)
	}

	return s.chatRepo.ListMessages(ctx, roomID, limit, offset)
}

// Rooms lists the actor's rooms, most recently active first.
func (s *MessageService) Rooms(ctx context.Context, actor string, limit, offset int) ([]*entity.Room, int64, error) {
	return s.chatRepo.ListRoomsByParticipant(ctx, actor, limit, offset)
}
