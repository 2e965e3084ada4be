package usecase

import (
	"context"
	"log"

	"dentalink/internal/domain/repository"
)

// Notifier is the push-notification sink. Implementations treat a missing
// registration (permission never granted) as silence, not failure.
type Notifier interface {
	Notify(ctx context.Context, identity, title, body string, data map[string]string) error
}

// Visibility reports whether an identity currently has a foregrounded tab;
// foregrounded identities see the message arrive and need no notification.
type Visibility interface {
	IsForeground(identity string) bool
}

type NotificationDispatcher struct {
	notifier   Notifier
	visibility Visibility
}

func NewNotificationDispatcher(notifier Notifier, visibility Visibility) *NotificationDispatcher {
	return &NotificationDispatcher{
		notifier:   notifier,
		visibility: visibility,
	}
}

// OnMessageChange inspects one live diff from an open room stream. Only a
// genuinely new arrival notifies: entries replayed with the initial
// snapshot, non-added diffs, and the actor's own messages never do.
func (d *NotificationDispatcher) OnMessageChange(ctx context.Context, actor, roomID string, change repository.MessageChange) {
	if change.Kind != repository.ChangeAdded || change.Initial {
		return
	}

	message := change.Message
	if message.AuthorID == actor {
		return
	}
	if d.visibility.IsForeground(actor) {
		return
	}

	body := message.Text
	if body == "" {
		body = attachmentSentLabel
	}

	err := d.notifier.Notify(ctx, actor, message.AuthorName, body, map[string]string{
		"room_id":    roomID,
		"message_id": message.ID,
	})
	if err != nil {
		log.Printf("Notify Warning: Failed to notify %s about message %s: %v", actor, message.ID, err)
	}
}
