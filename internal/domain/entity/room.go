package entity

import "time"

// Room is a persisted two-party conversation, optionally linked to the
// lab order it was started from.
type Room struct {
	ID               string            `json:"id" firestore:"id"`
	Participants     []string          `json:"participants" firestore:"participants"`
	ParticipantNames map[string]string `json:"participant_names" firestore:"participantNames"`
	OrderID          string            `json:"order_id,omitempty" firestore:"orderId,omitempty"`
	OrderNumber      string            `json:"order_number,omitempty" firestore:"orderNumber,omitempty"`
	LastMessage      string            `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	LastMessageAt    time.Time         `json:"last_message_at" firestore:"lastMessageAt"`
	Typing           map[string]bool   `json:"typing,omitempty" firestore:"typing,omitempty"`
	CreatedAt        time.Time         `json:"created_at" firestore:"createdAt"`
	UpdatedAt        time.Time         `json:"updated_at" firestore:"updatedAt"`
}

func (r *Room) HasParticipant(identity string) bool {
	for _, p := range r.Participants {
		if p == identity {
			return true
		}
	}
	return false
}

// Counterpart returns the other participant of a two-party room.
func (r *Room) Counterpart(identity string) string {
	for _, p := range r.Participants {
		if p != identity {
			return p
		}
	}
	return ""
}

// ProvisionalRoom is a client-side placeholder for a conversation that has
// not been persisted yet. It carries everything needed to create the real
// room on first send; until then it must never be subscribed or written to.
type ProvisionalRoom struct {
	PlaceholderID    string            `json:"placeholder_id"`
	Participants     []string          `json:"participants"`
	ParticipantNames map[string]string `json:"participant_names"`
}
