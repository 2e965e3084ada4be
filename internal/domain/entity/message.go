package entity

import "time"

type Attachment struct {
	URL      string `json:"url" firestore:"url"`
	FileName string `json:"file_name" firestore:"fileName"`
	MimeType string `json:"mime_type" firestore:"mimeType"`
}

type Message struct {
	ID          string       `json:"id" firestore:"id"`
	RoomID      string       `json:"room_id" firestore:"roomId"`
	AuthorID    string       `json:"author_id" firestore:"authorId"`
	AuthorName  string       `json:"author_name" firestore:"authorName"`
	Text        string       `json:"text,omitempty" firestore:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty" firestore:"attachments,omitempty"`
	Read        bool         `json:"read" firestore:"read"`
	// CreatedAt is assigned by the store at commit time, not the client clock.
	CreatedAt time.Time `json:"created_at" firestore:"createdAt,serverTimestamp"`
}

// Empty reports whether the message carries neither text nor attachments.
// Such messages are never created.
func (m *Message) Empty() bool {
	return m.Text == "" && len(m.Attachments) == 0
}
