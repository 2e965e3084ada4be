package entity

import "time"

// Connection is a roster entry: a counterpart the owner may start a chat with.
type Connection struct {
	ID            string    `json:"id" firestore:"id"`
	OwnerID       string    `json:"owner_id" firestore:"ownerId"`
	CounterpartID string    `json:"counterpart_id" firestore:"counterpartId"`
	DisplayName   string    `json:"display_name" firestore:"displayName"`
	CreatedAt     time.Time `json:"created_at" firestore:"createdAt"`
}
