package entity

import "time"

// Order carries the party information the chat core needs to seed an
// order-linked room. The full order record belongs to the ordering module.
type Order struct {
	ID          string    `json:"id" firestore:"id"`
	OrderNumber string    `json:"order_number" firestore:"orderNumber"`
	ClinicID    string    `json:"clinic_id" firestore:"clinicId"`
	ClinicName  string    `json:"clinic_name" firestore:"clinicName"`
	LabID       string    `json:"lab_id" firestore:"labId"`
	LabName     string    `json:"lab_name" firestore:"labName"`
	CreatedAt   time.Time `json:"created_at" firestore:"createdAt"`
}

// CounterpartOf returns the identity and display name of the opposite party.
// ok is false when the given identity is not a party to the order.
func (o *Order) CounterpartOf(identity string) (id, name string, ok bool) {
	switch identity {
	case o.ClinicID:
		return o.LabID, o.LabName, true
	case o.LabID:
		return o.ClinicID, o.ClinicName, true
	}
	return "", "", false
}
