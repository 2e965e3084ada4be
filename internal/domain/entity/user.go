package entity

import "time"

// User is a platform account. Staff accounts of a company carry CompanyID;
// all chat operations of such an account act under the company identity.
type User struct {
	UID          string    `json:"uid" firestore:"uid"`
	DisplayName  string    `json:"display_name" firestore:"displayName"`
	CompanyID    string    `json:"company_id,omitempty" firestore:"companyId,omitempty"`
	CompanyName  string    `json:"company_name,omitempty" firestore:"companyName,omitempty"`
	DeviceTokens []string  `json:"device_tokens,omitempty" firestore:"deviceTokens,omitempty"`
	CreatedAt    time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt    time.Time `json:"updated_at" firestore:"updatedAt"`
}

// ActingIdentity is the identity chat operations run under: the company
// identity when the user is company staff, the personal uid otherwise.
func (u *User) ActingIdentity() string {
	if u.CompanyID != "" {
		return u.CompanyID
	}
	return u.UID
}

// ActingName is the display label matching ActingIdentity.
func (u *User) ActingName() string {
	if u.CompanyID != "" && u.CompanyName != "" {
		return u.CompanyName
	}
	return u.DisplayName
}
