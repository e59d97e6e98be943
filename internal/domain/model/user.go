package model

import "time"

// User carries only the fields the purchase flow needs: the partition key for
// the user's subscriptions and the Test flag that routes receipt verification
// to the vendors' sandbox endpoints.
type User struct {
	ID       string    `json:"id"`
	Deleted  bool      `json:"deleted,omitempty"`
	OfficeID string    `json:"officeId"`
	Email    string    `json:"email,omitempty"`
	Name     string    `json:"name,omitempty"`
	Test     bool      `json:"test,omitempty"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}
