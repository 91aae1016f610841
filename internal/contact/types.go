// Package contact manages the people writing in over the messaging channel,
// keyed by phone number.
package contact

import (
	"errors"
	"time"
)

// Contact is one end user, identified by their phone number.
type Contact struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ErrNotFound marks a missing contact.
var ErrNotFound = errors.New("contact not found")
