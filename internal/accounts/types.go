// Package accounts manages the agent and admin accounts that log into the
// console.
package accounts

import (
	"errors"
	"time"
)

// Account is one console user. PasswordHash is only populated on the
// credential lookup path and never serialized.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name,omitempty"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	PasswordHash string    `json:"-"`
}

var (
	// ErrNotFound marks a missing account.
	ErrNotFound = errors.New("account not found")
	// ErrInvalidCredentials marks a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
