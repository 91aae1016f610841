// Package message stores the messages exchanged inside a conversation and
// tracks their delivery lifecycle.
package message

import (
	"errors"
	"time"
)

// Direction says which way a message flowed.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Type is the media kind of a message.
type Type string

const (
	TypeText        Type = "text"
	TypeImage       Type = "image"
	TypeAudio       Type = "audio"
	TypeVideo       Type = "video"
	TypeDocument    Type = "document"
	TypeSticker     Type = "sticker"
	TypeInteractive Type = "interactive"
)

// DeliveryStatus is the provider-reported delivery state of a message.
type DeliveryStatus string

const (
	StatusQueued      DeliveryStatus = "queued"
	StatusSent        DeliveryStatus = "sent"
	StatusDelivered   DeliveryStatus = "delivered"
	StatusRead        DeliveryStatus = "read"
	StatusUndelivered DeliveryStatus = "undelivered"
	StatusFailed      DeliveryStatus = "failed"
)

// Message is one message inside a conversation. ExternalID is the provider's
// id for the message and is what makes webhook redeliveries idempotent.
type Message struct {
	ID              string         `json:"id"`
	ConversationID  string         `json:"conversation_id"`
	SenderContactID string         `json:"sender_contact_id,omitempty"`
	SenderAccountID string         `json:"sender_account_id,omitempty"`
	ExternalID      string         `json:"external_id,omitempty"`
	Direction       Direction      `json:"direction"`
	Type            Type           `json:"message_type"`
	Content         string         `json:"content"`
	Status          DeliveryStatus `json:"status"`
	SentAt          time.Time      `json:"sent_at"`
	DeliveredAt     *time.Time     `json:"delivered_at,omitempty"`
	ReadAt          *time.Time     `json:"read_at,omitempty"`
}

var (
	// ErrDuplicateEvent marks a message the system has already recorded.
	ErrDuplicateEvent = errors.New("duplicate message event")
	// ErrNotFound marks a missing message.
	ErrNotFound = errors.New("message not found")
)
