package provider

import (
	"context"
	"log/slog"

	"github.com/Jefrey13/chatdesk/internal/message"
)

// MessageRecorder persists outbound rows and broadcasts them.
type MessageRecorder interface {
	RecordOutbound(ctx context.Context, msg message.Message) (message.Message, error)
}

// TextSender delivers a text message and returns the provider's id.
type TextSender interface {
	SendText(ctx context.Context, toPhone, text string) (string, error)
}

// Outbound is the single path for messages leaving the system: it sends
// through the provider, then records the row, which also notifies watchers.
type Outbound struct {
	sender   TextSender
	messages MessageRecorder
	logger   *slog.Logger
}

// NewOutbound creates the outbound channel.
func NewOutbound(sender TextSender, messages MessageRecorder, logger *slog.Logger) *Outbound {
	return &Outbound{
		sender:   sender,
		messages: messages,
		logger:   logger.With(slog.String("service", "outbound")),
	}
}

// Send delivers text to the phone number and records it on the conversation.
// SenderAccountID is empty for assistant and system messages.
func (o *Outbound) Send(ctx context.Context, conversationID, toPhone, text, senderAccountID string) (message.Message, error) {
	externalID, err := o.sender.SendText(ctx, toPhone, text)
	if err != nil {
		return message.Message{}, err
	}
	msg, err := o.messages.RecordOutbound(ctx, message.Message{
		ConversationID:  conversationID,
		SenderAccountID: senderAccountID,
		ExternalID:      externalID,
		Type:            message.TypeText,
		Content:         text,
		Status:          message.StatusSent,
	})
	if err != nil {
		// Delivered but not recorded; surface the persistence error.
		o.logger.Error("outbound message sent but not recorded",
			slog.String("conversation_id", conversationID),
			slog.String("external_id", externalID),
			slog.String("error", err.Error()))
		return message.Message{}, err
	}
	return msg, nil
}
