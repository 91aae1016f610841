// Package ingest turns provider webhook events into contacts, conversations
// and messages, and drives the assistant's replies.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Jefrey13/chatdesk/internal/config"
	"github.com/Jefrey13/chatdesk/internal/contact"
	"github.com/Jefrey13/chatdesk/internal/conversation"
	"github.com/Jefrey13/chatdesk/internal/message"
)

// InboundEvent is one client message after webhook parsing.
type InboundEvent struct {
	FromPhone   string
	ProfileName string
	ExternalID  string
	Text        string
	Type        message.Type
	MediaID     string
	Caption     string
	SentAt      time.Time
}

// Contacts resolves inbound phone numbers.
type Contacts interface {
	Resolve(ctx context.Context, phone, displayName string) (contact.Contact, error)
}

// Conversations is the slice of the conversation service the pipeline needs.
type Conversations interface {
	GetOrCreateForContact(ctx context.Context, contactID string) (conversation.Conversation, bool, error)
	MarkInitialized(ctx context.Context, id string) (conversation.Conversation, bool, error)
	TouchClientActivity(ctx context.Context, id string, at time.Time) (conversation.Conversation, error)
}

// Messages records inbound rows.
type Messages interface {
	RecordInbound(ctx context.Context, msg message.Message) (message.Message, error)
}

// ReplyGenerator produces the assistant's answer.
type ReplyGenerator interface {
	Generate(ctx context.Context, userText string) (string, error)
}

// Outbound is the single send path for messages leaving the system.
type Outbound interface {
	Send(ctx context.Context, conversationID, toPhone, text, senderAccountID string) (message.Message, error)
}

// Pipeline processes inbound client messages end to end.
type Pipeline struct {
	contacts      Contacts
	conversations Conversations
	messages      Messages
	generator     ReplyGenerator
	outbound      Outbound
	logger        *slog.Logger

	welcomeText  string
	fallbackText string
}

// NewPipeline creates the inbound pipeline.
func NewPipeline(
	contacts Contacts,
	conversations Conversations,
	messages Messages,
	generator ReplyGenerator,
	outbound Outbound,
	cfg config.MonitorConfig,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		contacts:      contacts,
		conversations: conversations,
		messages:      messages,
		generator:     generator,
		outbound:      outbound,
		logger:        logger.With(slog.String("service", "ingest")),
		welcomeText:   cfg.WelcomeText,
		fallbackText:  cfg.FallbackText,
	}
}

// ProcessInbound runs one client message through the pipeline: contact
// resolution, conversation lookup, the one-time welcome, message persistence
// and the assistant reply. Redelivered events stop silently at the duplicate
// check; messages with no text and no media are dropped.
func (p *Pipeline) ProcessInbound(ctx context.Context, ev InboundEvent) error {
	text := strings.TrimSpace(ev.Text)
	if text == "" && ev.MediaID == "" {
		p.logger.Debug("dropping inbound event without content",
			slog.String("external_id", ev.ExternalID))
		return nil
	}

	resolved, err := p.contacts.Resolve(ctx, ev.FromPhone, ev.ProfileName)
	if err != nil {
		return fmt.Errorf("resolve contact: %w", err)
	}

	conv, _, err := p.conversations.GetOrCreateForContact(ctx, resolved.ID)
	if err != nil {
		return fmt.Errorf("resolve conversation: %w", err)
	}

	if !conv.Initialized {
		flipped, err := p.welcome(ctx, conv, ev.FromPhone)
		if err != nil {
			return err
		}
		conv = flipped
	}

	msgType := ev.Type
	if msgType == "" {
		msgType = message.TypeText
	}
	content := text
	if content == "" {
		content = strings.TrimSpace(ev.Caption)
	}
	_, err = p.messages.RecordInbound(ctx, message.Message{
		ConversationID:  conv.ID,
		SenderContactID: resolved.ID,
		ExternalID:      ev.ExternalID,
		Type:            msgType,
		Content:         content,
		SentAt:          ev.SentAt,
	})
	if err != nil {
		if errors.Is(err, message.ErrDuplicateEvent) {
			p.logger.Debug("ignoring redelivered event",
				slog.String("conversation_id", conv.ID),
				slog.String("external_id", ev.ExternalID))
			return nil
		}
		return fmt.Errorf("record inbound message: %w", err)
	}

	at := ev.SentAt
	if at.IsZero() {
		at = time.Now()
	}
	conv, err = p.conversations.TouchClientActivity(ctx, conv.ID, at)
	if err != nil {
		return fmt.Errorf("touch client activity: %w", err)
	}

	// Only the bot answers, and only to text turns.
	if conv.Status != conversation.StatusBot || text == "" || ev.MediaID != "" {
		return nil
	}
	return p.reply(ctx, conv.ID, ev.FromPhone, text)
}

// welcome flips the conversation into bot handling and sends the greeting.
// The flag commit decides the winner, so the greeting goes out exactly once
// no matter how many first messages race.
func (p *Pipeline) welcome(ctx context.Context, conv conversation.Conversation, toPhone string) (conversation.Conversation, error) {
	flipped, won, err := p.conversations.MarkInitialized(ctx, conv.ID)
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("initialize conversation: %w", err)
	}
	if !won {
		return flipped, nil
	}
	if _, err := p.outbound.Send(ctx, flipped.ID, toPhone, p.welcomeText, ""); err != nil {
		p.logger.Error("welcome message failed",
			slog.String("conversation_id", flipped.ID),
			slog.String("error", err.Error()))
	}
	return flipped, nil
}

// reply asks the generator for an answer and sends it. Generator failures
// degrade to the canned apology so the client never gets silence.
func (p *Pipeline) reply(ctx context.Context, conversationID, toPhone, text string) error {
	answer, err := p.generator.Generate(ctx, text)
	if err != nil {
		p.logger.Warn("reply generation failed, sending fallback",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()))
		answer = p.fallbackText
	}
	if _, err := p.outbound.Send(ctx, conversationID, toPhone, answer, ""); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}
