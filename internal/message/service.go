package message

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Jefrey13/chatdesk/internal/hub"
)

// Store is the persistence surface the service depends on.
type Store interface {
	Insert(ctx context.Context, msg Message) (Message, error)
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]Message, error)
	UpdateStatusByExternalID(ctx context.Context, externalID string, status DeliveryStatus, at time.Time) (Message, error)
}

// Publisher pushes events to connected clients.
type Publisher interface {
	Publish(topic string, event hub.Event)
}

// Service records messages and fans out the resulting events.
type Service struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
}

// NewService creates the message service.
func NewService(store Store, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger.With(slog.String("service", "message")),
	}
}

// ListByConversation returns the conversation's messages, oldest first.
func (s *Service) ListByConversation(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	return s.store.ListByConversation(ctx, conversationID, limit)
}

// RecordInbound stores a client message and notifies watchers. Redelivered
// provider events surface ErrDuplicateEvent without a second row or a second
// notification.
func (s *Service) RecordInbound(ctx context.Context, msg Message) (Message, error) {
	msg.ID = uuid.NewString()
	msg.Direction = DirectionInbound
	if msg.Type == "" {
		msg.Type = TypeText
	}
	if msg.Status == "" {
		msg.Status = StatusDelivered
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	stored, err := s.store.Insert(ctx, msg)
	if err != nil {
		return Message{}, err
	}
	event := hub.Event{Type: hub.EventMessageReceived, Data: stored}
	s.publisher.Publish(hub.ConversationTopic(stored.ConversationID), event)
	s.publisher.Publish(hub.TopicAdmin, event)
	return stored, nil
}

// RecordOutbound stores a message sent to the client, whether typed by an
// agent or produced by the assistant.
func (s *Service) RecordOutbound(ctx context.Context, msg Message) (Message, error) {
	msg.ID = uuid.NewString()
	msg.Direction = DirectionOutbound
	if msg.Type == "" {
		msg.Type = TypeText
	}
	if msg.Status == "" {
		msg.Status = StatusQueued
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	stored, err := s.store.Insert(ctx, msg)
	if err != nil {
		return Message{}, err
	}
	event := hub.Event{Type: hub.EventMessageSent, Data: stored}
	s.publisher.Publish(hub.ConversationTopic(stored.ConversationID), event)
	s.publisher.Publish(hub.TopicAdmin, event)
	return stored, nil
}

// ApplyDeliveryStatus records a provider delivery callback for an outbound
// message and notifies the conversation's watchers. Callbacks for unknown
// messages return ErrNotFound.
func (s *Service) ApplyDeliveryStatus(ctx context.Context, externalID string, status DeliveryStatus, at time.Time) (Message, error) {
	msg, err := s.store.UpdateStatusByExternalID(ctx, externalID, status, at)
	if err != nil {
		return Message{}, err
	}
	s.logger.Debug("delivery status applied",
		slog.String("external_id", externalID),
		slog.String("status", string(status)))
	s.publisher.Publish(hub.ConversationTopic(msg.ConversationID),
		hub.Event{Type: hub.EventMessageStatus, Data: msg})
	return msg, nil
}
