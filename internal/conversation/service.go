package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jefrey13/chatdesk/internal/hub"
)

// Store is the persistence surface the service depends on.
type Store interface {
	Get(ctx context.Context, id string) (Conversation, error)
	GetOpenByContact(ctx context.Context, contactID string) (Conversation, error)
	Create(ctx context.Context, contactID string) (Conversation, error)
	ListByStatus(ctx context.Context, status Status) ([]Conversation, error)
	Update(ctx context.Context, conv Conversation, audit *HistoryLog) (Conversation, error)
	History(ctx context.Context, conversationID string) ([]HistoryLog, error)
}

// Publisher pushes events to connected clients.
type Publisher interface {
	Publish(topic string, event hub.Event)
}

// Service owns every conversation mutation. All writes go through the
// transition rules and the store's version check; a lost race is retried
// once against a fresh read before surfacing ErrPersistenceConflict.
type Service struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates the conversation service.
func NewService(store Store, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger.With(slog.String("service", "conversation")),
		now:       time.Now,
	}
}

// Get loads one conversation.
func (s *Service) Get(ctx context.Context, id string) (Conversation, error) {
	return s.store.Get(ctx, id)
}

// ListByStatus returns the conversations in the given status.
func (s *Service) ListByStatus(ctx context.Context, status Status) ([]Conversation, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	return s.store.ListByStatus(ctx, status)
}

// History returns the audit trail of one conversation.
func (s *Service) History(ctx context.Context, id string) ([]HistoryLog, error) {
	return s.store.History(ctx, id)
}

// GetOrCreateForContact returns the contact's open conversation, creating a
// fresh one when none exists. The second result reports whether a
// conversation was created.
func (s *Service) GetOrCreateForContact(ctx context.Context, contactID string) (Conversation, bool, error) {
	conv, err := s.store.GetOpenByContact(ctx, contactID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Conversation{}, false, err
	}
	conv, err = s.store.Create(ctx, contactID)
	if err != nil {
		// A concurrent inbound may have created it first.
		if existing, getErr := s.store.GetOpenByContact(ctx, contactID); getErr == nil {
			return existing, false, nil
		}
		return Conversation{}, false, err
	}
	s.logger.Info("conversation created",
		slog.String("conversation_id", conv.ID),
		slog.String("contact_id", contactID))
	s.publisher.Publish(hub.TopicAdmin, hub.Event{Type: hub.EventConversationCreated, Data: conv})
	return conv, true, nil
}

// ChangeStatus moves the conversation to the target status on behalf of the
// actor, appending the audit row in the same write.
func (s *Service) ChangeStatus(ctx context.Context, id string, target Status, actor Actor) (Conversation, error) {
	conv, err := s.mutate(ctx, id, func(conv Conversation) (Conversation, *HistoryLog, error) {
		updated, audit, err := Apply(conv, target, actor, HistoryLog{ChangedAt: s.now()})
		if err != nil {
			return Conversation{}, nil, err
		}
		return updated, &audit, nil
	})
	if err != nil {
		return Conversation{}, err
	}
	s.publishSnapshot(hub.EventConversationUpdated, conv)
	if target == StatusClosed {
		s.publishSnapshot(hub.EventConversationClosed, conv)
	}
	return conv, nil
}

// MarkInitialized flips a fresh conversation into bot handling. It reports
// true for exactly one caller per conversation; concurrent callers observe
// false once the flag is set.
func (s *Service) MarkInitialized(ctx context.Context, id string) (Conversation, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		conv, err := s.store.Get(ctx, id)
		if err != nil {
			return Conversation{}, false, err
		}
		if conv.Initialized {
			return conv, false, nil
		}
		updated, audit, err := Apply(conv, StatusBot, Actor{}, HistoryLog{ChangedAt: s.now()})
		if err != nil {
			return Conversation{}, false, err
		}
		updated.Initialized = true
		persisted, err := s.store.Update(ctx, updated, &audit)
		if err == nil {
			s.publishSnapshot(hub.EventConversationUpdated, persisted)
			return persisted, true, nil
		}
		if !errors.Is(err, ErrPersistenceConflict) {
			return Conversation{}, false, err
		}
	}
	conv, err := s.store.Get(ctx, id)
	if err != nil {
		return Conversation{}, false, err
	}
	return conv, false, nil
}

// TouchClientActivity records an inbound client message time and clears a
// pending inactivity warning.
func (s *Service) TouchClientActivity(ctx context.Context, id string, at time.Time) (Conversation, error) {
	return s.mutate(ctx, id, func(conv Conversation) (Conversation, *HistoryLog, error) {
		conv.ClientLastMessageAt = &at
		conv.WarningSentAt = nil
		return conv, nil, nil
	})
}

// MarkWarned stamps the inactivity warning time and tells the admins.
func (s *Service) MarkWarned(ctx context.Context, id string, at time.Time) (Conversation, error) {
	conv, err := s.mutate(ctx, id, func(conv Conversation) (Conversation, *HistoryLog, error) {
		conv.WarningSentAt = &at
		return conv, nil, nil
	})
	if err != nil {
		return Conversation{}, err
	}
	s.publishSnapshot(hub.EventConversationUpdated, conv)
	s.publishSnapshot(hub.EventInactivityWarning, conv)
	return conv, nil
}

// TouchAgentActivity records an outbound agent message time.
func (s *Service) TouchAgentActivity(ctx context.Context, id string, at time.Time) (Conversation, error) {
	return s.mutate(ctx, id, func(conv Conversation) (Conversation, *HistoryLog, error) {
		if conv.AgentFirstMessageAt == nil {
			conv.AgentFirstMessageAt = &at
		}
		conv.AgentLastMessageAt = &at
		return conv, nil, nil
	})
}

// RequestSupport moves a bot conversation into the waiting queue and alerts
// the admins.
func (s *Service) RequestSupport(ctx context.Context, id string, actor Actor) (Conversation, error) {
	conv, err := s.ChangeStatus(ctx, id, StatusWaiting, actor)
	if err != nil {
		return Conversation{}, err
	}
	s.publisher.Publish(hub.TopicAdmin, hub.Event{Type: hub.EventSupportRequested, Data: conv})
	return conv, nil
}

// Assign offers the conversation to an agent and notifies them.
func (s *Service) Assign(ctx context.Context, id, agentID string, actor Actor) (Conversation, error) {
	conv, err := s.mutate(ctx, id, func(conv Conversation) (Conversation, *HistoryLog, error) {
		updated, err := ApplyAssignment(conv, AssignmentPending, actor, "")
		if err != nil {
			return Conversation{}, nil, err
		}
		now := s.now()
		updated.AssignedAgentID = agentID
		updated.AssignedAt = &now
		return updated, nil, nil
	})
	if err != nil {
		return Conversation{}, err
	}
	s.publisher.Publish(hub.UserTopic(agentID), hub.Event{Type: hub.EventAssignmentRequested, Data: conv})
	s.publishSnapshot(hub.EventConversationUpdated, conv)
	return conv, nil
}

// Accept confirms a pending assignment. Only the offered agent can accept;
// the conversation moves to human handling.
func (s *Service) Accept(ctx context.Context, id string, actor Actor) (Conversation, error) {
	conv, err := s.mutate(ctx, id, func(conv Conversation) (Conversation, *HistoryLog, error) {
		if conv.AssignedAgentID != actor.AccountID {
			return Conversation{}, nil, fmt.Errorf("%w: assignment belongs to another agent", ErrInvalidTransition)
		}
		updated, err := ApplyAssignment(conv, AssignmentAccepted, actor, "")
		if err != nil {
			return Conversation{}, nil, err
		}
		updated, audit, err := Apply(updated, StatusHuman, actor, HistoryLog{ChangedAt: s.now()})
		if err != nil {
			return Conversation{}, nil, err
		}
		return updated, &audit, nil
	})
	if err != nil {
		return Conversation{}, err
	}
	s.publisher.Publish(hub.TopicAdmin, hub.Event{Type: hub.EventAssignmentResponded, Data: conv})
	s.publishSnapshot(hub.EventConversationUpdated, conv)
	return conv, nil
}

// Reject declines a pending assignment and returns the conversation to the
// unassigned pool.
func (s *Service) Reject(ctx context.Context, id string, actor Actor) (Conversation, error) {
	conv, err := s.mutate(ctx, id, func(conv Conversation) (Conversation, *HistoryLog, error) {
		if conv.AssignedAgentID != actor.AccountID {
			return Conversation{}, nil, fmt.Errorf("%w: assignment belongs to another agent", ErrInvalidTransition)
		}
		updated, err := ApplyAssignment(conv, AssignmentRejected, actor, "")
		if err != nil {
			return Conversation{}, nil, err
		}
		updated.AssignedAgentID = ""
		updated.AssignedAt = nil
		return updated, nil, nil
	})
	if err != nil {
		return Conversation{}, err
	}
	s.publisher.Publish(hub.TopicAdmin, hub.Event{Type: hub.EventAssignmentResponded, Data: conv})
	s.publishSnapshot(hub.EventConversationUpdated, conv)
	return conv, nil
}

// ForceAssign hands the conversation to an agent without asking. Admin only,
// and the justification comment is mandatory.
func (s *Service) ForceAssign(ctx context.Context, id, agentID string, actor Actor, comment string) (Conversation, error) {
	conv, err := s.mutate(ctx, id, func(conv Conversation) (Conversation, *HistoryLog, error) {
		updated, err := ApplyAssignment(conv, AssignmentForced, actor, comment)
		if err != nil {
			return Conversation{}, nil, err
		}
		now := s.now()
		updated.AssignedAgentID = agentID
		updated.AssignedAt = &now
		if updated.Status == StatusWaiting {
			withStatus, audit, err := Apply(updated, StatusHuman, actor, HistoryLog{ChangedAt: now})
			if err != nil {
				return Conversation{}, nil, err
			}
			return withStatus, &audit, nil
		}
		return updated, nil, nil
	})
	if err != nil {
		return Conversation{}, err
	}
	s.logger.Info("assignment forced",
		slog.String("conversation_id", id),
		slog.String("agent_id", agentID),
		slog.String("admin_id", actor.AccountID))
	s.publisher.Publish(hub.UserTopic(agentID), hub.Event{Type: hub.EventAssignmentRequested, Data: conv})
	s.publishSnapshot(hub.EventConversationUpdated, conv)
	return conv, nil
}

// Close ends the conversation on behalf of the actor.
func (s *Service) Close(ctx context.Context, id string, actor Actor) (Conversation, error) {
	return s.ChangeStatus(ctx, id, StatusClosed, actor)
}

// mutate loads the conversation, applies fn, and writes the result. A lost
// version race is retried once on a fresh read.
func (s *Service) mutate(ctx context.Context, id string, fn func(Conversation) (Conversation, *HistoryLog, error)) (Conversation, error) {
	conv, err := s.store.Get(ctx, id)
	if err != nil {
		return Conversation{}, err
	}
	for attempt := 0; ; attempt++ {
		updated, audit, err := fn(conv)
		if err != nil {
			return Conversation{}, err
		}
		persisted, err := s.store.Update(ctx, updated, audit)
		if err == nil {
			return persisted, nil
		}
		if !errors.Is(err, ErrPersistenceConflict) || attempt > 0 {
			return Conversation{}, err
		}
		s.logger.Debug("retrying conversation write after version conflict",
			slog.String("conversation_id", id))
		conv, err = s.store.Get(ctx, id)
		if err != nil {
			return Conversation{}, err
		}
	}
}

func (s *Service) publishSnapshot(eventType string, conv Conversation) {
	event := hub.Event{Type: eventType, Data: conv}
	s.publisher.Publish(hub.ConversationTopic(conv.ID), event)
	s.publisher.Publish(hub.TopicAdmin, event)
}
