// Package monitor closes idle bot conversations: one warning after the first
// threshold, closure after the second.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Jefrey13/chatdesk/internal/config"
	"github.com/Jefrey13/chatdesk/internal/contact"
	"github.com/Jefrey13/chatdesk/internal/conversation"
	"github.com/Jefrey13/chatdesk/internal/message"
)

// Conversations is the slice of the conversation service the monitor needs.
type Conversations interface {
	ListByStatus(ctx context.Context, status conversation.Status) ([]conversation.Conversation, error)
	MarkWarned(ctx context.Context, id string, at time.Time) (conversation.Conversation, error)
	Close(ctx context.Context, id string, actor conversation.Actor) (conversation.Conversation, error)
}

// Contacts looks up the phone number to notify.
type Contacts interface {
	Get(ctx context.Context, id string) (contact.Contact, error)
}

// Outbound is the single send path for messages leaving the system.
type Outbound interface {
	Send(ctx context.Context, conversationID, toPhone, text, senderAccountID string) (message.Message, error)
}

// Monitor sweeps bot conversations once a minute.
type Monitor struct {
	conversations Conversations
	contacts      Contacts
	outbound      Outbound
	logger        *slog.Logger

	location    *time.Location
	warnAfter   time.Duration
	closeAfter  time.Duration
	warningText string
	closingText string
	now         func() time.Time

	cron *cron.Cron
}

// New creates the monitor from the configuration. An unknown time zone is an
// error: sweeping in the wrong zone warns people at the wrong moment.
func New(conversations Conversations, contacts Contacts, outbound Outbound, cfg config.MonitorConfig, logger *slog.Logger) (*Monitor, error) {
	location, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load monitor time zone %q: %w", cfg.TimeZone, err)
	}
	return &Monitor{
		conversations: conversations,
		contacts:      contacts,
		outbound:      outbound,
		logger:        logger.With(slog.String("service", "monitor")),
		location:      location,
		warnAfter:     cfg.WarnThreshold(),
		closeAfter:    cfg.CloseThreshold(),
		warningText:   cfg.WarningText,
		closingText:   cfg.ClosingText,
		now:           time.Now,
	}, nil
}

// Start schedules the sweep every minute until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	m.cron = cron.New()
	_, err := m.cron.AddFunc("@every 1m", func() {
		if ctx.Err() != nil {
			return
		}
		if err := m.Sweep(ctx); err != nil {
			m.logger.Error("sweep failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule monitor: %w", err)
	}
	m.cron.Start()
	m.logger.Info("inactivity monitor started",
		slog.String("warn_after", m.warnAfter.String()),
		slog.String("close_after", m.closeAfter.String()),
		slog.String("time_zone", m.location.String()))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (m *Monitor) Stop() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
}

// Sweep examines every bot conversation once. Each conversation gets at most
// one state change per sweep, and a failure on one conversation never blocks
// the rest.
func (m *Monitor) Sweep(ctx context.Context) error {
	now := m.now().In(m.location).Truncate(time.Second)
	conversations, err := m.conversations.ListByStatus(ctx, conversation.StatusBot)
	if err != nil {
		return fmt.Errorf("list bot conversations: %w", err)
	}
	for _, conv := range conversations {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.sweepOne(ctx, conv, now); err != nil {
			m.logger.Warn("skipping conversation after sweep error",
				slog.String("conversation_id", conv.ID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func (m *Monitor) sweepOne(ctx context.Context, conv conversation.Conversation, now time.Time) error {
	elapsed := now.Sub(conv.LastClientActivity())

	if conv.WarningSentAt != nil {
		if elapsed < m.closeAfter {
			return nil
		}
		closed, err := m.conversations.Close(ctx, conv.ID, conversation.Actor{})
		if err != nil {
			return fmt.Errorf("close idle conversation: %w", err)
		}
		m.logger.Info("conversation closed for inactivity",
			slog.String("conversation_id", closed.ID),
			slog.String("idle", elapsed.String()))
		// The close is already committed; a failed goodbye is only logged.
		if err := m.notify(ctx, closed, m.closingText); err != nil {
			m.logger.Error("closing notification failed",
				slog.String("conversation_id", closed.ID),
				slog.String("error", err.Error()))
		}
		return nil
	}

	if elapsed < m.warnAfter {
		return nil
	}
	// The warning slot is consumed only by a delivered warning. On a send
	// failure the timestamp stays unset and the next sweep retries.
	if err := m.notify(ctx, conv, m.warningText); err != nil {
		return fmt.Errorf("send inactivity warning: %w", err)
	}
	warned, err := m.conversations.MarkWarned(ctx, conv.ID, now)
	if err != nil {
		return fmt.Errorf("mark warned: %w", err)
	}
	m.logger.Info("inactivity warning sent",
		slog.String("conversation_id", warned.ID),
		slog.String("idle", elapsed.String()))
	return nil
}

// notify sends the text to the conversation's contact.
func (m *Monitor) notify(ctx context.Context, conv conversation.Conversation, text string) error {
	resolved, err := m.contacts.Get(ctx, conv.ContactID)
	if err != nil {
		return fmt.Errorf("contact lookup: %w", err)
	}
	if _, err := m.outbound.Send(ctx, conv.ID, resolved.PhoneNumber, text, ""); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}
