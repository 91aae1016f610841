package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Jefrey13/chatdesk/internal/config"
	"github.com/Jefrey13/chatdesk/internal/contact"
	"github.com/Jefrey13/chatdesk/internal/conversation"
	"github.com/Jefrey13/chatdesk/internal/message"
)

type fakeConversations struct {
	bot []conversation.Conversation

	warned  []string
	closed  []string
	markErr map[string]error
}

func (f *fakeConversations) ListByStatus(_ context.Context, status conversation.Status) ([]conversation.Conversation, error) {
	if status != conversation.StatusBot {
		return nil, nil
	}
	return f.bot, nil
}

func (f *fakeConversations) MarkWarned(_ context.Context, id string, at time.Time) (conversation.Conversation, error) {
	if err := f.markErr[id]; err != nil {
		return conversation.Conversation{}, err
	}
	f.warned = append(f.warned, id)
	for i, conv := range f.bot {
		if conv.ID == id {
			f.bot[i].WarningSentAt = &at
			return f.bot[i], nil
		}
	}
	return conversation.Conversation{}, conversation.ErrNotFound
}

func (f *fakeConversations) Close(_ context.Context, id string, _ conversation.Actor) (conversation.Conversation, error) {
	f.closed = append(f.closed, id)
	for i, conv := range f.bot {
		if conv.ID == id {
			f.bot[i].Status = conversation.StatusClosed
			return f.bot[i], nil
		}
	}
	return conversation.Conversation{}, conversation.ErrNotFound
}

type fakeContacts struct{}

func (fakeContacts) Get(_ context.Context, id string) (contact.Contact, error) {
	return contact.Contact{ID: id, PhoneNumber: "505" + id}, nil
}

type fakeOutbound struct {
	texts    []string
	sendErrs int
}

func (f *fakeOutbound) Send(_ context.Context, _, _, text, _ string) (message.Message, error) {
	if f.sendErrs > 0 {
		f.sendErrs--
		return message.Message{}, errors.New("provider unavailable")
	}
	f.texts = append(f.texts, text)
	return message.Message{Content: text}, nil
}

func testMonitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		TimeZone:    "America/Managua",
		WarnAfter:   "1m",
		CloseAfter:  "2m",
		WarningText: "¿Sigues ahí?",
		ClosingText: "Conversación cerrada por inactividad.",
	}
}

func newTestMonitor(t *testing.T, convs *fakeConversations, out *fakeOutbound, at time.Time) *Monitor {
	t.Helper()
	m, err := New(convs, fakeContacts{}, out, testMonitorConfig(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.now = func() time.Time { return at }
	return m
}

func botConversation(id string, lastClient time.Time) conversation.Conversation {
	return conversation.Conversation{
		ID:                  id,
		ContactID:           "ct-" + id,
		Status:              conversation.StatusBot,
		Version:             1,
		CreatedAt:           lastClient.Add(-time.Hour),
		ClientLastMessageAt: &lastClient,
	}
}

func TestSweepWarnsAfterThreshold(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	convs := &fakeConversations{bot: []conversation.Conversation{
		botConversation("c-idle", now.Add(-90*time.Second)),
		botConversation("c-active", now.Add(-10*time.Second)),
	}}
	out := &fakeOutbound{}
	m := newTestMonitor(t, convs, out, now)

	if err := m.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(convs.warned) != 1 || convs.warned[0] != "c-idle" {
		t.Fatalf("warned = %v", convs.warned)
	}
	if len(convs.closed) != 0 {
		t.Fatalf("closed = %v, want none", convs.closed)
	}
	if len(out.texts) != 1 || out.texts[0] != "¿Sigues ahí?" {
		t.Fatalf("texts = %v", out.texts)
	}
}

func TestSweepClosesAfterWarning(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	warnedAt := now.Add(-time.Minute)
	conv := botConversation("c1", now.Add(-150*time.Second))
	conv.WarningSentAt = &warnedAt
	convs := &fakeConversations{bot: []conversation.Conversation{conv}}
	out := &fakeOutbound{}
	m := newTestMonitor(t, convs, out, now)

	if err := m.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(convs.closed) != 1 || convs.closed[0] != "c1" {
		t.Fatalf("closed = %v", convs.closed)
	}
	if len(out.texts) != 1 || out.texts[0] != "Conversación cerrada por inactividad." {
		t.Fatalf("texts = %v", out.texts)
	}
}

func TestSweepOneChangePerTick(t *testing.T) {
	t.Parallel()

	// Long idle but never warned: this tick warns, the next one may close.
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	convs := &fakeConversations{bot: []conversation.Conversation{
		botConversation("c1", now.Add(-10*time.Minute)),
	}}
	out := &fakeOutbound{}
	m := newTestMonitor(t, convs, out, now)

	if err := m.Sweep(context.Background()); err != nil {
		t.Fatalf("first Sweep: %v", err)
	}
	if len(convs.warned) != 1 || len(convs.closed) != 0 {
		t.Fatalf("after first tick: warned=%v closed=%v", convs.warned, convs.closed)
	}

	m.now = func() time.Time { return now.Add(time.Minute) }
	if err := m.Sweep(context.Background()); err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if len(convs.closed) != 1 {
		t.Fatalf("after second tick: closed=%v", convs.closed)
	}
}

func TestSweepWarningClearedByActivity(t *testing.T) {
	t.Parallel()

	// The client replied after the warning: warning_sent_at was cleared, so
	// the conversation starts the warn cycle over instead of closing.
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	convs := &fakeConversations{bot: []conversation.Conversation{
		botConversation("c1", now.Add(-30*time.Second)),
	}}
	out := &fakeOutbound{}
	m := newTestMonitor(t, convs, out, now)

	if err := m.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(convs.warned) != 0 || len(convs.closed) != 0 {
		t.Fatalf("warned=%v closed=%v, want none", convs.warned, convs.closed)
	}
}

func TestSweepIsolatesPerConversationErrors(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	convs := &fakeConversations{
		bot: []conversation.Conversation{
			botConversation("c-bad", now.Add(-2*time.Minute)),
			botConversation("c-good", now.Add(-2*time.Minute)),
		},
		markErr: map[string]error{"c-bad": errors.New("version conflict")},
	}
	out := &fakeOutbound{}
	m := newTestMonitor(t, convs, out, now)

	if err := m.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(convs.warned) != 1 || convs.warned[0] != "c-good" {
		t.Fatalf("warned = %v", convs.warned)
	}
}

func TestSweepStopsOnCancellation(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	convs := &fakeConversations{bot: []conversation.Conversation{
		botConversation("c1", now.Add(-2*time.Minute)),
		botConversation("c2", now.Add(-2*time.Minute)),
	}}
	m := newTestMonitor(t, convs, &fakeOutbound{}, now)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Sweep(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(convs.warned) != 0 {
		t.Fatalf("warned = %v, want none after cancellation", convs.warned)
	}
}

func TestSweepRetriesWarningAfterFailedSend(t *testing.T) {
	t.Parallel()

	// A warning that never reached the client must not consume the warning
	// slot: the timestamp stays unset and the next sweep sends again.
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	convs := &fakeConversations{bot: []conversation.Conversation{
		botConversation("c-idle", now.Add(-90*time.Second)),
	}}
	out := &fakeOutbound{sendErrs: 1}
	m := newTestMonitor(t, convs, out, now)

	if err := m.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(convs.warned) != 0 {
		t.Fatalf("warned = %v, want none after failed send", convs.warned)
	}
	if convs.bot[0].WarningSentAt != nil {
		t.Fatal("warning timestamp stamped despite failed send")
	}

	if err := m.Sweep(context.Background()); err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if len(convs.warned) != 1 || convs.warned[0] != "c-idle" {
		t.Fatalf("warned = %v, want [c-idle]", convs.warned)
	}
	if len(out.texts) != 1 || out.texts[0] != "¿Sigues ahí?" {
		t.Fatalf("texts = %v", out.texts)
	}
}

func TestNewRejectsUnknownTimeZone(t *testing.T) {
	t.Parallel()

	cfg := testMonitorConfig()
	cfg.TimeZone = "Mars/Olympus"
	_, err := New(&fakeConversations{}, fakeContacts{}, &fakeOutbound{}, cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		t.Fatal("expected error for unknown time zone")
	}
}
