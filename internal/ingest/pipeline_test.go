package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Jefrey13/chatdesk/internal/ai"
	"github.com/Jefrey13/chatdesk/internal/config"
	"github.com/Jefrey13/chatdesk/internal/contact"
	"github.com/Jefrey13/chatdesk/internal/conversation"
	"github.com/Jefrey13/chatdesk/internal/message"
)

type fakeContacts struct {
	byPhone map[string]contact.Contact
}

func (f *fakeContacts) Resolve(_ context.Context, phone, displayName string) (contact.Contact, error) {
	if c, ok := f.byPhone[phone]; ok {
		return c, nil
	}
	c := contact.Contact{ID: "ct-" + phone, PhoneNumber: phone, DisplayName: displayName}
	if f.byPhone == nil {
		f.byPhone = make(map[string]contact.Contact)
	}
	f.byPhone[phone] = c
	return c, nil
}

type fakeConversations struct {
	byContact map[string]*conversation.Conversation
	flips     int
}

func (f *fakeConversations) get(contactID string) *conversation.Conversation {
	if f.byContact == nil {
		f.byContact = make(map[string]*conversation.Conversation)
	}
	return f.byContact[contactID]
}

func (f *fakeConversations) GetOrCreateForContact(_ context.Context, contactID string) (conversation.Conversation, bool, error) {
	if conv := f.get(contactID); conv != nil {
		return *conv, false, nil
	}
	conv := &conversation.Conversation{
		ID:        "conv-" + contactID,
		ContactID: contactID,
		Status:    conversation.StatusNew,
		Version:   1,
		CreatedAt: time.Now(),
	}
	f.byContact[contactID] = conv
	return *conv, true, nil
}

func (f *fakeConversations) MarkInitialized(_ context.Context, id string) (conversation.Conversation, bool, error) {
	for _, conv := range f.byContact {
		if conv.ID != id {
			continue
		}
		if conv.Initialized {
			return *conv, false, nil
		}
		conv.Initialized = true
		conv.Status = conversation.StatusBot
		conv.Version++
		f.flips++
		return *conv, true, nil
	}
	return conversation.Conversation{}, false, conversation.ErrNotFound
}

func (f *fakeConversations) TouchClientActivity(_ context.Context, id string, at time.Time) (conversation.Conversation, error) {
	for _, conv := range f.byContact {
		if conv.ID == id {
			conv.ClientLastMessageAt = &at
			conv.WarningSentAt = nil
			conv.Version++
			return *conv, nil
		}
	}
	return conversation.Conversation{}, conversation.ErrNotFound
}

type fakeMessages struct {
	inbound []message.Message
}

func (f *fakeMessages) RecordInbound(_ context.Context, msg message.Message) (message.Message, error) {
	if msg.ExternalID != "" {
		for _, existing := range f.inbound {
			if existing.ConversationID == msg.ConversationID && existing.ExternalID == msg.ExternalID {
				return message.Message{}, fmt.Errorf("%w: %s", message.ErrDuplicateEvent, msg.ExternalID)
			}
		}
	}
	msg.Direction = message.DirectionInbound
	f.inbound = append(f.inbound, msg)
	return msg, nil
}

type fakeGenerator struct {
	reply string
	err   error
	calls int
}

func (f *fakeGenerator) Generate(context.Context, string) (string, error) {
	f.calls++
	return f.reply, f.err
}

type sentText struct {
	conversationID string
	toPhone        string
	text           string
}

type fakeOutbound struct {
	sent []sentText
	err  error
}

func (f *fakeOutbound) Send(_ context.Context, conversationID, toPhone, text, _ string) (message.Message, error) {
	if f.err != nil {
		return message.Message{}, f.err
	}
	f.sent = append(f.sent, sentText{conversationID: conversationID, toPhone: toPhone, text: text})
	return message.Message{ConversationID: conversationID, Content: text, Direction: message.DirectionOutbound}, nil
}

func testConfig() config.MonitorConfig {
	return config.MonitorConfig{
		WelcomeText:  "¡Hola! ¿En qué podemos ayudarte?",
		FallbackText: "Lo sentimos, no podemos responder en este momento.",
	}
}

func newTestPipeline() (*Pipeline, *fakeContacts, *fakeConversations, *fakeMessages, *fakeGenerator, *fakeOutbound) {
	contacts := &fakeContacts{}
	convs := &fakeConversations{}
	msgs := &fakeMessages{}
	gen := &fakeGenerator{reply: "Con gusto le ayudo."}
	out := &fakeOutbound{}
	p := NewPipeline(contacts, convs, msgs, gen, out, testConfig(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return p, contacts, convs, msgs, gen, out
}

func TestProcessInboundFirstMessage(t *testing.T) {
	t.Parallel()

	p, contacts, convs, msgs, _, out := newTestPipeline()

	err := p.ProcessInbound(context.Background(), InboundEvent{
		FromPhone:   "50588880000",
		ProfileName: "María",
		ExternalID:  "wamid.1",
		Text:        "hola, necesito ayuda",
		SentAt:      time.Now(),
	})
	if err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}

	if _, ok := contacts.byPhone["50588880000"]; !ok {
		t.Fatal("contact not created")
	}
	conv := convs.get("ct-50588880000")
	if conv == nil {
		t.Fatal("conversation not created")
	}
	if conv.Status != conversation.StatusBot || !conv.Initialized {
		t.Fatalf("conversation = %+v", conv)
	}
	if conv.ClientLastMessageAt == nil {
		t.Fatal("client activity not recorded")
	}
	if len(msgs.inbound) != 1 || msgs.inbound[0].Content != "hola, necesito ayuda" {
		t.Fatalf("inbound rows = %+v", msgs.inbound)
	}
	// Welcome first, then the generated reply.
	if len(out.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(out.sent))
	}
	if out.sent[0].text != testConfig().WelcomeText {
		t.Fatalf("first send = %q", out.sent[0].text)
	}
	if out.sent[1].text != "Con gusto le ayudo." {
		t.Fatalf("second send = %q", out.sent[1].text)
	}
}

func TestProcessInboundWelcomeOnlyOnce(t *testing.T) {
	t.Parallel()

	p, _, convs, _, _, out := newTestPipeline()

	for i := 0; i < 3; i++ {
		err := p.ProcessInbound(context.Background(), InboundEvent{
			FromPhone:  "50588880000",
			ExternalID: fmt.Sprintf("wamid.%d", i),
			Text:       "hola",
			SentAt:     time.Now(),
		})
		if err != nil {
			t.Fatalf("ProcessInbound %d: %v", i, err)
		}
	}

	if convs.flips != 1 {
		t.Fatalf("initialized flipped %d times, want 1", convs.flips)
	}
	welcomes := 0
	for _, s := range out.sent {
		if s.text == testConfig().WelcomeText {
			welcomes++
		}
	}
	if welcomes != 1 {
		t.Fatalf("welcome sent %d times, want 1", welcomes)
	}
}

func TestProcessInboundDuplicateEventIsNoOp(t *testing.T) {
	t.Parallel()

	p, _, _, msgs, gen, out := newTestPipeline()

	ev := InboundEvent{FromPhone: "50588880000", ExternalID: "wamid.1", Text: "hola", SentAt: time.Now()}
	if err := p.ProcessInbound(context.Background(), ev); err != nil {
		t.Fatalf("first ProcessInbound: %v", err)
	}
	sentBefore := len(out.sent)
	callsBefore := gen.calls

	if err := p.ProcessInbound(context.Background(), ev); err != nil {
		t.Fatalf("replayed ProcessInbound: %v", err)
	}
	if len(msgs.inbound) != 1 {
		t.Fatalf("inbound rows = %d, want 1", len(msgs.inbound))
	}
	if len(out.sent) != sentBefore || gen.calls != callsBefore {
		t.Fatal("replay triggered another reply")
	}
}

func TestProcessInboundEmptyTextDropped(t *testing.T) {
	t.Parallel()

	p, contacts, _, msgs, _, out := newTestPipeline()

	err := p.ProcessInbound(context.Background(), InboundEvent{
		FromPhone:  "50588880000",
		ExternalID: "wamid.1",
		Text:       "   ",
	})
	if err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}
	if len(contacts.byPhone) != 0 || len(msgs.inbound) != 0 || len(out.sent) != 0 {
		t.Fatal("empty event caused side effects")
	}
}

func TestProcessInboundGeneratorFailureSendsFallback(t *testing.T) {
	t.Parallel()

	p, _, _, _, gen, out := newTestPipeline()
	gen.err = fmt.Errorf("%w: status 502", ai.ErrDownstreamUnavailable)

	err := p.ProcessInbound(context.Background(), InboundEvent{
		FromPhone:  "50588880000",
		ExternalID: "wamid.1",
		Text:       "hola",
		SentAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}
	last := out.sent[len(out.sent)-1]
	if last.text != testConfig().FallbackText {
		t.Fatalf("last send = %q, want fallback", last.text)
	}
}

func TestProcessInboundMediaSkipsReply(t *testing.T) {
	t.Parallel()

	p, _, _, msgs, gen, out := newTestPipeline()

	err := p.ProcessInbound(context.Background(), InboundEvent{
		FromPhone:  "50588880000",
		ExternalID: "wamid.1",
		Type:       message.TypeImage,
		MediaID:    "media-1",
		Caption:    "mi recibo",
		SentAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}
	if len(msgs.inbound) != 1 || msgs.inbound[0].Type != message.TypeImage || msgs.inbound[0].Content != "mi recibo" {
		t.Fatalf("inbound rows = %+v", msgs.inbound)
	}
	if gen.calls != 0 {
		t.Fatal("generator called for media turn")
	}
	welcomes := 0
	for _, s := range out.sent {
		if s.text == testConfig().WelcomeText {
			welcomes++
		}
	}
	if welcomes != 1 || len(out.sent) != 1 {
		t.Fatalf("sent = %+v, want only the welcome", out.sent)
	}
}

func TestProcessInboundPropagatesOutboundError(t *testing.T) {
	t.Parallel()

	p, _, convs, _, _, out := newTestPipeline()

	// Get past the welcome with a working channel first.
	if err := p.ProcessInbound(context.Background(), InboundEvent{
		FromPhone: "50588880000", ExternalID: "wamid.1", Text: "hola", SentAt: time.Now(),
	}); err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}
	out.err = errors.New("connection reset")

	err := p.ProcessInbound(context.Background(), InboundEvent{
		FromPhone: "50588880000", ExternalID: "wamid.2", Text: "sigues ahí?", SentAt: time.Now(),
	})
	if err == nil {
		t.Fatal("expected send error to propagate")
	}
	if conv := convs.get("ct-50588880000"); conv.ClientLastMessageAt == nil {
		t.Fatal("inbound side effects should land before the failed reply")
	}
}
