package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/Jefrey13/chatdesk/internal/config"
	"github.com/Jefrey13/chatdesk/internal/logger"
	"github.com/Jefrey13/chatdesk/internal/message"
	"github.com/Jefrey13/chatdesk/internal/provider"
)

func TestWebhookVerify(t *testing.T) {
	t.Parallel()

	h := NewWebhookHandler(nil, nil, config.ProviderConfig{VerifyToken: "shared-secret"}, logger.L)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=shared-secret&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	if err := h.Verify(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.String() != "12345" {
		t.Fatalf("code=%d body=%q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec = httptest.NewRecorder()
	err := h.Verify(e.NewContext(req, rec))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("err = %v, want 403", err)
	}
}

func TestToInboundEventText(t *testing.T) {
	t.Parallel()

	msg := provider.WebhookMessage{
		From:      "50588880000",
		ID:        "wamid.1",
		Timestamp: "1741600000",
		Type:      "text",
		Text:      &provider.TextBody{Body: "hola"},
	}
	contacts := []provider.WebhookContact{{WaID: "50588880000"}}
	contacts[0].Profile.Name = "María"

	ev := toInboundEvent(msg, contacts)
	if ev.FromPhone != "50588880000" || ev.ExternalID != "wamid.1" {
		t.Fatalf("identity = %+v", ev)
	}
	if ev.ProfileName != "María" {
		t.Fatalf("profile = %q", ev.ProfileName)
	}
	if ev.Text != "hola" || ev.Type != message.TypeText || ev.MediaID != "" {
		t.Fatalf("content = %+v", ev)
	}
	if ev.SentAt.Unix() != 1741600000 {
		t.Fatalf("sent at = %v", ev.SentAt)
	}
}

func TestToInboundEventMedia(t *testing.T) {
	t.Parallel()

	msg := provider.WebhookMessage{
		From:  "50588880000",
		ID:    "wamid.2",
		Type:  "image",
		Image: &provider.MediaBody{ID: "media-9", Caption: "mi recibo"},
	}
	ev := toInboundEvent(msg, nil)
	if ev.Type != message.TypeImage || ev.MediaID != "media-9" || ev.Caption != "mi recibo" {
		t.Fatalf("media event = %+v", ev)
	}
	if ev.Text != "" {
		t.Fatalf("text = %q, want empty for media", ev.Text)
	}
}

func TestMapDeliveryStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]message.DeliveryStatus{
		"sent":      message.StatusSent,
		"delivered": message.StatusDelivered,
		"read":      message.StatusRead,
		"failed":    message.StatusFailed,
	}
	for raw, want := range cases {
		got, ok := mapDeliveryStatus(raw)
		if !ok || got != want {
			t.Errorf("mapDeliveryStatus(%q) = %q, %v", raw, got, ok)
		}
	}
	if _, ok := mapDeliveryStatus("warmed"); ok {
		t.Error("unknown status mapped")
	}
}
