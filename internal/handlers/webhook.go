package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Jefrey13/chatdesk/internal/config"
	"github.com/Jefrey13/chatdesk/internal/ingest"
	"github.com/Jefrey13/chatdesk/internal/message"
	"github.com/Jefrey13/chatdesk/internal/provider"
)

// WebhookHandler receives provider deliveries: the GET verification
// handshake, inbound messages, and delivery-status callbacks.
type WebhookHandler struct {
	pipeline    *ingest.Pipeline
	messages    *message.Service
	verifyToken string
	logger      *slog.Logger
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(pipeline *ingest.Pipeline, messages *message.Service, cfg config.ProviderConfig, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		pipeline:    pipeline,
		messages:    messages,
		verifyToken: cfg.VerifyToken,
		logger:      logger.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhook", h.Verify)
	e.POST("/webhook", h.Receive)
}

// Verify answers the provider's subscription handshake.
func (h *WebhookHandler) Verify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")
	if mode != "subscribe" || token != h.verifyToken {
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	return c.String(http.StatusOK, challenge)
}

// Receive processes one webhook delivery. Any processing error fails the
// whole delivery so the provider redelivers; the duplicate check makes the
// replay harmless.
func (h *WebhookHandler) Receive(c echo.Context) error {
	var payload provider.WebhookPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				ev := toInboundEvent(msg, change.Value.Contacts)
				if err := h.pipeline.ProcessInbound(ctx, ev); err != nil {
					h.logger.Error("inbound processing failed",
						slog.String("external_id", msg.ID),
						slog.String("error", err.Error()))
					return domainError(err)
				}
			}
			for _, status := range change.Value.Statuses {
				if err := h.applyStatus(c, status); err != nil {
					return err
				}
			}
		}
	}
	return c.NoContent(http.StatusOK)
}

func (h *WebhookHandler) applyStatus(c echo.Context, status provider.WebhookStatus) error {
	mapped, ok := mapDeliveryStatus(status.Status)
	if !ok {
		h.logger.Debug("ignoring unknown delivery status",
			slog.String("status", status.Status),
			slog.String("external_id", status.ID))
		return nil
	}
	at := time.Now()
	if seconds := (provider.WebhookMessage{Timestamp: status.Timestamp}).UnixTime(); seconds > 0 {
		at = time.Unix(seconds, 0)
	}
	_, err := h.messages.ApplyDeliveryStatus(c.Request().Context(), status.ID, mapped, at)
	if err != nil {
		// Status callbacks can outlive our retention or race the send.
		if errors.Is(err, message.ErrNotFound) {
			h.logger.Debug("delivery status for unknown message",
				slog.String("external_id", status.ID))
			return nil
		}
		return domainError(err)
	}
	return nil
}

func mapDeliveryStatus(raw string) (message.DeliveryStatus, bool) {
	switch raw {
	case "sent":
		return message.StatusSent, true
	case "delivered":
		return message.StatusDelivered, true
	case "read":
		return message.StatusRead, true
	case "failed":
		return message.StatusFailed, true
	default:
		return "", false
	}
}

func toInboundEvent(msg provider.WebhookMessage, contacts []provider.WebhookContact) ingest.InboundEvent {
	ev := ingest.InboundEvent{
		FromPhone:  msg.From,
		ExternalID: msg.ID,
		Text:       "",
		Type:       message.TypeText,
	}
	for _, ct := range contacts {
		if ct.WaID == msg.From {
			ev.ProfileName = ct.Profile.Name
			break
		}
	}
	if seconds := msg.UnixTime(); seconds > 0 {
		ev.SentAt = time.Unix(seconds, 0)
	}
	switch {
	case msg.Text != nil:
		ev.Text = msg.Text.Body
	case msg.Interactive != nil:
		ev.Type = message.TypeInteractive
		ev.Text = msg.Body()
	case msg.Image != nil:
		ev.Type = message.TypeImage
		ev.MediaID = msg.Image.ID
		ev.Caption = msg.Image.Caption
	case msg.Audio != nil:
		ev.Type = message.TypeAudio
		ev.MediaID = msg.Audio.ID
	case msg.Video != nil:
		ev.Type = message.TypeVideo
		ev.MediaID = msg.Video.ID
		ev.Caption = msg.Video.Caption
	case msg.Document != nil:
		ev.Type = message.TypeDocument
		ev.MediaID = msg.Document.ID
		ev.Caption = msg.Document.Caption
	case msg.Sticker != nil:
		ev.Type = message.TypeSticker
		ev.MediaID = msg.Sticker.ID
	}
	return ev
}
