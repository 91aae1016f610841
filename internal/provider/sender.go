package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Jefrey13/chatdesk/internal/ai"
	"github.com/Jefrey13/chatdesk/internal/config"
)

// ErrSendFailed marks an outbound message the provider did not accept. It
// wraps ai.ErrDownstreamUnavailable so callers can match every downstream
// failure with one sentinel.
var ErrSendFailed = fmt.Errorf("provider send failed: %w", ai.ErrDownstreamUnavailable)

type sendTextRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             TextBody `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Sender pushes outbound messages through the provider API.
type Sender struct {
	http          *resty.Client
	phoneNumberID string
	logger        *slog.Logger
}

// NewSender creates a provider sender from the configuration.
func NewSender(cfg config.ProviderConfig, logger *slog.Logger) *Sender {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetAuthToken(cfg.AccessToken).
		SetHeader("Content-Type", "application/json")
	return &Sender{
		http:          httpClient,
		phoneNumberID: cfg.PhoneNumberID,
		logger:        logger.With(slog.String("service", "provider")),
	}
}

// SendText delivers a text message to the phone number and returns the
// provider's id for it.
func (s *Sender) SendText(ctx context.Context, toPhone, text string) (string, error) {
	var parsed sendResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(sendTextRequest{
			MessagingProduct: "whatsapp",
			To:               toPhone,
			Type:             "text",
			Text:             TextBody{Body: text},
		}).
		SetResult(&parsed).
		SetError(&parsed).
		Post("/" + s.phoneNumberID + "/messages")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if resp.IsError() {
		s.logger.Warn("provider rejected outbound message",
			slog.Int("status", resp.StatusCode()),
			slog.Int("code", parsed.Error.Code),
			slog.String("error", parsed.Error.Message))
		return "", fmt.Errorf("%w: status %d", ErrSendFailed, resp.StatusCode())
	}
	if len(parsed.Messages) == 0 {
		return "", fmt.Errorf("%w: no message id in response", ErrSendFailed)
	}
	return parsed.Messages[0].ID, nil
}
