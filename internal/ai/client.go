// Package ai generates assistant replies through an OpenAI-compatible chat
// completion endpoint.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Jefrey13/chatdesk/internal/config"
)

// ErrDownstreamUnavailable marks a downstream service that could not serve
// the request, whether network failure, non-2xx response, or an empty
// completion. The provider's send errors wrap it too.
var ErrDownstreamUnavailable = errors.New("downstream service unavailable")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client calls the chat completion API.
type Client struct {
	http         *resty.Client
	model        string
	systemPrompt string
	logger       *slog.Logger
}

// NewClient creates a reply generator from the configuration.
func NewClient(cfg config.AIConfig, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		httpClient.SetAuthToken(cfg.APIKey)
	}
	return &Client{
		http:         httpClient,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		logger:       logger.With(slog.String("service", "ai")),
	}
}

// Generate produces a reply to the user's text. Failures of any kind come
// back wrapped in ErrDownstreamUnavailable so callers can fall back without
// inspecting transport details.
func (c *Client) Generate(ctx context.Context, userText string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: userText},
		},
	}
	var parsed chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&parsed).
		SetError(&parsed).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownstreamUnavailable, err)
	}
	if resp.IsError() {
		c.logger.Warn("completion request failed",
			slog.Int("status", resp.StatusCode()),
			slog.String("error", parsed.Error.Message))
		if msg := strings.TrimSpace(parsed.Error.Message); msg != "" {
			return "", fmt.Errorf("%w: status %d: %s", ErrDownstreamUnavailable, resp.StatusCode(), msg)
		}
		return "", fmt.Errorf("%w: status %d", ErrDownstreamUnavailable, resp.StatusCode())
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrDownstreamUnavailable)
	}
	reply := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("%w: empty completion", ErrDownstreamUnavailable)
	}
	return reply, nil
}
