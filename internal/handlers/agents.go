package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Jefrey13/chatdesk/internal/accounts"
	"github.com/Jefrey13/chatdesk/internal/hub"
)

// AgentsHandler lists the console users and their presence, for the
// assignment picker.
type AgentsHandler struct {
	accounts *accounts.Service
	hub      *hub.Hub
	logger   *slog.Logger
}

type agentView struct {
	accounts.Account
	Online bool `json:"online"`
}

// NewAgentsHandler creates the agents handler.
func NewAgentsHandler(service *accounts.Service, h *hub.Hub, logger *slog.Logger) *AgentsHandler {
	return &AgentsHandler{
		accounts: service,
		hub:      h,
		logger:   logger.With(slog.String("handler", "agents")),
	}
}

func (h *AgentsHandler) Register(e *echo.Echo) {
	e.GET("/agents", h.List)
}

func (h *AgentsHandler) List(c echo.Context) error {
	items, err := h.accounts.ListActive(c.Request().Context())
	if err != nil {
		return domainError(err)
	}
	online := make(map[string]bool)
	for _, id := range h.hub.Online() {
		online[id] = true
	}
	views := make([]agentView, 0, len(items))
	for _, account := range items {
		views = append(views, agentView{Account: account, Online: online[account.ID]})
	}
	return c.JSON(http.StatusOK, views)
}
