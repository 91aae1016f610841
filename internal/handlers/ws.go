package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Jefrey13/chatdesk/internal/auth"
	"github.com/Jefrey13/chatdesk/internal/hub"
)

// SocketHandler upgrades agent connections and attaches them to the hub.
// The JWT middleware has already validated the token (query parameter for
// browsers that cannot set headers on websocket dials).
type SocketHandler struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewSocketHandler creates the websocket handler.
func NewSocketHandler(h *hub.Hub, logger *slog.Logger) *SocketHandler {
	return &SocketHandler{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The console runs on its own origin; token auth gates access.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With(slog.String("handler", "ws")),
	}
}

func (h *SocketHandler) Register(e *echo.Echo) {
	e.GET("/ws", h.Attach)
}

// Attach upgrades the connection and runs the read/write pumps.
func (h *SocketHandler) Attach(c echo.Context) error {
	accountID, err := auth.AccountIDFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	role := auth.RoleFromContext(c)

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()))
		return err
	}
	client := h.hub.Register(conn, accountID, role)
	go client.WritePump()
	go client.ReadPump(h.hub)
	return nil
}
