package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Jefrey13/chatdesk/internal/auth"
	"github.com/Jefrey13/chatdesk/internal/contact"
	"github.com/Jefrey13/chatdesk/internal/conversation"
	"github.com/Jefrey13/chatdesk/internal/message"
)

// ContactLookup resolves the phone number behind a conversation.
type ContactLookup interface {
	Get(ctx context.Context, id string) (contact.Contact, error)
}

// AgentSender is the outbound path for agent replies.
type AgentSender interface {
	Send(ctx context.Context, conversationID, toPhone, text, senderAccountID string) (message.Message, error)
}

// ConversationsHandler exposes the agent console's conversation views and
// state-changing operations.
type ConversationsHandler struct {
	conversations *conversation.Service
	messages      *message.Service
	contacts      ContactLookup
	sender        AgentSender
	logger        *slog.Logger
}

// NewConversationsHandler creates the conversations handler.
func NewConversationsHandler(conversations *conversation.Service, messages *message.Service, contacts ContactLookup, sender AgentSender, logger *slog.Logger) *ConversationsHandler {
	return &ConversationsHandler{
		conversations: conversations,
		messages:      messages,
		contacts:      contacts,
		sender:        sender,
		logger:        logger.With(slog.String("handler", "conversations")),
	}
}

func (h *ConversationsHandler) Register(e *echo.Echo) {
	group := e.Group("/conversations")
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.GET("/:id/messages", h.ListMessages)
	group.GET("/:id/history", h.History)
	group.POST("/:id/messages", h.SendMessage)
	group.POST("/:id/support", h.Support)
	group.PUT("/:id/status", h.ChangeStatus)
	group.POST("/:id/assign", h.Assign)
	group.POST("/:id/accept", h.Accept)
	group.POST("/:id/reject", h.Reject)
	group.POST("/:id/force", h.Force)
}

// actor builds the audit actor from the authenticated request.
func actor(c echo.Context) (conversation.Actor, error) {
	accountID, err := auth.AccountIDFromContext(c)
	if err != nil {
		return conversation.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return conversation.Actor{
		AccountID: accountID,
		Role:      auth.RoleFromContext(c),
		SourceIP:  c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}, nil
}

// List returns conversations filtered by status (default waiting).
func (h *ConversationsHandler) List(c echo.Context) error {
	status := conversation.Status(c.QueryParam("status"))
	if status == "" {
		status = conversation.StatusWaiting
	}
	if !status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status")
	}
	items, err := h.conversations.ListByStatus(c.Request().Context(), status)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ConversationsHandler) Get(c echo.Context) error {
	conv, err := h.conversations.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *ConversationsHandler) ListMessages(c echo.Context) error {
	items, err := h.messages.ListByConversation(c.Request().Context(), c.Param("id"), 0)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ConversationsHandler) History(c echo.Context) error {
	items, err := h.conversations.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, items)
}

type sendMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

// SendMessage delivers an agent reply to the client behind the conversation.
// Only human-attended conversations accept agent messages.
func (h *ConversationsHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	who, err := actor(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	conv, err := h.conversations.Get(ctx, c.Param("id"))
	if err != nil {
		return domainError(err)
	}
	if conv.Status != conversation.StatusHuman {
		return echo.NewHTTPError(http.StatusConflict, "conversation is not agent-attended")
	}
	ct, err := h.contacts.Get(ctx, conv.ContactID)
	if err != nil {
		return domainError(err)
	}
	msg, err := h.sender.Send(ctx, conv.ID, ct.PhoneNumber, req.Text, who.AccountID)
	if err != nil {
		return domainError(err)
	}
	if _, err := h.conversations.TouchAgentActivity(ctx, conv.ID, time.Now()); err != nil {
		h.logger.Warn("agent activity not recorded",
			slog.String("conversation_id", conv.ID),
			slog.String("error", err.Error()))
	}
	return c.JSON(http.StatusCreated, msg)
}

// Support moves a bot conversation into the waiting queue on the client's
// behalf.
func (h *ConversationsHandler) Support(c echo.Context) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	conv, err := h.conversations.RequestSupport(c.Request().Context(), c.Param("id"), who)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

type changeStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// ChangeStatus applies an explicit transition, recording who asked and from
// where.
func (h *ConversationsHandler) ChangeStatus(c echo.Context) error {
	var req changeStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	who, err := actor(c)
	if err != nil {
		return err
	}
	conv, err := h.conversations.ChangeStatus(c.Request().Context(),
		c.Param("id"), conversation.Status(req.Status), who)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

type assignRequest struct {
	AgentID string `json:"agent_id" validate:"required"`
	Comment string `json:"comment"`
}

// Assign offers the conversation to an agent. Admin only.
func (h *ConversationsHandler) Assign(c echo.Context) error {
	if !auth.IsAdmin(c) {
		return echo.NewHTTPError(http.StatusForbidden, "admin required")
	}
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	who, err := actor(c)
	if err != nil {
		return err
	}
	conv, err := h.conversations.Assign(c.Request().Context(), c.Param("id"), req.AgentID, who)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *ConversationsHandler) Accept(c echo.Context) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	conv, err := h.conversations.Accept(c.Request().Context(), c.Param("id"), who)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *ConversationsHandler) Reject(c echo.Context) error {
	who, err := actor(c)
	if err != nil {
		return err
	}
	conv, err := h.conversations.Reject(c.Request().Context(), c.Param("id"), who)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

type forceRequest struct {
	AgentID string `json:"agent_id" validate:"required"`
	Comment string `json:"comment" validate:"required"`
}

// Force hands the conversation to an agent without asking. Admin only, and
// the justification comment is required.
func (h *ConversationsHandler) Force(c echo.Context) error {
	if !auth.IsAdmin(c) {
		return echo.NewHTTPError(http.StatusForbidden, "admin required")
	}
	var req forceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	who, err := actor(c)
	if err != nil {
		return err
	}
	conv, err := h.conversations.ForceAssign(c.Request().Context(), c.Param("id"), req.AgentID, who, req.Comment)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, conv)
}
