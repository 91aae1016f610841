package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Jefrey13/chatdesk/internal/accounts"
	"github.com/Jefrey13/chatdesk/internal/auth"
	"github.com/Jefrey13/chatdesk/internal/config"
)

// AuthHandler issues tokens to console users.
type AuthHandler struct {
	service   *accounts.Service
	secret    string
	expiresIn time.Duration
	logger    *slog.Logger
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Account   accounts.Account `json:"account"`
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(service *accounts.Service, cfg config.AuthConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:   service,
		secret:    cfg.JWTSecret,
		expiresIn: cfg.ExpiresIn(),
		logger:    logger.With(slog.String("handler", "auth")),
	}
}

func (h *AuthHandler) Register(e *echo.Echo) {
	e.POST("/auth/login", h.Login)
}

// Login checks credentials and returns a signed token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	account, err := h.service.Authenticate(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Warn("login rejected",
			slog.String("username", req.Username),
			slog.String("remote_ip", c.RealIP()))
		return domainError(err)
	}
	token, expiresAt, err := auth.GenerateToken(account.ID, account.Role, h.secret, h.expiresIn)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt, Account: account})
}
