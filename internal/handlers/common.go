// Package handlers exposes the REST and websocket surface of the service.
package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Jefrey13/chatdesk/internal/accounts"
	"github.com/Jefrey13/chatdesk/internal/ai"
	"github.com/Jefrey13/chatdesk/internal/contact"
	"github.com/Jefrey13/chatdesk/internal/conversation"
	"github.com/Jefrey13/chatdesk/internal/message"
)

// ErrorResponse is the error body every endpoint returns.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Validator adapts go-playground/validator to echo's binding hook.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates the request validator.
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate implements echo.Validator.
func (v *Validator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// domainError maps domain sentinels onto HTTP statuses.
func domainError(err error) error {
	switch {
	case errors.Is(err, conversation.ErrNotFound),
		errors.Is(err, contact.ErrNotFound),
		errors.Is(err, message.ErrNotFound),
		errors.Is(err, accounts.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, conversation.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, conversation.ErrPersistenceConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, accounts.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ai.ErrDownstreamUnavailable):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
