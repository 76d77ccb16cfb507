// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers contains the JSON HTTP handlers for the account API.
package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/accounts-service/internal/services/account"
	"github.com/labstack/echo/v4"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	accounts *account.Service
}

// New creates a new Handlers instance.
func New(accounts *account.Service) *Handlers {
	return &Handlers{accounts: accounts}
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// userPayload is the client-visible projection of an account.
type userPayload struct {
	Email        string `json:"email"`
	Subscription string `json:"subscription"`
	AvatarURL    string `json:"avatarURL,omitempty"`
}
