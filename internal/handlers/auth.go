// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/accounts-service/internal/i18n"
	"codeberg.org/oliverandrich/accounts-service/internal/middleware"
	"codeberg.org/oliverandrich/accounts-service/internal/services/account"
	"github.com/labstack/echo/v4"
)

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Subscription string `json:"subscription"`
}

// Register creates a new account and triggers the verification email.
func (h *Handlers) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required field email")
	}
	if req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required field password")
	}

	user, err := h.accounts.Register(c.Request().Context(), account.RegisterParams{
		Email:        req.Email,
		Password:     req.Password,
		Subscription: req.Subscription,
	})
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"user": userPayload{
			Email:        user.Email,
			Subscription: user.Subscription,
			AvatarURL:    user.AvatarURL,
		},
	})
}

// VerifyEmail consumes the verification token from the email link.
func (h *Handlers) VerifyEmail(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := h.accounts.Verify(ctx, c.Param("verificationToken")); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": i18n.T(ctx, "verification_success"),
	})
}

// ResendRequest is the request body for resending the verification email.
type ResendRequest struct {
	Email string `json:"email"`
}

// ResendVerification resends the verification email with the existing token.
func (h *Handlers) ResendVerification(c echo.Context) error {
	var req ResendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required field email")
	}

	ctx := c.Request().Context()
	if err := h.accounts.ResendVerification(ctx, req.Email); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": i18n.T(ctx, "verification_resent"),
	})
}

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates an account and returns a session token.
func (h *Handlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required fields email, password")
	}

	result, err := h.accounts.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"token": result.Token,
		"user": userPayload{
			Email:        result.User.Email,
			Subscription: result.User.Subscription,
		},
	})
}

// Current returns the authenticated account.
func (h *Handlers) Current(c echo.Context) error {
	user := middleware.UserFromContext(c)

	return c.JSON(http.StatusOK, userPayload{
		Email:        user.Email,
		Subscription: user.Subscription,
	})
}

// Logout clears the stored session token.
func (h *Handlers) Logout(c echo.Context) error {
	user := middleware.UserFromContext(c)

	if err := h.accounts.Logout(c.Request().Context(), user.ID); err != nil {
		return httpError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

// SubscriptionRequest is the request body for a subscription change.
type SubscriptionRequest struct {
	Subscription string `json:"subscription"`
}

// UpdateSubscription changes the account's subscription tier.
func (h *Handlers) UpdateSubscription(c echo.Context) error {
	var req SubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	user := middleware.UserFromContext(c)
	ctx := c.Request().Context()

	if err := h.accounts.ChangeSubscription(ctx, user.ID, req.Subscription); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": i18n.TData(ctx, "subscription_changed", map[string]any{"Tier": req.Subscription}),
	})
}
