// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/accounts-service/internal/services/account"
	"codeberg.org/oliverandrich/accounts-service/internal/services/avatar"
	"github.com/labstack/echo/v4"
)

// httpError maps service errors to client-visible HTTP errors. The unverified
// login case is deliberately distinguishable from bad credentials, matching
// the messages clients already depend on.
func httpError(err error) error {
	switch {
	case errors.Is(err, account.ErrEmailInUse):
		return echo.NewHTTPError(http.StatusConflict, "Email in use")
	case errors.Is(err, account.ErrInvalidEmail):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid email address")
	case errors.Is(err, account.ErrWeakPassword):
		return echo.NewHTTPError(http.StatusBadRequest, "Password must be at least 6 characters")
	case errors.Is(err, account.ErrPasswordTooLong):
		return echo.NewHTTPError(http.StatusBadRequest, "Password must be at most 72 characters")
	case errors.Is(err, account.ErrInvalidSubscription):
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown subscription tier")
	case errors.Is(err, account.ErrMissingSubscription):
		return echo.NewHTTPError(http.StatusBadRequest, "missing field subscription")
	case errors.Is(err, account.ErrTokenNotFound), errors.Is(err, account.ErrAccountNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	case errors.Is(err, account.ErrAlreadyVerified):
		return echo.NewHTTPError(http.StatusBadRequest, "Verification has already been passed")
	case errors.Is(err, account.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "Email or password is wrong")
	case errors.Is(err, account.ErrEmailNotVerified):
		return echo.NewHTTPError(http.StatusUnauthorized, "Email not verified")
	case errors.Is(err, avatar.ErrUnsupportedImage):
		return echo.NewHTTPError(http.StatusBadRequest, "Unsupported image format")
	default:
		slog.Error("request_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
	}
}
