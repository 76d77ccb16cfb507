// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package middleware

import (
	"context"
	"net/http"
	"strings"

	"codeberg.org/oliverandrich/accounts-service/internal/models"
	"codeberg.org/oliverandrich/accounts-service/internal/services/token"
	"github.com/labstack/echo/v4"
)

// userContextKey is the echo context key holding the authenticated user.
const userContextKey = "auth_user"

// UserLoader is an interface for loading full user data.
type UserLoader interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// RequireAuth authenticates requests via `Authorization: Bearer <token>`.
// The signature check is authoritative; on top of it the bearer token must
// match the account's stored session token, so logout invalidates tokens
// that are still cryptographically valid.
func RequireAuth(issuer *token.Issuer, loader UserLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			scheme, bearer, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || bearer == "" {
				return errNotAuthorized
			}

			userID, err := issuer.Parse(bearer)
			if err != nil {
				return errNotAuthorized
			}

			user, err := loader.GetUserByID(c.Request().Context(), userID)
			if err != nil {
				return errNotAuthorized
			}

			if user.SessionToken != bearer {
				return errNotAuthorized
			}

			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

var errNotAuthorized = echo.NewHTTPError(http.StatusUnauthorized, "Not authorized")

// UserFromContext returns the authenticated user set by RequireAuth.
func UserFromContext(c echo.Context) *models.User {
	user, _ := c.Get(userContextKey).(*models.User)
	return user
}
