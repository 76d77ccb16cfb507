// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"codeberg.org/oliverandrich/accounts-service/internal/database"
	"codeberg.org/oliverandrich/accounts-service/internal/models"
	"codeberg.org/oliverandrich/accounts-service/internal/repository"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// Password is the plaintext password for users created via NewTestUser.
const Password = "s3cret-pass"

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestUser creates an unverified test user with a fresh verification token.
func NewTestUser(t *testing.T, repo *repository.Repository, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		ID:                uuid.NewString(),
		Email:             email,
		PasswordHash:      string(hash),
		Subscription:      models.SubscriptionStarter,
		AvatarURL:         "/avatars/placeholder.jpg",
		VerificationToken: uuid.NewString(),
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

// NewVerifiedUser creates a test user that already completed email verification.
func NewVerifiedUser(t *testing.T, repo *repository.Repository, email string) *models.User {
	t.Helper()

	user := NewTestUser(t, repo, email)
	verified, err := repo.ConsumeVerificationToken(context.Background(), user.VerificationToken)
	require.NoError(t, err)
	return verified
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewEchoContextWithHeaders creates an Echo context with custom headers.
func NewEchoContextWithHeaders(e *echo.Echo, method, path string, body io.Reader, headers map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}
