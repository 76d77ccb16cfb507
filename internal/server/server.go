// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package server wires configuration, storage, and services into the HTTP
// server and owns its lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/accounts-service/internal/config"
	"codeberg.org/oliverandrich/accounts-service/internal/database"
	"codeberg.org/oliverandrich/accounts-service/internal/handlers"
	"codeberg.org/oliverandrich/accounts-service/internal/i18n"
	appmw "codeberg.org/oliverandrich/accounts-service/internal/middleware"
	"codeberg.org/oliverandrich/accounts-service/internal/repository"
	"codeberg.org/oliverandrich/accounts-service/internal/services/account"
	"codeberg.org/oliverandrich/accounts-service/internal/services/avatar"
	"codeberg.org/oliverandrich/accounts-service/internal/services/email"
	"codeberg.org/oliverandrich/accounts-service/internal/services/token"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	if cfg.Auth.SigningSecret == "" {
		return errors.New("signing secret is required, set --signing-secret or SIGNING_SECRET")
	}

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	repo := repository.New(db)

	issuer, err := token.NewIssuer(cfg.Auth.SigningSecret, time.Duration(cfg.Auth.SessionDuration)*time.Hour)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	mailer, err := buildMailer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create email service: %w", err)
	}

	store, err := avatar.NewStore(cfg.Avatar.Dir, cfg.Avatar.DefaultURL)
	if err != nil {
		return fmt.Errorf("failed to create avatar store: %w", err)
	}

	accounts := account.NewService(repo, issuer, mailer, store)

	e := NewRouter(cfg, repo, accounts, issuer)

	return startWithGracefulShutdown(ctx, e, cfg)
}

// buildMailer returns the SMTP-backed email service, or a logging stand-in
// when no relay host is configured.
func buildMailer(cfg *config.Config) (account.Mailer, error) {
	if cfg.SMTP.Host == "" {
		slog.Warn("no smtp host configured, verification links are logged instead of mailed")
		return &logMailer{baseURL: cfg.Server.BaseURL}, nil
	}
	return email.NewService(&cfg.SMTP, cfg.Server.BaseURL)
}

// logMailer writes verification links to the log. Development fallback.
type logMailer struct {
	baseURL string
}

func (m *logMailer) SendVerification(_ context.Context, to, token string) error {
	slog.Info("verification link",
		"to", to,
		"url", fmt.Sprintf("%s/api/users/verify/%s", m.baseURL, token),
	)
	return nil
}

// NewRouter builds the Echo instance with all middleware and routes.
func NewRouter(cfg *config.Config, repo *repository.Repository, accounts *account.Service, issuer *token.Issuer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg)
	setupRoutes(e, cfg, repo, accounts, issuer)

	return e
}

func setupRoutes(e *echo.Echo, cfg *config.Config, repo *repository.Repository, accounts *account.Service, issuer *token.Issuer) {
	h := handlers.New(accounts)

	// Normalized avatar assets
	e.Static("/avatars", cfg.Avatar.Dir)

	e.GET("/health", h.Health)

	users := e.Group("/api/users")
	users.POST("/register", h.Register)
	users.GET("/verify/:verificationToken", h.VerifyEmail)
	users.POST("/verify", h.ResendVerification)
	users.POST("/login", h.Login)

	authed := users.Group("", appmw.RequireAuth(issuer, repo))
	authed.GET("/current", h.Current)
	authed.POST("/logout", h.Logout)
	authed.PATCH("", h.UpdateSubscription)
	authed.PATCH("/avatars", h.UpdateAvatar)
}

func startWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("Server running", "url", cfg.Server.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case <-quit:
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
