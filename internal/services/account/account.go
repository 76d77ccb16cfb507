// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package account orchestrates the account lifecycle: registration, email
// verification, session issuance, subscription changes, and avatar updates.
package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"

	"codeberg.org/oliverandrich/accounts-service/internal/models"
	"codeberg.org/oliverandrich/accounts-service/internal/repository"
	"codeberg.org/oliverandrich/accounts-service/internal/services/avatar"
	"codeberg.org/oliverandrich/accounts-service/internal/services/token"
	"github.com/google/uuid"
)

var (
	ErrEmailInUse          = errors.New("email in use")
	ErrInvalidEmail        = errors.New("invalid email format")
	ErrWeakPassword        = errors.New("password does not meet requirements")
	ErrPasswordTooLong     = errors.New("password exceeds maximum length")
	ErrTokenNotFound       = errors.New("verification token not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAlreadyVerified     = errors.New("verification has already been passed")
	ErrInvalidCredentials  = errors.New("email or password is wrong")
	ErrEmailNotVerified    = errors.New("email not verified")
	ErrMissingSubscription = errors.New("missing field subscription")
	ErrInvalidSubscription = errors.New("unknown subscription tier")
)

// Mailer delivers verification mail. Implemented by the email service.
type Mailer interface {
	SendVerification(ctx context.Context, to, token string) error
}

// Service implements the account lifecycle use cases.
type Service struct {
	repo    *repository.Repository
	tokens  *token.Issuer
	mailer  Mailer
	avatars *avatar.Store
}

// NewService creates the account lifecycle service.
func NewService(repo *repository.Repository, tokens *token.Issuer, mailer Mailer, avatars *avatar.Store) *Service {
	return &Service{
		repo:    repo,
		tokens:  tokens,
		mailer:  mailer,
		avatars: avatars,
	}
}

// RegisterParams holds the parameters for user registration.
type RegisterParams struct {
	Email        string
	Password     string
	Subscription string // optional, defaults to starter
}

// Register creates a new unverified account and sends the verification email.
// Mail delivery is best-effort: a failed send is logged, the account stays.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*models.User, error) {
	if _, err := mail.ParseAddress(params.Email); err != nil {
		return nil, ErrInvalidEmail
	}
	if err := validatePassword(params.Password); err != nil {
		return nil, err
	}

	subscription := params.Subscription
	if subscription == "" {
		subscription = models.SubscriptionStarter
	}
	if !models.ValidSubscription(subscription) {
		return nil, ErrInvalidSubscription
	}

	passwordHash, err := hashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	verificationToken, err := token.NewVerificationToken()
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:                uuid.NewString(),
		Email:             params.Email,
		PasswordHash:      passwordHash,
		Subscription:      subscription,
		AvatarURL:         avatar.GravatarURL(params.Email),
		VerificationToken: verificationToken,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("register_success", "user_id", user.ID, "email", user.Email)

	// Registration success must not be blocked on mail-relay availability.
	mailCtx := context.WithoutCancel(ctx)
	go func() {
		if err := s.mailer.SendVerification(mailCtx, user.Email, verificationToken); err != nil {
			slog.Error("verification_email_failed", "user_id", user.ID, "error", err)
		}
	}()

	return user, nil
}

// Verify consumes a verification token: the matching account becomes
// verified and the token is cleared, atomically and exactly once.
func (s *Service) Verify(ctx context.Context, verificationToken string) (*models.User, error) {
	user, err := s.repo.ConsumeVerificationToken(ctx, verificationToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to consume verification token: %w", err)
	}

	slog.Info("email_verified", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// ResendVerification resends the verification email reusing the account's
// existing token. No new token is issued.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if user.Verified {
		return ErrAlreadyVerified
	}

	if err := s.mailer.SendVerification(ctx, user.Email, user.VerificationToken); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

// LoginResult carries the issued session token and the authenticated user.
type LoginResult struct {
	Token string
	User  *models.User
}

// Login authenticates a verified account and issues a session token, which
// is also persisted on the account record for stateful logout.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Unknown emails still pay the bcrypt cost.
			checkPassword(password, string(dummyHash))
			slog.Warn("login_failed", "email", email, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !checkPassword(password, user.PasswordHash) {
		slog.Warn("login_failed", "email", email, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	if !user.Verified {
		slog.Warn("login_failed", "email", email, "reason", "email_not_verified")
		return nil, ErrEmailNotVerified
	}

	sessionToken, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetSessionToken(ctx, user.ID, sessionToken); err != nil {
		return nil, fmt.Errorf("failed to store session token: %w", err)
	}
	user.SessionToken = sessionToken

	slog.Info("login_success", "user_id", user.ID, "email", email)
	return &LoginResult{Token: sessionToken, User: user}, nil
}

// Logout clears the stored session token.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.repo.SetSessionToken(ctx, userID, ""); err != nil {
		return fmt.Errorf("failed to clear session token: %w", err)
	}
	slog.Info("logout_success", "user_id", userID)
	return nil
}

// ChangeSubscription updates the account's subscription tier.
func (s *Service) ChangeSubscription(ctx context.Context, userID, tier string) error {
	if tier == "" {
		return ErrMissingSubscription
	}
	if !models.ValidSubscription(tier) {
		return ErrInvalidSubscription
	}

	if err := s.repo.UpdateSubscription(ctx, userID, tier); err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	slog.Info("subscription_changed", "user_id", userID, "subscription", tier)
	return nil
}

// Upload is an avatar image uploaded by the client.
type Upload struct {
	Name string
	Data io.Reader
}

// ChangeAvatar runs the avatar pipeline with the uploaded image, or with the
// default image when upload is nil, and records the resulting asset path.
// On any pipeline failure the stored avatar URL is left unchanged.
func (s *Service) ChangeAvatar(ctx context.Context, userID string, upload *Upload) (string, error) {
	var (
		avatarURL string
		err       error
	)
	if upload == nil {
		avatarURL, err = s.avatars.Default(ctx, userID)
	} else {
		avatarURL, err = s.avatars.FromUpload(userID, upload.Name, upload.Data)
	}
	if err != nil {
		return "", err
	}

	if err := s.repo.UpdateAvatarURL(ctx, userID, avatarURL); err != nil {
		return "", fmt.Errorf("failed to record avatar: %w", err)
	}

	slog.Info("avatar_changed", "user_id", userID, "avatar_url", avatarURL)
	return avatarURL, nil
}
