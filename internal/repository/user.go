// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/accounts-service/internal/models"
)

// CreateUser inserts a new user. The email uniqueness constraint is enforced
// by the database, so concurrent registrations with the same address cannot
// both succeed; the loser gets ErrEmailTaken.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, subscription, avatar_url,
		                    verification_token, verified, session_token, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.Subscription, user.AvatarURL,
		user.VerificationToken, user.Verified, user.SessionToken, user.CreatedAt, user.UpdatedAt)
	return wrapError(err)
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = ?`, email); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// ConsumeVerificationToken marks the account holding the token as verified
// and clears the token in a single conditional update. Returns the verified
// user, or ErrNotFound when the token does not match an unverified account.
// A token is single-use: the second call with the same value fails.
func (r *Repository) ConsumeVerificationToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrNotFound
	}

	var user models.User
	if err := r.db.GetContext(ctx, &user,
		`SELECT * FROM users WHERE verification_token = ? AND verified = 0`, token); err != nil {
		return nil, wrapError(err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET verified = 1, verification_token = '', updated_at = ?
		 WHERE id = ? AND verification_token = ? AND verified = 0`,
		time.Now().UTC(), user.ID, token)
	if err != nil {
		return nil, wrapError(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Lost a race against a concurrent verification of the same token.
		return nil, ErrNotFound
	}

	user.Verified = true
	user.VerificationToken = ""
	return &user, nil
}

// SetSessionToken stores the most recently issued session token for a user.
// Pass an empty string to log the user out.
func (r *Repository) SetSessionToken(ctx context.Context, id, token string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET session_token = ?, updated_at = ? WHERE id = ?`,
		token, time.Now().UTC(), id)
	if err != nil {
		return wrapError(err)
	}
	return requireAffected(res)
}

// UpdateSubscription changes the subscription tier for a user.
func (r *Repository) UpdateSubscription(ctx context.Context, id, subscription string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET subscription = ?, updated_at = ? WHERE id = ?`,
		subscription, time.Now().UTC(), id)
	if err != nil {
		return wrapError(err)
	}
	return requireAffected(res)
}

// UpdateAvatarURL records the location of a user's normalized avatar asset.
func (r *Repository) UpdateAvatarURL(ctx context.Context, id, avatarURL string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET avatar_url = ?, updated_at = ? WHERE id = ?`,
		avatarURL, time.Now().UTC(), id)
	if err != nil {
		return wrapError(err)
	}
	return requireAffected(res)
}
