// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Subscription tiers an account can be on.
const (
	SubscriptionStarter  = "starter"
	SubscriptionPro      = "pro"
	SubscriptionBusiness = "business"
)

// ValidSubscription reports whether tier is one of the known plan labels.
func ValidSubscription(tier string) bool {
	switch tier {
	case SubscriptionStarter, SubscriptionPro, SubscriptionBusiness:
		return true
	}
	return false
}

// User is the persisted account record.
type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID                string    `db:"id" json:"id"`
	Email             string    `db:"email" json:"email"`
	PasswordHash      string    `db:"password_hash" json:"-"`
	Subscription      string    `db:"subscription" json:"subscription"`
	AvatarURL         string    `db:"avatar_url" json:"avatarURL"`
	VerificationToken string    `db:"verification_token" json:"-"`
	Verified          bool      `db:"verified" json:"verified"`
	SessionToken      string    `db:"session_token" json:"-"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}
