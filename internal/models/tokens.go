// Package models defines the credential and session types shared across
// internal packages.
package models

import "time"

// GuestTokenLifetime is how long a guest token is trusted after issue.
// The API does not report an expiry, so the client assumes one.
const GuestTokenLifetime = 3 * time.Hour

// TokenTypeBearer is the token_type reported by the OAuth2 token endpoint.
const TokenTypeBearer = "bearer"

// AuthConfig identifies the consumer application. It is created once at
// startup and never modified.
type AuthConfig struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

// UserToken is an OAuth1.0a credential for a single user.
type UserToken struct {
	Token     string    `json:"token"`
	Secret    string    `json:"secret"`
	CreatedAt time.Time `json:"created_at"`
}

// BearerToken is an OAuth2 app-only token.
type BearerToken struct {
	TokenType   string    `json:"token_type"`
	AccessToken string    `json:"access_token"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsExpired always reports false. Bearer tokens are only retired by
// explicit invalidation.
func (t *BearerToken) IsExpired() bool {
	return false
}

// GuestToken is an app-only bearer token paired with a guest token from
// the guest activation endpoint. Refreshing replaces the whole value.
type GuestToken struct {
	TokenType   string    `json:"token_type"`
	AccessToken string    `json:"access_token"`
	GuestToken  string    `json:"guest_token"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsExpired reports whether the token is past GuestTokenLifetime.
func (t *GuestToken) IsExpired() bool {
	return t.IsExpiredAt(time.Now())
}

// IsExpiredAt reports whether the token is expired at now. A token with an
// unset or epoch creation time is always expired.
func (t *GuestToken) IsExpiredAt(now time.Time) bool {
	if t.CreatedAt.IsZero() || t.CreatedAt.Unix() == 0 {
		return true
	}

	return now.Sub(t.CreatedAt) >= GuestTokenLifetime
}

// SameCredentials reports whether t and other carry the same access and
// guest tokens, ignoring creation time.
func (t *GuestToken) SameCredentials(other *GuestToken) bool {
	if t == nil || other == nil {
		return t == other
	}

	return t.AccessToken == other.AccessToken && t.GuestToken == other.GuestToken
}

// OAuthResponse is the result of a request_token or access_token call.
type OAuthResponse struct {
	Token    UserToken `json:"token"`
	UserName string    `json:"screen_name,omitempty"`
	UserID   int64     `json:"user_id"`
}
