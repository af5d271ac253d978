// Package errors holds the sentinel errors callers can match with
// errors.Is.
package errors

import "errors"

// Authentication errors.
var (
	ErrAuthResponseUnparseable = errors.New("auth response missing oauth_token or oauth_token_secret")
	ErrReauthExhausted         = errors.New("re-authentication failed")
	ErrNoGuestToken            = errors.New("no guest token available")
)

// Server/transport errors.
var (
	ErrAPIRequest  = errors.New("API request failed")
	ErrAPIResponse = errors.New("unexpected API response")
)
