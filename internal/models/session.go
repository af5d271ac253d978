package models

import "time"

// LoggedOutUserID is the session ID used for the shared guest session.
const LoggedOutUserID int64 = 0

// TwitterSession is a logged-in user's session.
type TwitterSession struct {
	ID       int64     `json:"id"`
	UserName string    `json:"user_name"`
	Token    UserToken `json:"token"`
}

// NewTwitterSession builds a session from a successful access_token
// exchange.
func NewTwitterSession(resp *OAuthResponse) *TwitterSession {
	return &TwitterSession{
		ID:       resp.UserID,
		UserName: resp.UserName,
		Token:    resp.Token,
	}
}

// GuestSession is the shared app-only session. Token is nil until the
// first successful guest authentication.
type GuestSession struct {
	Token *GuestToken `json:"token"`
}

// ID returns LoggedOutUserID.
func (s *GuestSession) ID() int64 {
	return LoggedOutUserID
}

// IsValidAt reports whether the session holds a token that is not expired
// at now.
func (s *GuestSession) IsValidAt(now time.Time) bool {
	return s != nil && s.Token != nil && !s.Token.IsExpiredAt(now)
}

// Equal compares sessions by their credentials.
func (s *GuestSession) Equal(other *GuestSession) bool {
	if s == nil || other == nil {
		return s == other
	}

	return s.Token.SameCredentials(other.Token)
}
