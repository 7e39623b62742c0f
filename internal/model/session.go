package model

import "time"

// AuthSession records one completed authentication event. Entries are
// append-only once created; they are never mutated or removed except via
// whole-session expiry.
type AuthSession struct {
	UserID      string
	AuthMethod  *AuthMethod
	AuthLevel   *AuthLevel
	AuthInstant time.Time
}

// UserSession is the longer-lived browser-bound record of previously
// completed authentications, reused across transactions to avoid
// re-prompting. It is created lazily on first contact and owns its
// AuthSessions exclusively.
type UserSession struct {
	ID           string
	UserID       string
	AuthSessions []*AuthSession
}

// AddAuthSession appends a new authentication event at the given level and
// records the authenticated user id on the session.
func (s *UserSession) AddAuthSession(userID string, method *AuthMethod, level *AuthLevel) *AuthSession {
	authSession := &AuthSession{
		UserID:      userID,
		AuthMethod:  method,
		AuthLevel:   level,
		AuthInstant: time.Now().UTC(),
	}
	s.UserID = userID
	s.AuthSessions = append(s.AuthSessions, authSession)

	return authSession
}
