// Package storage provides the capacity-bounded, idle-evicted in-memory
// stores for user sessions and transactions.
//
// Both stores hand out records addressed by a single key and provide no
// per-key locking: two concurrent requests mutating the same record race with
// last-write-wins semantics. This mirrors the store contract the rest of the
// engine is written against and is deliberately not "fixed" here.
package storage

import (
	"time"

	expirable "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/identio/identio-server-sub001/internal/logging"
	"github.com/identio/identio-server-sub001/internal/model"
	"github.com/identio/identio-server-sub001/internal/secure"
)

const sessionIdentifierBytes = 75 // 100 base64url characters

// SessionStore is a bounded cache of UserSession records with
// access-refreshed idle expiry.
type SessionStore struct {
	lru *expirable.LRU[string, *model.UserSession]
	ttl time.Duration
}

// NewSessionStore creates a session store holding at most maxEntries records,
// each evicted after ttl of idleness.
func NewSessionStore(maxEntries int, ttl time.Duration) *SessionStore {
	if maxEntries <= 0 {
		maxEntries = 100000
	}
	return &SessionStore{
		lru: expirable.NewLRU[string, *model.UserSession](maxEntries, nil, ttl),
		ttl: ttl,
	}
}

// Create generates a fresh session under a new unguessable identifier.
func (s *SessionStore) Create() *model.UserSession {
	session := &model.UserSession{
		ID: secure.GenerateIdentifier(sessionIdentifierBytes),
	}
	s.lru.Add(session.ID, session)

	logging.Debug("Created new user session", zap.String("session_id", session.ID))

	return session
}

// GetOrCreate returns the session for the given id, refreshing its idle
// timer. A miss, an empty id, or an expired id silently yields a fresh
// session with a newly generated identifier; callers branch on the returned
// session's ID field to detect creation.
func (s *SessionStore) GetOrCreate(sessionID string) *model.UserSession {
	if sessionID != "" {
		if session, ok := s.lru.Get(sessionID); ok {
			// Re-add to refresh the idle expiry: eviction is
			// idle-based, not absolute.
			s.lru.Add(sessionID, session)
			return session
		}
	}
	return s.Create()
}

// Remove discards a session.
func (s *SessionStore) Remove(sessionID string) {
	logging.Debug("Removed user session", zap.String("session_id", sessionID))
	s.lru.Remove(sessionID)
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	return s.lru.Len()
}
