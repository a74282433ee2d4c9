package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// SessionCookieName is the dashboard session cookie.
const SessionCookieName = "conveyor_session"

type session struct {
	userID  int64
	expires time.Time
}

// SessionStore keeps dashboard sessions in memory, keyed by the sha256 of
// the token so a memory dump never exposes usable credentials. Expiration
// is sliding: every successful resolve pushes the window forward.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
}

// NewSessionStore builds a store with the given sliding TTL.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*session),
		ttl:      ttl,
	}
}

// Create mints a session for the user and returns the raw token.
func (s *SessionStore) Create(userID int64) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionHash(token)] = &session{
		userID:  userID,
		expires: time.Now().Add(s.ttl),
	}
	return token, nil
}

// Resolve maps a token to its user, extending the expiration window.
func (s *SessionStore) Resolve(token string) (int64, bool) {
	if token == "" {
		return 0, false
	}
	key := sessionHash(token)

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return 0, false
	}
	if time.Now().After(sess.expires) {
		delete(s.sessions, key)
		return 0, false
	}
	sess.expires = time.Now().Add(s.ttl)
	return sess.userID, true
}

// Destroy invalidates a token. Unknown tokens are a no-op.
func (s *SessionStore) Destroy(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionHash(token))
}

// DestroyUser invalidates every session belonging to the user, for password
// changes and account removal.
func (s *SessionStore) DestroyUser(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sess := range s.sessions {
		if sess.userID == userID {
			delete(s.sessions, key)
		}
	}
}

// Purge drops expired sessions. Called opportunistically by the router.
func (s *SessionStore) Purge() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sess := range s.sessions {
		if now.After(sess.expires) {
			delete(s.sessions, key)
		}
	}
}

// Len reports the number of live sessions, expired or not.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func sessionHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
