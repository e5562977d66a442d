package auth

import (
	"context"
	"log"
	"sync"
	"time"
)

// Session is the gateway's own sign-in as the configured service user. Alert
// records are only written while it is valid.
type Session struct {
	am       *AuthManager
	username string
	password string

	mu      sync.RWMutex
	token   string
	expires time.Time
}

func NewSession(am *AuthManager, username, password string) *Session {
	return &Session{am: am, username: username, password: password}
}

// SignIn authenticates the service user. A failed sign-in clears the session.
func (s *Session) SignIn() error {
	token, expires, err := s.am.Login(s.username, s.password)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.token, s.expires = "", time.Time{}
		return err
	}
	s.token, s.expires = token, expires
	return nil
}

func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.expires = "", time.Time{}
}

// SignedIn reports whether the session holds an unexpired token.
func (s *Session) SignedIn() bool {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token == "" {
		return false
	}
	_, err := s.am.ValidateJWT(token)
	return err == nil
}

// UID is the signed-in user, or "" when signed out.
func (s *Session) UID() string {
	if !s.SignedIn() {
		return ""
	}
	return s.username
}

// KeepAlive renews the token at half its lifetime until ctx ends.
func (s *Session) KeepAlive(ctx context.Context) {
	ticker := time.NewTicker(s.am.expiry() / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SignIn(); err != nil {
				log.Printf("[auth] renewing session of %s: %v", s.username, err)
			}
		}
	}
}
