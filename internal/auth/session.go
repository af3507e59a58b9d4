// Package auth holds sessions, password hashing and the request authentication
// middleware.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrInvalidSession = errors.New("session token is invalid")
	ErrExpiredSession = errors.New("session token is expired")
)

// SessionStore issues and verifies opaque session tokens.
type SessionStore interface {
	Create(userID string) (string, error)
	Verify(token string) (string, error)
	Revoke(token string)
}

type Session struct {
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionManager keeps sessions in memory. Sessions do not survive a restart.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]Session
	ttl      time.Duration
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func NewSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]Session),
		ttl:      ttl,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

func (sm *SessionManager) Create(userID string) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)

	now := sm.now()
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[token] = Session{
		UserID:    userID,
		ExpiresAt: now.Add(sm.ttl),
		CreatedAt: now,
	}
	return token, nil
}

// Verify returns the user the token belongs to.
func (sm *SessionManager) Verify(token string) (string, error) {
	sm.mu.RLock()
	session, exists := sm.sessions[token]
	sm.mu.RUnlock()

	if !exists {
		return "", ErrInvalidSession
	}
	if sm.now().After(session.ExpiresAt) {
		sm.Revoke(token)
		return "", ErrExpiredSession
	}
	return session.UserID, nil
}

func (sm *SessionManager) Revoke(token string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, token)
}

// CleanExpired drops expired sessions and returns how many went.
func (sm *SessionManager) CleanExpired() int {
	now := sm.now()
	sm.mu.Lock()
	defer sm.mu.Unlock()

	removed := 0
	for token, session := range sm.sessions {
		if now.After(session.ExpiresAt) {
			delete(sm.sessions, token)
			removed++
		}
	}
	return removed
}

func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// StartCleanup sweeps expired sessions every interval until Stop is called.
func (sm *SessionManager) StartCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sm.CleanExpired()
			case <-sm.stop:
				return
			}
		}
	}()
}

func (sm *SessionManager) Stop() {
	sm.stopOnce.Do(func() { close(sm.stop) })
}
