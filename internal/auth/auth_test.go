package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestSessionManagerLifecycle(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	sm := NewSessionManager(time.Hour)
	sm.now = func() time.Time { return now }

	token, err := sm.Create("user-1")
	require.NoError(t, err)
	assert.Len(t, token, 64)

	userID, err := sm.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	_, err = sm.Verify("nope")
	assert.ErrorIs(t, err, ErrInvalidSession)

	sm.Revoke(token)
	_, err = sm.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSessionManagerExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	sm := NewSessionManager(time.Hour)
	sm.now = func() time.Time { return now }

	expiring, err := sm.Create("user-1")
	require.NoError(t, err)
	now = now.Add(30 * time.Minute)
	_, err = sm.Create("user-2")
	require.NoError(t, err)

	now = now.Add(45 * time.Minute)
	_, err = sm.Verify(expiring)
	assert.ErrorIs(t, err, ErrExpiredSession)

	now = now.Add(time.Hour)
	assert.Equal(t, 1, sm.CleanExpired())
	assert.Equal(t, 0, sm.Count())
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, PasswordsMatch(hash, "correct horse"))
	assert.False(t, PasswordsMatch(hash, "wrong horse"))
}

func TestValidatePassword(t *testing.T) {
	assert.ErrorIs(t, ValidatePassword("short"), ErrWeakPassword)
	assert.NoError(t, ValidatePassword("longenough"))
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"hanako@example.com", true},
		{"taro.yamada+budget@example.co.jp", true},
		{"not-an-email", false},
		{"@example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := ValidateEmail(tt.email, false)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidEmail)
			}
		})
	}
	assert.Equal(t, "hanako@example.com", NormalizeEmail("  Hanako@Example.COM "))
}

func TestMiddleware(t *testing.T) {
	sm := NewSessionManager(time.Hour)
	token, err := sm.Create("user-1")
	require.NoError(t, err)

	var seen string
	h := Middleware(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
	}))

	tests := []struct {
		name     string
		prepare  func(r *http.Request)
		wantCode int
		wantUser string
	}{
		{"no credentials", func(r *http.Request) {}, http.StatusUnauthorized, ""},
		{"bad cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: "bad"}) }, http.StatusUnauthorized, ""},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: token}) }, http.StatusOK, "user-1"},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK, "user-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantUser, seen)
			if tt.wantCode == http.StatusUnauthorized {
				var body ErrorResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.Equal(t, "error", body.Status)
				assert.Equal(t, "unauthorized", body.Message)
			}
		})
	}
}

func TestSessionCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, "abc", time.Hour, true)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, 3600, cookies[0].MaxAge)

	rec = httptest.NewRecorder()
	ClearSessionCookie(rec, false)
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].MaxAge < 0)
}
