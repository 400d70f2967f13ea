package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

type fakeClock struct {
	now time.Time
}

func (clock *fakeClock) Now() time.Time {
	return clock.now
}

func newManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	manager, err := NewManager(Config{SigningKey: testSigningKey, Clock: clock.Now})
	require.NoError(t, err)
	return manager
}

func mustUserID(t *testing.T, raw string) economy.UserID {
	t.Helper()
	userID, err := economy.NewUserID(raw)
	require.NoError(t, err)
	return userID
}

func TestIssueAndResolveRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	manager := newManager(t, clock)

	token, err := manager.Issue(mustUserID(t, "user-1"))
	require.NoError(t, err)

	result := manager.Resolve(token)
	require.Equal(t, StateAuthenticated, result.State())
	userID, ok := result.UserID()
	assert.True(t, ok)
	assert.Equal(t, "user-1", userID.String())
}

func TestResolveTaggedOutcomes(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	manager := newManager(t, clock)
	token, err := manager.Issue(mustUserID(t, "user-1"))
	require.NoError(t, err)

	other, err := NewManager(Config{SigningKey: "ffffffffffffffffffffffffffffffff", Clock: clock.Now})
	require.NoError(t, err)
	foreign, err := other.Issue(mustUserID(t, "user-1"))
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1", Issuer: issuer}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	missingSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(clock.now),
		ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
	}).SignedString([]byte(testSigningKey))
	require.NoError(t, err)

	assert.Equal(t, StateAnonymous, manager.Resolve("").State())
	assert.Equal(t, StateInvalid, manager.Resolve("garbage").State())
	assert.Equal(t, StateInvalid, manager.Resolve(foreign).State())
	assert.Equal(t, StateInvalid, manager.Resolve(noneToken).State())
	assert.Equal(t, StateInvalid, manager.Resolve(missingSubject).State())

	clock.now = clock.now.Add(DefaultTTL + time.Second)
	expired := manager.Resolve(token)
	assert.Equal(t, StateInvalid, expired.State())
	assert.NotEmpty(t, expired.Reason())
	_, ok := expired.UserID()
	assert.False(t, ok)
}

func TestFromRequestPrefersCookie(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	manager := newManager(t, clock)
	cookieToken, err := manager.Issue(mustUserID(t, "cookie-user"))
	require.NoError(t, err)
	bearerToken, err := manager.Issue(mustUserID(t, "bearer-user"))
	require.NoError(t, err)

	request := httptest.NewRequest(http.MethodGet, "/economy/me", nil)
	request.AddCookie(manager.Cookie(cookieToken, true))
	request.Header.Set("Authorization", "Bearer "+bearerToken)
	userID, ok := manager.FromRequest(request).UserID()
	require.True(t, ok)
	assert.Equal(t, "cookie-user", userID.String())

	request = httptest.NewRequest(http.MethodGet, "/economy/me", nil)
	request.Header.Set("Authorization", "Bearer "+bearerToken)
	userID, ok = manager.FromRequest(request).UserID()
	require.True(t, ok)
	assert.Equal(t, "bearer-user", userID.String())

	request = httptest.NewRequest(http.MethodGet, "/economy/me", nil)
	request.Header.Set("Authorization", "bearer "+bearerToken)
	userID, ok = manager.FromRequest(request).UserID()
	require.True(t, ok)
	assert.Equal(t, "bearer-user", userID.String())

	request = httptest.NewRequest(http.MethodGet, "/economy/me", nil)
	request.Header.Set("Authorization", "Bearer")
	assert.Equal(t, StateInvalid, manager.FromRequest(request).State())

	request = httptest.NewRequest(http.MethodGet, "/economy/me", nil)
	request.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, StateInvalid, manager.FromRequest(request).State())

	request = httptest.NewRequest(http.MethodGet, "/economy/me", nil)
	assert.Equal(t, StateAnonymous, manager.FromRequest(request).State())
}

func TestCookieAttributes(t *testing.T) {
	manager := newManager(t, &fakeClock{now: time.Now()})
	cookie := manager.Cookie("token", true)
	assert.Equal(t, DefaultCookieName, cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteNoneMode, cookie.SameSite)
	assert.Equal(t, 7*24*60*60, cookie.MaxAge)
	assert.Equal(t, -1, manager.ClearCookie(false).MaxAge)
}

func TestNewManagerRejectsShortKey(t *testing.T) {
	_, err := NewManager(Config{SigningKey: "short"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
