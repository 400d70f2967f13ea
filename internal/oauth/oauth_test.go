package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newGoogleStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "access-1", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "1234", "email": "ada@example.com", "name": "Ada", "picture": "https://img.example.com/ada.png"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestProvider(t *testing.T, server *httptest.Server) *Provider {
	t.Helper()
	provider, err := NewProvider(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "https://api.example.com/auth/google/callback",
		Endpoint:     &oauth2.Endpoint{AuthURL: server.URL + "/auth", TokenURL: server.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
		APIEndpoint:  server.URL + "/",
	})
	require.NoError(t, err)
	return provider
}

func TestExchangeReturnsIdentity(t *testing.T) {
	provider := newTestProvider(t, newGoogleStub(t))

	identity, err := provider.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "google:1234", identity.Subject)
	assert.Equal(t, "ada@example.com", identity.Email)
	assert.Equal(t, "Ada", identity.DisplayName)
}

func TestExchangeFailures(t *testing.T) {
	provider := newTestProvider(t, newGoogleStub(t))

	_, err := provider.Exchange(context.Background(), "")
	assert.ErrorIs(t, err, ErrExchange)
	_, err = provider.Exchange(context.Background(), "stale-code")
	assert.ErrorIs(t, err, ErrExchange)
}

func TestAuthURLCarriesState(t *testing.T) {
	provider := newTestProvider(t, newGoogleStub(t))
	state, err := NewState()
	require.NoError(t, err)

	parsed, err := url.Parse(provider.AuthURL(state))
	require.NoError(t, err)
	assert.Equal(t, state, parsed.Query().Get("state"))
	assert.Equal(t, "client", parsed.Query().Get("client_id"))
	assert.Contains(t, parsed.Query().Get("scope"), "openid")
}

func TestNewProviderValidates(t *testing.T) {
	_, err := NewProvider(Config{ClientID: "client"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewProvider(Config{ClientID: "client", ClientSecret: "secret"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
