// Package oauth performs the Google authorization-code login.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const stateBytes = 24

var (
	ErrInvalidConfig = errors.New("invalid oauth config")
	ErrExchange      = errors.New("oauth code exchange failed")
	ErrProfile       = errors.New("oauth profile lookup failed")
)

// Config describes the Google OAuth client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
	// Endpoint and APIEndpoint override Google's URLs in tests.
	Endpoint    *oauth2.Endpoint
	APIEndpoint string
}

// Provider exchanges authorization codes for verified identities.
type Provider struct {
	config      *oauth2.Config
	httpClient  *http.Client
	apiEndpoint string
}

// NewProvider validates cfg.
func NewProvider(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("%w: client id and secret are required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, fmt.Errorf("%w: redirect url is required", ErrInvalidConfig)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	endpoint := google.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", googleoauth.UserinfoEmailScope, googleoauth.UserinfoProfileScope},
			Endpoint:     endpoint,
		},
		httpClient:  &http.Client{Timeout: timeout},
		apiEndpoint: cfg.APIEndpoint,
	}, nil
}

// NewState returns a random value for the state cookie.
func NewState() (string, error) {
	buffer := make([]byte, stateBytes)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// AuthURL returns the consent page URL carrying state.
func (provider *Provider) AuthURL(state string) string {
	return provider.config.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades code for the user's Google profile.
func (provider *Provider) Exchange(ctx context.Context, code string) (economy.Identity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return economy.Identity{}, fmt.Errorf("%w: missing code", ErrExchange)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, provider.httpClient)
	token, err := provider.config.Exchange(ctx, code)
	if err != nil {
		return economy.Identity{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	options := []option.ClientOption{option.WithHTTPClient(provider.config.Client(ctx, token))}
	if provider.apiEndpoint != "" {
		options = append(options, option.WithEndpoint(provider.apiEndpoint))
	}
	service, err := googleoauth.NewService(ctx, options...)
	if err != nil {
		return economy.Identity{}, fmt.Errorf("%w: %v", ErrProfile, err)
	}
	info, err := service.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return economy.Identity{}, fmt.Errorf("%w: %v", ErrProfile, err)
	}
	if strings.TrimSpace(info.Id) == "" {
		return economy.Identity{}, fmt.Errorf("%w: profile has no subject", ErrProfile)
	}
	return economy.Identity{
		Subject:     "google:" + info.Id,
		Email:       info.Email,
		DisplayName: info.Name,
		AvatarURL:   info.Picture,
	}, nil
}
