// Package config holds the runtime settings of promorangd.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/promorang/internal/payments"
	"github.com/MarkoPoloResearchLab/promorang/internal/session"
)

const (
	DefaultDatabaseURL     = "sqlite:///tmp/promorang.db"
	defaultListenAddr      = ":8080"
	defaultFrontendURL     = "http://localhost:5173"
	defaultRequestTimeout  = 15 * time.Second
	defaultExternalTimeout = 10 * time.Second
	defaultAuthenticated   = 100
	defaultAnonymous       = 20
	minSigningKeyLength    = 32
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config aggregates every flag of the serve command.
type Config struct {
	DatabaseURL            string
	ListenAddr             string
	AllowedOrigins         []string
	SessionSigningKey      string
	SessionCookieName      string
	SessionTTL             time.Duration
	SecureCookies          bool
	FrontendURL            string
	GoogleClientID         string
	GoogleClientSecret     string
	GoogleRedirectURL      string
	StripeSecretKey        string
	StripeWebhookSecret    string
	StripeGemPackages      map[int64]string
	RulesFile              string
	RedisURL               string
	EnableScheduler        bool
	RequestTimeout         time.Duration
	ExternalTimeout        time.Duration
	AdminUserIDs           []string
	RateLimitAuthenticated int
	RateLimitAnonymous     int
	AutoMigrate            bool
}

// Validate fills defaults and rejects unusable settings.
func (cfg *Config) Validate() error {
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, DefaultDatabaseURL)
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.FrontendURL = strings.TrimRight(defaultIfEmpty(cfg.FrontendURL, defaultFrontendURL), "/")
	cfg.SessionCookieName = defaultIfEmpty(cfg.SessionCookieName, session.DefaultCookieName)
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = session.DefaultTTL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ExternalTimeout <= 0 {
		cfg.ExternalTimeout = defaultExternalTimeout
	}
	if cfg.RateLimitAuthenticated <= 0 {
		cfg.RateLimitAuthenticated = defaultAuthenticated
	}
	if cfg.RateLimitAnonymous <= 0 {
		cfg.RateLimitAnonymous = defaultAnonymous
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{cfg.FrontendURL}
	}

	if len(cfg.SessionSigningKey) < minSigningKeyLength {
		return fmt.Errorf("%w: session signing key must be at least %d bytes", ErrInvalidConfig, minSigningKeyLength)
	}
	if _, err := url.ParseRequestURI(cfg.FrontendURL); err != nil {
		return fmt.Errorf("%w: frontend url: %v", ErrInvalidConfig, err)
	}
	if cfg.GoogleEnabled() && strings.TrimSpace(cfg.GoogleRedirectURL) == "" {
		return fmt.Errorf("%w: google redirect url is required with a google client id", ErrInvalidConfig)
	}
	if cfg.StripeEnabled() {
		if strings.TrimSpace(cfg.StripeWebhookSecret) == "" {
			return fmt.Errorf("%w: stripe webhook secret is required with a stripe secret key", ErrInvalidConfig)
		}
		if len(cfg.StripeGemPackages) == 0 {
			return fmt.Errorf("%w: at least one stripe gem package is required", ErrInvalidConfig)
		}
	}
	return nil
}

// GoogleEnabled reports whether Google sign-in is configured.
func (cfg Config) GoogleEnabled() bool {
	return strings.TrimSpace(cfg.GoogleClientID) != ""
}

// StripeEnabled reports whether gem purchases are configured.
func (cfg Config) StripeEnabled() bool {
	return strings.TrimSpace(cfg.StripeSecretKey) != ""
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseList splits a comma-delimited value into trimmed, non-empty parts.
func ParseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}

// ParseGemPackages reads "10=price_a,47=price_b" into a gems to Stripe price id map.
func ParseGemPackages(raw string) (map[int64]string, error) {
	if strings.TrimSpace(raw) == "" {
		return map[int64]string{}, nil
	}
	packages, err := payments.ParsePackages(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe gem packages: %v", ErrInvalidConfig, err)
	}
	return packages, nil
}
