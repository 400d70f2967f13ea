package config

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

func TestValidateAppliesDefaults(test *testing.T) {
	cfg := Config{SessionSigningKey: testSigningKey, FrontendURL: "https://app.example.com/"}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	if cfg.ListenAddr != defaultListenAddr || cfg.DatabaseURL != DefaultDatabaseURL {
		test.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SessionCookieName != "pr_token" || cfg.SessionTTL != 7*24*time.Hour {
		test.Fatalf("unexpected session defaults: %q %s", cfg.SessionCookieName, cfg.SessionTTL)
	}
	if cfg.FrontendURL != "https://app.example.com" {
		test.Fatalf("expected trailing slash trimmed, got %q", cfg.FrontendURL)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://app.example.com"}) {
		test.Fatalf("expected frontend origin, got %v", cfg.AllowedOrigins)
	}
	if cfg.RateLimitAuthenticated != 100 || cfg.RateLimitAnonymous != 20 {
		test.Fatalf("unexpected rate limits: %d %d", cfg.RateLimitAuthenticated, cfg.RateLimitAnonymous)
	}
}

func TestValidateRejectsIncompleteSettings(test *testing.T) {
	testCases := []struct {
		name string
		cfg  Config
	}{
		{name: "short signing key", cfg: Config{SessionSigningKey: "short"}},
		{name: "google without redirect", cfg: Config{SessionSigningKey: testSigningKey, GoogleClientID: "client"}},
		{name: "stripe without webhook secret", cfg: Config{SessionSigningKey: testSigningKey, StripeSecretKey: "sk", StripeGemPackages: map[int64]string{10: "price"}}},
		{name: "stripe without packages", cfg: Config{SessionSigningKey: testSigningKey, StripeSecretKey: "sk", StripeWebhookSecret: "whsec"}},
		{name: "relative frontend", cfg: Config{SessionSigningKey: testSigningKey, FrontendURL: "app"}},
	}
	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			cfg := testCase.cfg
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				test.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestParseList(test *testing.T) {
	got := ParseList(" https://a.example.com, ,https://b.example.com ")
	want := []string{"https://a.example.com", "https://b.example.com"}
	if !reflect.DeepEqual(got, want) {
		test.Fatalf("got %v want %v", got, want)
	}
	if len(ParseList("  ")) != 0 {
		test.Fatalf("expected empty list")
	}
}

func TestParseGemPackages(test *testing.T) {
	packages, err := ParseGemPackages("10=price_x, 47=price_y")
	if err != nil {
		test.Fatalf("parse: %v", err)
	}
	if packages[10] != "price_x" || packages[47] != "price_y" {
		test.Fatalf("unexpected packages %v", packages)
	}
	if _, err := ParseGemPackages("ten=price_x"); !errors.Is(err, ErrInvalidConfig) {
		test.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	empty, err := ParseGemPackages("")
	if err != nil || len(empty) != 0 {
		test.Fatalf("expected empty map, got %v %v", empty, err)
	}
}
