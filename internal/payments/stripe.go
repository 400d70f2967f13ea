// Package payments talks to Stripe checkout and verifies its webhooks.
package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/promorang/internal/retry"
	"github.com/tidwall/gjson"
)

const (
	defaultBaseURL         = "https://api.stripe.com"
	checkoutSessionsPath   = "/v1/checkout/sessions"
	signatureTolerance     = 5 * time.Minute
	maxErrorBodyBytes      = 4096
	EventCheckoutCompleted = "checkout.session.completed"
)

var (
	ErrNotConfigured    = errors.New("payments not configured")
	ErrUnknownPackage   = errors.New("unknown gem package")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidEvent     = errors.New("invalid webhook event")
	ErrProvider         = errors.New("payment provider error")
)

// Config describes the Stripe account.
type Config struct {
	SecretKey     string
	WebhookSecret string
	// Packages maps a gem amount to its Stripe price id.
	Packages   map[int64]string
	SuccessURL string
	CancelURL  string
	BaseURL    string
	Timeout    time.Duration
	Retrier    *retry.Retrier
	Clock      func() time.Time
}

// Client creates checkout sessions and verifies webhook deliveries.
type Client struct {
	secretKey     string
	webhookSecret string
	packages      map[int64]string
	successURL    string
	cancelURL     string
	baseURL       string
	httpClient    *http.Client
	retrier       *retry.Retrier
	clock         func() time.Time
}

// NewClient applies defaults. A client without a secret key reports ErrNotConfigured on use.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &Client{
		secretKey:     strings.TrimSpace(cfg.SecretKey),
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		packages:      cfg.Packages,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		baseURL:       strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient:    &http.Client{Timeout: timeout},
		retrier:       cfg.Retrier,
		clock:         cfg.Clock,
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}
	if client.retrier == nil {
		client.retrier = retry.New()
	}
	if client.clock == nil {
		client.clock = time.Now
	}
	if client.packages == nil {
		client.packages = map[int64]string{}
	}
	return client
}

// Package is a purchasable bundle of gems.
type Package struct {
	Gems    int64  `json:"gems"`
	PriceID string `json:"price_id"`
}

// Packages lists the configured gem bundles by size.
func (client *Client) Packages() []Package {
	packages := make([]Package, 0, len(client.packages))
	for gems, priceID := range client.packages {
		packages = append(packages, Package{Gems: gems, PriceID: priceID})
	}
	sort.Slice(packages, func(i, j int) bool { return packages[i].Gems < packages[j].Gems })
	return packages
}

// CheckoutRequest opens a checkout for one gem package.
type CheckoutRequest struct {
	UserID         string
	Email          string
	Gems           int64
	IdempotencyKey string
}

// CheckoutSession is Stripe's hosted checkout.
type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// CreateCheckoutSession posts a payment-mode session for the requested package.
func (client *Client) CreateCheckoutSession(ctx context.Context, request CheckoutRequest) (CheckoutSession, error) {
	if client.secretKey == "" {
		return CheckoutSession{}, ErrNotConfigured
	}
	priceID, ok := client.packages[request.Gems]
	if !ok {
		return CheckoutSession{}, fmt.Errorf("%w: %d gems", ErrUnknownPackage, request.Gems)
	}
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price]", priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", client.successURL)
	form.Set("cancel_url", client.cancelURL)
	form.Set("client_reference_id", request.UserID)
	form.Set("metadata[user_id]", request.UserID)
	form.Set("metadata[gems]", strconv.FormatInt(request.Gems, 10))
	if email := strings.TrimSpace(request.Email); email != "" {
		form.Set("customer_email", email)
	}
	encoded := form.Encode()

	body, err := retry.DoWithData(client.retrier, ctx, func(ctx context.Context) ([]byte, error) {
		httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+checkoutSessionsPath, strings.NewReader(encoded))
		if err != nil {
			return nil, retry.Permanent(err)
		}
		httpRequest.Header.Set("Authorization", "Bearer "+client.secretKey)
		httpRequest.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if request.IdempotencyKey != "" {
			httpRequest.Header.Set("Idempotency-Key", request.IdempotencyKey)
		}
		response, err := client.httpClient.Do(httpRequest)
		if err != nil {
			return nil, err
		}
		defer response.Body.Close()
		payload, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if response.StatusCode >= http.StatusBadRequest {
			message := gjson.GetBytes(payload, "error.message").String()
			if message == "" {
				message = truncate(string(payload), maxErrorBodyBytes)
			}
			providerErr := fmt.Errorf("%w: status %d: %s", ErrProvider, response.StatusCode, message)
			if retry.RetryableStatus(response.StatusCode) {
				return nil, providerErr
			}
			return nil, retry.Permanent(providerErr)
		}
		return payload, nil
	})
	if err != nil {
		return CheckoutSession{}, err
	}
	session := CheckoutSession{
		SessionID:   gjson.GetBytes(body, "id").String(),
		CheckoutURL: gjson.GetBytes(body, "url").String(),
	}
	if session.SessionID == "" {
		return CheckoutSession{}, fmt.Errorf("%w: response has no session id", ErrProvider)
	}
	return session, nil
}

// Event is the subset of a Stripe webhook the backend acts on.
type Event struct {
	EventID       string
	Type          string
	SessionID     string
	PaymentStatus string
	UserID        string
	Gems          int64
}

// VerifyWebhook checks the Stripe-Signature header and decodes the event.
func (client *Client) VerifyWebhook(payload []byte, signatureHeader string) (Event, error) {
	if client.webhookSecret == "" {
		return Event{}, ErrNotConfigured
	}
	timestamp, signatures, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return Event{}, err
	}
	age := client.clock().Sub(time.Unix(timestamp, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return Event{}, fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}
	expected := computeSignature(client.webhookSecret, timestamp, payload)
	matched := false
	for _, candidate := range signatures {
		decoded, err := hex.DecodeString(candidate)
		if err == nil && hmac.Equal(decoded, expected) {
			matched = true
			break
		}
	}
	if !matched {
		return Event{}, fmt.Errorf("%w: no matching v1 signature", ErrInvalidSignature)
	}
	if !gjson.ValidBytes(payload) {
		return Event{}, fmt.Errorf("%w: body is not json", ErrInvalidEvent)
	}
	parsed := gjson.ParseBytes(payload)
	object := parsed.Get("data.object")
	event := Event{
		EventID:       parsed.Get("id").String(),
		Type:          parsed.Get("type").String(),
		SessionID:     object.Get("id").String(),
		PaymentStatus: object.Get("payment_status").String(),
		UserID:        object.Get("metadata.user_id").String(),
		Gems:          object.Get("metadata.gems").Int(),
	}
	if event.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrInvalidEvent)
	}
	return event, nil
}

// SignPayload builds a Stripe-Signature header value; used by tests and local tooling.
func SignPayload(secret string, timestamp time.Time, payload []byte) string {
	signature := computeSignature(secret, timestamp.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", timestamp.Unix(), hex.EncodeToString(signature))
}

func computeSignature(secret string, timestamp int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var timestamp int64
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			timestamp = parsed
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == 0 || len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: header missing t or v1", ErrInvalidSignature)
	}
	return timestamp, signatures, nil
}

// ParsePackages parses "10=price_a,47=price_b" into a gem package map.
func ParsePackages(raw string) (map[int64]string, error) {
	packages := make(map[int64]string)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		gemsText, priceID, found := strings.Cut(item, "=")
		if !found || strings.TrimSpace(priceID) == "" {
			return nil, fmt.Errorf("%w: %q must look like <gems>=<price id>", ErrUnknownPackage, item)
		}
		gems, err := strconv.ParseInt(strings.TrimSpace(gemsText), 10, 64)
		if err != nil || gems <= 0 {
			return nil, fmt.Errorf("%w: %q has an invalid gem amount", ErrUnknownPackage, item)
		}
		packages[gems] = strings.TrimSpace(priceID)
	}
	return packages, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
