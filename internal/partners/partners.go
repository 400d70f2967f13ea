package partners

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/promorang/internal/retry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// MaxDeliveryAttempts is how many runs may try an event before it is marked failed.
	MaxDeliveryAttempts = 5

	maxAppNameLength     = 100
	maxEventTypeLength   = 64
	secondsPerDay        = 24 * 60 * 60
	defaultDeliveryLimit = 50
	maxErrorLength       = 500
	eventTypeHeader      = "X-Promorang-Event"
	eventIDHeader        = "X-Promorang-Event-Id"
	contentTypeJSON      = "application/json"
)

// Service manages partner apps, API keys and webhook delivery.
type Service struct {
	store   Store
	client  *http.Client
	retrier *retry.Retrier
	nowFn   func() int64
	newID   func() string
	logger  *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient replaces the webhook HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(service *Service) {
		if client != nil {
			service.client = client
		}
	}
}

// WithRetrier replaces the webhook retry policy.
func WithRetrier(retrier *retry.Retrier) Option {
	return func(service *Service) {
		if retrier != nil {
			service.retrier = retrier
		}
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *zap.Logger) Option {
	return func(service *Service) {
		if logger != nil {
			service.logger = logger
		}
	}
}

// NewService wires a Service. timeout bounds each webhook request.
func NewService(store Store, now func() int64, timeout time.Duration, options ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	service := &Service{
		store:   store,
		client:  &http.Client{Timeout: timeout},
		retrier: retry.New(),
		nowFn:   now,
		newID:   uuid.NewString,
		logger:  zap.NewNop(),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Registration is a new app with its raw API key, shown only once.
type Registration struct {
	App    App    `json:"app"`
	APIKey string `json:"api_key"`
}

// RegisterApp creates an app owned by ownerID and issues its API key.
func (service *Service) RegisterApp(ctx context.Context, ownerID string, name string, webhookURL string) (Registration, error) {
	ownerID = strings.TrimSpace(ownerID)
	name = strings.TrimSpace(name)
	if ownerID == "" {
		return Registration{}, fmt.Errorf("%w: owner is required", ErrInvalidApp)
	}
	if name == "" || len(name) > maxAppNameLength {
		return Registration{}, fmt.Errorf("%w: name must be 1 to %d characters", ErrInvalidApp, maxAppNameLength)
	}
	normalizedURL, err := normalizeWebhookURL(webhookURL)
	if err != nil {
		return Registration{}, err
	}
	rawKey, prefix, err := generateKey()
	if err != nil {
		return Registration{}, err
	}
	keyHash, err := hashKey(rawKey)
	if err != nil {
		return Registration{}, err
	}
	app := App{
		AppID:          service.newID(),
		OwnerID:        ownerID,
		Name:           name,
		WebhookURL:     normalizedURL,
		KeyPrefix:      prefix,
		KeyHash:        keyHash,
		Status:         AppStatusActive,
		CreatedUnixUTC: service.nowFn(),
	}
	if err := service.store.InsertApp(ctx, app); err != nil {
		return Registration{}, err
	}
	return Registration{App: app, APIKey: rawKey}, nil
}

// ListApps returns the apps owned by ownerID.
func (service *Service) ListApps(ctx context.Context, ownerID string) ([]App, error) {
	return service.store.ListApps(ctx, strings.TrimSpace(ownerID))
}

// OwnedApp returns an app only when ownerID owns it.
func (service *Service) OwnedApp(ctx context.Context, ownerID string, appID string) (App, error) {
	app, err := service.store.GetApp(ctx, strings.TrimSpace(appID))
	if err != nil {
		return App{}, err
	}
	if app.OwnerID != strings.TrimSpace(ownerID) {
		return App{}, ErrAppNotFound
	}
	return app, nil
}

// Authenticate resolves a raw API key to its active app.
func (service *Service) Authenticate(ctx context.Context, rawKey string) (App, error) {
	prefix, err := splitKey(rawKey)
	if err != nil {
		return App{}, err
	}
	app, err := service.store.FindAppByKeyPrefix(ctx, prefix)
	if errors.Is(err, ErrAppNotFound) {
		return App{}, ErrInvalidAPIKey
	}
	if err != nil {
		return App{}, err
	}
	if app.Status != AppStatusActive || !verifyKey(strings.TrimSpace(rawKey), app.KeyHash) {
		return App{}, ErrInvalidAPIKey
	}
	return app, nil
}

// RecordUsage stores one authenticated call.
func (service *Service) RecordUsage(ctx context.Context, appID string, endpoint string) error {
	return service.store.InsertUsage(ctx, Usage{
		UsageID:        service.newID(),
		AppID:          appID,
		Endpoint:       strings.TrimSpace(endpoint),
		CreatedUnixUTC: service.nowFn(),
	})
}

// UsageStats reports call counts for an app owned by ownerID.
func (service *Service) UsageStats(ctx context.Context, ownerID string, appID string) (UsageStats, error) {
	app, err := service.OwnedApp(ctx, ownerID, appID)
	if err != nil {
		return UsageStats{}, err
	}
	allTime, err := service.store.UsageByEndpoint(ctx, app.AppID, 0)
	if err != nil {
		return UsageStats{}, err
	}
	lastDay, err := service.store.UsageByEndpoint(ctx, app.AppID, service.nowFn()-secondsPerDay)
	if err != nil {
		return UsageStats{}, err
	}
	stats := UsageStats{AppID: app.AppID, ByEndpoint: allTime}
	for _, usage := range allTime {
		stats.Total += usage.Count
	}
	for _, usage := range lastDay {
		stats.LastDay += usage.Count
	}
	return stats, nil
}

// QueueEvent stores a webhook event for later delivery.
func (service *Service) QueueEvent(ctx context.Context, ownerID string, appID string, eventType string, payload json.RawMessage) (Event, error) {
	app, err := service.OwnedApp(ctx, ownerID, appID)
	if err != nil {
		return Event{}, err
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" || len(eventType) > maxEventTypeLength {
		return Event{}, fmt.Errorf("%w: event_type must be 1 to %d characters", ErrInvalidEvent, maxEventTypeLength)
	}
	body := strings.TrimSpace(string(payload))
	if body == "" {
		body = "{}"
	}
	if !json.Valid([]byte(body)) {
		return Event{}, fmt.Errorf("%w: payload must be valid json", ErrInvalidEvent)
	}
	event := Event{
		EventID:        service.newID(),
		AppID:          app.AppID,
		EventType:      eventType,
		Payload:        body,
		Status:         EventStatusPending,
		CreatedUnixUTC: service.nowFn(),
	}
	if err := service.store.InsertEvent(ctx, event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// DeliverPending posts pending events to their app webhooks.
// An event that has failed MaxDeliveryAttempts runs is marked failed.
func (service *Service) DeliverPending(ctx context.Context, limit int) (DeliverySummary, error) {
	if limit <= 0 {
		limit = defaultDeliveryLimit
	}
	var summary DeliverySummary
	events, err := service.store.ListPendingEvents(ctx, limit)
	if err != nil {
		return summary, err
	}
	apps := make(map[string]App)
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		app, cached := apps[event.AppID]
		if !cached {
			app, err = service.store.GetApp(ctx, event.AppID)
			if err != nil && !errors.Is(err, ErrAppNotFound) {
				return summary, err
			}
			apps[event.AppID] = app
		}
		event.Attempts++
		deliveryErr := service.deliver(ctx, app, event)
		switch {
		case deliveryErr == nil:
			event.Status = EventStatusDelivered
			event.LastError = ""
			event.DeliveredUnixUTC = service.nowFn()
			summary.Delivered++
		case retry.IsPermanent(deliveryErr) || event.Attempts >= MaxDeliveryAttempts:
			event.Status = EventStatusFailed
			event.LastError = truncate(deliveryErr.Error(), maxErrorLength)
			summary.Failed++
		default:
			event.LastError = truncate(deliveryErr.Error(), maxErrorLength)
			summary.Retrying++
		}
		if deliveryErr != nil {
			service.logger.Warn("partner webhook delivery failed",
				zap.String("event_id", event.EventID),
				zap.String("app_id", event.AppID),
				zap.Int("attempts", event.Attempts),
				zap.Error(deliveryErr),
			)
		}
		if err := service.store.UpdateEvent(ctx, event); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func (service *Service) deliver(ctx context.Context, app App, event Event) error {
	if app.AppID == "" || app.Status != AppStatusActive {
		return retry.Permanent(fmt.Errorf("app %s is not active", event.AppID))
	}
	if app.WebhookURL == "" {
		return retry.Permanent(errors.New("app has no webhook url"))
	}
	return service.retrier.Do(ctx, func(ctx context.Context) error {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, app.WebhookURL, bytes.NewReader([]byte(event.Payload)))
		if err != nil {
			return retry.Permanent(err)
		}
		request.Header.Set("Content-Type", contentTypeJSON)
		request.Header.Set(eventTypeHeader, event.EventType)
		request.Header.Set(eventIDHeader, event.EventID)
		response, err := service.client.Do(request)
		if err != nil {
			return err
		}
		defer response.Body.Close()
		_, _ = io.Copy(io.Discard, response.Body)
		if response.StatusCode >= http.StatusBadRequest {
			statusErr := fmt.Errorf("webhook status %d", response.StatusCode)
			if retry.RetryableStatus(response.StatusCode) {
				return statusErr
			}
			return retry.Permanent(statusErr)
		}
		return nil
	})
}

func normalizeWebhookURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("%w: webhook_url must be an absolute http(s) url", ErrInvalidApp)
	}
	return parsed.String(), nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
