package partners

import "errors"

var (
	ErrAppNotFound          = errors.New("partner app not found")
	ErrEventNotFound        = errors.New("partner webhook event not found")
	ErrInvalidAPIKey        = errors.New("invalid api key")
	ErrInvalidApp           = errors.New("invalid partner app")
	ErrInvalidEvent         = errors.New("invalid partner webhook event")
	ErrInvalidServiceConfig = errors.New("invalid partners service config")
)

// AppStatus tracks whether an app's key is accepted.
type AppStatus string

const (
	AppStatusActive  AppStatus = "active"
	AppStatusRevoked AppStatus = "revoked"
)

// App is a registered partner integration.
type App struct {
	AppID          string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Name           string    `json:"name"`
	WebhookURL     string    `json:"webhook_url,omitempty"`
	KeyPrefix      string    `json:"key_prefix"`
	KeyHash        string    `json:"-"`
	Status         AppStatus `json:"status"`
	CreatedUnixUTC int64     `json:"created_unix_utc"`
}

// Usage is one authenticated partner call.
type Usage struct {
	UsageID        string
	AppID          string
	Endpoint       string
	CreatedUnixUTC int64
}

// EndpointUsage counts calls per endpoint.
type EndpointUsage struct {
	Endpoint string `json:"endpoint"`
	Count    int64  `json:"count"`
}

// UsageStats summarizes an app's calls.
type UsageStats struct {
	AppID      string          `json:"app_id"`
	Total      int64           `json:"total"`
	LastDay    int64           `json:"last_24h"`
	ByEndpoint []EndpointUsage `json:"by_endpoint"`
}

// EventStatus tracks webhook delivery.
type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusDelivered EventStatus = "delivered"
	EventStatusFailed    EventStatus = "failed"
)

// Event is a webhook notification queued for a partner app.
type Event struct {
	EventID          string      `json:"id"`
	AppID            string      `json:"app_id"`
	EventType        string      `json:"event_type"`
	Payload          string      `json:"payload"`
	Status           EventStatus `json:"status"`
	Attempts         int         `json:"attempts"`
	LastError        string      `json:"last_error,omitempty"`
	CreatedUnixUTC   int64       `json:"created_unix_utc"`
	DeliveredUnixUTC int64       `json:"delivered_unix_utc,omitempty"`
}

// DeliverySummary reports one webhook delivery run.
type DeliverySummary struct {
	Delivered int `json:"delivered"`
	Retrying  int `json:"retrying"`
	Failed    int `json:"failed"`
}
