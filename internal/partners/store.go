package partners

import "context"

// Store persists partner apps, usage and webhook events.
type Store interface {
	InsertApp(ctx context.Context, app App) error
	GetApp(ctx context.Context, appID string) (App, error)
	FindAppByKeyPrefix(ctx context.Context, keyPrefix string) (App, error)
	ListApps(ctx context.Context, ownerID string) ([]App, error)

	InsertUsage(ctx context.Context, usage Usage) error
	// UsageByEndpoint counts calls at or after sinceUnixUTC, grouped by endpoint.
	UsageByEndpoint(ctx context.Context, appID string, sinceUnixUTC int64) ([]EndpointUsage, error)

	InsertEvent(ctx context.Context, event Event) error
	// ListPendingEvents returns the oldest pending events first.
	ListPendingEvents(ctx context.Context, limit int) ([]Event, error)
	UpdateEvent(ctx context.Context, event Event) error
}
