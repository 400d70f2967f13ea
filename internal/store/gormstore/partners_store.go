package gormstore

import (
	"context"

	"github.com/MarkoPoloResearchLab/promorang/internal/partners"
)

func (store *Store) InsertApp(ctx context.Context, app partners.App) error {
	model := PartnerApp{
		AppID:      app.AppID,
		OwnerID:    app.OwnerID,
		Name:       app.Name,
		WebhookURL: app.WebhookURL,
		KeyPrefix:  app.KeyPrefix,
		KeyHash:    app.KeyHash,
		Status:     string(app.Status),
		CreatedAt:  unixTime(app.CreatedUnixUTC),
	}
	err := store.conn(ctx).Create(&model).Error
	if isUniqueConflict(err, constraintPartnerKeyPrefix) {
		return wrapStoreError(errorSubjectPartnerApp, errorCodeDuplicate, partners.ErrInvalidApp)
	}
	if err != nil {
		return wrapStoreError(errorSubjectPartnerApp, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetApp(ctx context.Context, appID string) (partners.App, error) {
	return store.findApp(ctx, "app_id = ?", appID)
}

func (store *Store) FindAppByKeyPrefix(ctx context.Context, keyPrefix string) (partners.App, error) {
	return store.findApp(ctx, "key_prefix = ?", keyPrefix)
}

func (store *Store) findApp(ctx context.Context, condition string, value string) (partners.App, error) {
	var model PartnerApp
	err := store.conn(ctx).Where(condition, value).Take(&model).Error
	if isNotFound(err) {
		return partners.App{}, wrapStoreError(errorSubjectPartnerApp, errorCodeGet, partners.ErrAppNotFound)
	}
	if err != nil {
		return partners.App{}, wrapStoreError(errorSubjectPartnerApp, errorCodeGet, err)
	}
	return mapPartnerApp(model), nil
}

func (store *Store) ListApps(ctx context.Context, ownerID string) ([]partners.App, error) {
	var rows []PartnerApp
	err := store.conn(ctx).Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectPartnerApp, errorCodeList, err)
	}
	apps := make([]partners.App, 0, len(rows))
	for _, row := range rows {
		apps = append(apps, mapPartnerApp(row))
	}
	return apps, nil
}

func (store *Store) InsertUsage(ctx context.Context, usage partners.Usage) error {
	model := PartnerUsage{
		UsageID:   usage.UsageID,
		AppID:     usage.AppID,
		Endpoint:  usage.Endpoint,
		CreatedAt: unixTime(usage.CreatedUnixUTC),
	}
	if err := store.conn(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectPartnerUsage, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) UsageByEndpoint(ctx context.Context, appID string, sinceUnixUTC int64) ([]partners.EndpointUsage, error) {
	var rows []partners.EndpointUsage
	err := store.conn(ctx).
		Model(&PartnerUsage{}).
		Select("endpoint, count(*) as count").
		Where("app_id = ? AND created_at >= ?", appID, unixTime(sinceUnixUTC)).
		Group("endpoint").
		Order("endpoint ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectPartnerUsage, errorCodeCount, err)
	}
	if rows == nil {
		rows = []partners.EndpointUsage{}
	}
	return rows, nil
}

func (store *Store) InsertEvent(ctx context.Context, event partners.Event) error {
	model := PartnerWebhookEvent{
		EventID:     event.EventID,
		AppID:       event.AppID,
		EventType:   event.EventType,
		Payload:     datatypesJSON(event.Payload),
		Status:      string(event.Status),
		Attempts:    event.Attempts,
		LastError:   event.LastError,
		CreatedAt:   unixTime(event.CreatedUnixUTC),
		DeliveredAt: optionalTime(event.DeliveredUnixUTC),
	}
	if err := store.conn(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectPartnerEvent, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListPendingEvents(ctx context.Context, limit int) ([]partners.Event, error) {
	var rows []PartnerWebhookEvent
	err := store.conn(ctx).
		Where("status = ?", string(partners.EventStatusPending)).
		Order("created_at ASC").
		Order("event_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectPartnerEvent, errorCodeList, err)
	}
	events := make([]partners.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, mapPartnerEvent(row))
	}
	return events, nil
}

// UpdateEvent persists the delivery outcome fields of an event.
func (store *Store) UpdateEvent(ctx context.Context, event partners.Event) error {
	result := store.conn(ctx).
		Model(&PartnerWebhookEvent{}).
		Where("event_id = ?", event.EventID).
		Updates(map[string]any{
			"status":       string(event.Status),
			"attempts":     event.Attempts,
			"last_error":   event.LastError,
			"delivered_at": optionalTime(event.DeliveredUnixUTC),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectPartnerEvent, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPartnerEvent, errorCodeUpdate, partners.ErrEventNotFound)
	}
	return nil
}
