package gormstore

import (
	"context"

	"github.com/MarkoPoloResearchLab/promorang/internal/admin"
	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
)

func (store *Store) UpdateContentStatus(ctx context.Context, contentID string, status economy.ContentStatus) (economy.Content, error) {
	result := store.conn(ctx).
		Model(&Content{}).
		Where("content_id = ?", contentID).
		Update("status", string(status))
	if result.Error != nil {
		return economy.Content{}, wrapStoreError(errorSubjectContent, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return economy.Content{}, wrapStoreError(errorSubjectContent, errorCodeUpdateStatus, economy.ErrContentNotFound)
	}
	return store.GetContent(ctx, contentID)
}

func (store *Store) InsertAdminLog(ctx context.Context, log admin.Log) error {
	model := AdminLog{
		LogID:      log.LogID,
		AdminID:    log.AdminID,
		Action:     log.Action,
		TargetType: log.TargetType,
		TargetID:   log.TargetID,
		Details:    datatypesJSON(log.Details),
		CreatedAt:  unixTime(log.CreatedUnixUTC),
	}
	if err := store.conn(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectAdminLog, errorCodeInsert, err)
	}
	return nil
}

// ListAdminLogs returns the newest logs first, optionally filtered by action.
func (store *Store) ListAdminLogs(ctx context.Context, action string, limit int) ([]admin.Log, error) {
	query := store.conn(ctx).Order("created_at DESC").Order("log_id DESC").Limit(limit)
	if action != "" {
		query = query.Where("action = ?", action)
	}
	var rows []AdminLog
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectAdminLog, errorCodeList, err)
	}
	logs := make([]admin.Log, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, mapAdminLog(row))
	}
	return logs, nil
}
