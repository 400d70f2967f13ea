package gormstore

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/promorang/internal/automation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BeginRun claims the job row; a running job whose last start is newer than staleBeforeUnixUTC blocks the claim.
func (store *Store) BeginRun(ctx context.Context, name string, startedUnixUTC int64, staleBeforeUnixUTC int64) error {
	return store.conn(ctx).Transaction(func(transaction *gorm.DB) error {
		now := time.Now().UTC()
		seed := CronJob{JobName: name, Status: string(automation.StatusIdle), UpdatedAt: now}
		err := transaction.
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "job_name"}}, DoNothing: true}).
			Create(&seed).Error
		if err != nil {
			return wrapStoreError(errorSubjectJob, errorCodeCreate, err)
		}
		var model CronJob
		err = transaction.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("job_name = ?", name).
			Take(&model).Error
		if err != nil {
			return wrapStoreError(errorSubjectJob, errorCodeLock, err)
		}
		if model.Status == string(automation.StatusRunning) && timeOrZero(model.LastRunAt) > staleBeforeUnixUTC {
			return wrapStoreError(errorSubjectJob, errorCodeUpdateStatus, automation.ErrJobRunning)
		}
		err = transaction.
			Model(&CronJob{}).
			Where("job_name = ?", name).
			Updates(map[string]any{
				"status":      string(automation.StatusRunning),
				"last_run_at": unixTime(startedUnixUTC),
				"updated_at":  now,
			}).Error
		if err != nil {
			return wrapStoreError(errorSubjectJob, errorCodeUpdateStatus, err)
		}
		return nil
	})
}

func (store *Store) FinishRun(ctx context.Context, name string, status automation.Status, durationMS int64, lastError string) error {
	result := store.conn(ctx).
		Model(&CronJob{}).
		Where("job_name = ?", name).
		Updates(map[string]any{
			"status":           string(status),
			"last_duration_ms": durationMS,
			"last_error":       lastError,
			"run_count":        gorm.Expr("run_count + 1"),
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectJob, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectJob, errorCodeUpdateStatus, automation.ErrJobNotFound)
	}
	return nil
}

func (store *Store) ListJobs(ctx context.Context) ([]automation.JobState, error) {
	var rows []CronJob
	if err := store.conn(ctx).Order("job_name ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectJob, errorCodeList, err)
	}
	states := make([]automation.JobState, 0, len(rows))
	for _, row := range rows {
		states = append(states, mapJob(row))
	}
	return states, nil
}
