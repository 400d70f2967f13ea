// Package pgstore tracks automation runs in Postgres through a pgx pool so
// that several promorangd replicas never run the same job concurrently.
package pgstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/promorang/internal/automation"
	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	errorOperationStore   = "store"
	errorSubjectJob       = "job"
	errorCodeClaim        = "claim"
	errorCodeList         = "list"
	errorCodeUpdateStatus = "update_status"

	// A row is claimable unless it is running and was started after the stale cutoff.
	sqlClaimJob = `
		insert into cron_jobs(job_name, status, last_run_at, updated_at)
		values ($1, 'running', to_timestamp($2), now())
		on conflict (job_name) do update
		set status = 'running', last_run_at = excluded.last_run_at, updated_at = now()
		where cron_jobs.status <> 'running'
			or cron_jobs.last_run_at is null
			or cron_jobs.last_run_at <= to_timestamp($3)
		returning job_name
	`

	sqlFinishJob = `
		update cron_jobs
		set status = $2, last_duration_ms = $3, last_error = $4, run_count = run_count + 1, updated_at = now()
		where job_name = $1
	`

	sqlListJobs = `
		select job_name, status,
			coalesce(extract(epoch from last_run_at)::bigint, 0),
			last_duration_ms, last_error, run_count
		from cron_jobs
		order by job_name asc
	`
)

// Store implements automation.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// BeginRun claims the job in one statement.
func (store *Store) BeginRun(ctx context.Context, name string, startedUnixUTC int64, staleBeforeUnixUTC int64) error {
	var claimed string
	err := store.pool.QueryRow(ctx, sqlClaimJob, name, startedUnixUTC, staleBeforeUnixUTC).Scan(&claimed)
	if errors.Is(err, pgx.ErrNoRows) {
		return wrapStoreError(errorCodeClaim, automation.ErrJobRunning)
	}
	if err != nil {
		return wrapStoreError(errorCodeClaim, err)
	}
	return nil
}

func (store *Store) FinishRun(ctx context.Context, name string, status automation.Status, durationMS int64, lastError string) error {
	tag, err := store.pool.Exec(ctx, sqlFinishJob, name, string(status), durationMS, lastError)
	if err != nil {
		return wrapStoreError(errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorCodeUpdateStatus, automation.ErrJobNotFound)
	}
	return nil
}

type jobRow struct {
	Name           string
	Status         string
	LastRunUnixUTC int64
	LastDurationMS int64
	LastError      string
	RunCount       int64
}

func (store *Store) ListJobs(ctx context.Context) ([]automation.JobState, error) {
	rows, err := store.pool.Query(ctx, sqlListJobs)
	if err != nil {
		return nil, wrapStoreError(errorCodeList, err)
	}
	collected, err := pgx.CollectRows(rows, pgx.RowToStructByPos[jobRow])
	if err != nil {
		return nil, wrapStoreError(errorCodeList, err)
	}
	states := make([]automation.JobState, 0, len(collected))
	for _, row := range collected {
		states = append(states, automation.JobState{
			Name:           row.Name,
			Status:         automation.Status(row.Status),
			LastRunUnixUTC: row.LastRunUnixUTC,
			LastDurationMS: row.LastDurationMS,
			LastError:      row.LastError,
			RunCount:       row.RunCount,
		})
	}
	return states, nil
}

func wrapStoreError(code string, err error) error {
	return economy.WrapError(errorOperationStore, errorSubjectJob, code, err)
}
