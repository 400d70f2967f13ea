// Package automation runs named maintenance jobs and records their state in cron_jobs.
package automation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job names known to the rewards backend.
const (
	JobStakingRewards    = "staking_rewards_distribution"
	JobAnalyticsSnapshot = "analytics_snapshot"
	JobLeaderboard       = "leaderboard_refresh"
	JobPartnerWebhooks   = "partner_webhook_delivery"
)

var (
	ErrJobNotFound          = errors.New("automation job not found")
	ErrJobRunning           = errors.New("automation job already running")
	ErrInvalidJob           = errors.New("invalid automation job")
	ErrInvalidServiceConfig = errors.New("invalid automation runner config")
)

// Status is the last known state of a job.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// JobState mirrors one cron_jobs row.
type JobState struct {
	Name           string `json:"name"`
	Status         Status `json:"status"`
	LastRunUnixUTC int64  `json:"last_run_unix_utc,omitempty"`
	LastDurationMS int64  `json:"last_duration_ms"`
	LastError      string `json:"last_error,omitempty"`
	RunCount       int64  `json:"run_count"`
}

// Store tracks job runs.
type Store interface {
	// BeginRun marks the job running, or returns ErrJobRunning when another run started after staleBeforeUnixUTC.
	BeginRun(ctx context.Context, name string, startedUnixUTC int64, staleBeforeUnixUTC int64) error
	FinishRun(ctx context.Context, name string, status Status, durationMS int64, lastError string) error
	ListJobs(ctx context.Context) ([]JobState, error)
}

// Job does one unit of work and returns a JSON-friendly summary.
type Job func(ctx context.Context) (any, error)

// RunResult reports a finished run.
type RunResult struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Summary    any    `json:"summary,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Runner executes registered jobs one run at a time per job.
type Runner struct {
	store      Store
	clock      func() time.Time
	staleAfter time.Duration
	logger     *zap.Logger

	mu        sync.RWMutex
	jobs      map[string]Job
	observers []func(RunResult)
}

// NewRunner builds a Runner. A running mark older than staleAfter is ignored.
func NewRunner(store Store, clock func() time.Time, staleAfter time.Duration, logger *zap.Logger) (*Runner, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if clock == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		store:      store,
		clock:      clock,
		staleAfter: staleAfter,
		logger:     logger,
		jobs:       make(map[string]Job),
	}, nil
}

// Register adds a job under name.
func (runner *Runner) Register(name string, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" || job == nil {
		return fmt.Errorf("%w: name and job are required", ErrInvalidJob)
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	if _, exists := runner.jobs[name]; exists {
		return fmt.Errorf("%w: %s registered twice", ErrInvalidJob, name)
	}
	runner.jobs[name] = job
	return nil
}

// Observe registers fn to receive every finished run, including failed ones.
func (runner *Runner) Observe(fn func(RunResult)) {
	if fn == nil {
		return
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	runner.observers = append(runner.observers, fn)
}

// Names lists registered jobs in name order.
func (runner *Runner) Names() []string {
	runner.mu.RLock()
	defer runner.mu.RUnlock()
	names := make([]string, 0, len(runner.jobs))
	for name := range runner.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the named job now and records the outcome.
// A failing job still returns a RunResult; the error is reported in it.
func (runner *Runner) Run(ctx context.Context, name string) (RunResult, error) {
	name = strings.TrimSpace(name)
	runner.mu.RLock()
	job, ok := runner.jobs[name]
	runner.mu.RUnlock()
	if !ok {
		return RunResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	started := runner.clock()
	if err := runner.store.BeginRun(ctx, name, started.Unix(), started.Add(-runner.staleAfter).Unix()); err != nil {
		return RunResult{}, err
	}

	summary, jobErr := runJob(ctx, job)
	duration := runner.clock().Sub(started)
	result := RunResult{Name: name, Status: StatusCompleted, DurationMS: duration.Milliseconds(), Summary: summary}
	if jobErr != nil {
		result.Status = StatusFailed
		result.Error = jobErr.Error()
		runner.logger.Error("automation job failed", zap.String("job", name), zap.Duration("duration", duration), zap.Error(jobErr))
	} else {
		runner.logger.Info("automation job completed", zap.String("job", name), zap.Duration("duration", duration))
	}

	runner.mu.RLock()
	observers := runner.observers
	runner.mu.RUnlock()
	for _, observe := range observers {
		observe(result)
	}

	// The run is recorded even when the caller's context was cancelled mid-job.
	finishCtx := context.WithoutCancel(ctx)
	if err := runner.store.FinishRun(finishCtx, name, result.Status, result.DurationMS, result.Error); err != nil {
		return result, err
	}
	return result, nil
}

// States returns one state per registered job, idle when it never ran.
func (runner *Runner) States(ctx context.Context) ([]JobState, error) {
	stored, err := runner.store.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]JobState, len(stored))
	for _, state := range stored {
		byName[state.Name] = state
	}
	names := runner.Names()
	states := make([]JobState, 0, len(names))
	for _, name := range names {
		state, ok := byName[name]
		if !ok {
			state = JobState{Name: name, Status: StatusIdle}
		}
		states = append(states, state)
	}
	return states, nil
}

func runJob(ctx context.Context, job Job) (summary any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("job panicked: %v", recovered)
		}
	}()
	return job(ctx)
}
