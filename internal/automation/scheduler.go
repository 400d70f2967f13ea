package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSpecs are the cron schedules used when the scheduler is enabled.
func DefaultSpecs() map[string]string {
	return map[string]string{
		JobStakingRewards:    "*/10 * * * *",
		JobAnalyticsSnapshot: "0 * * * *",
		JobLeaderboard:       "@every 1m",
		JobPartnerWebhooks:   "@every 1m",
	}
}

// Scheduler triggers Runner jobs on cron schedules in UTC.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	specs  map[string]string
	logger *zap.Logger
}

// NewScheduler validates every spec against the runner's registered jobs.
func NewScheduler(runner *Runner, specs map[string]string, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("%w: runner dependency is nil", ErrInvalidServiceConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registered := make(map[string]struct{})
	for _, name := range runner.Names() {
		registered[name] = struct{}{}
	}
	for name, spec := range specs {
		if _, ok := registered[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("%w: %s spec %q: %v", ErrInvalidJob, name, spec, err)
		}
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		runner: runner,
		specs:  specs,
		logger: logger,
	}, nil
}

// Start registers every schedule and starts the cron loop.
func (scheduler *Scheduler) Start(ctx context.Context) error {
	for name, spec := range scheduler.specs {
		jobName := name
		if _, err := scheduler.cron.AddFunc(spec, func() {
			scheduler.trigger(ctx, jobName)
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", jobName, err)
		}
	}
	scheduler.cron.Start()
	scheduler.logger.Info("automation scheduler started", zap.Int("jobs", len(scheduler.specs)))
	return nil
}

// Stop waits for in-flight runs to finish.
func (scheduler *Scheduler) Stop() {
	stopCtx := scheduler.cron.Stop()
	<-stopCtx.Done()
	scheduler.logger.Info("automation scheduler stopped")
}

func (scheduler *Scheduler) trigger(ctx context.Context, name string) {
	if ctx.Err() != nil {
		return
	}
	if _, err := scheduler.runner.Run(ctx, name); err != nil {
		if errors.Is(err, ErrJobRunning) {
			scheduler.logger.Debug("automation job still running", zap.String("job", name))
			return
		}
		scheduler.logger.Error("automation trigger failed", zap.String("job", name), zap.Error(err))
	}
}
