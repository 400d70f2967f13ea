package automation

import "context"

// Batch sizes for the built-in jobs.
const (
	StakingBatchSize = 200
	WebhookBatchSize = 100
)

// BatchJob adapts a limit-taking operation, such as staking payouts or webhook delivery, into a Job.
func BatchJob[T any](run func(ctx context.Context, limit int) (T, error), limit int) Job {
	return func(ctx context.Context) (any, error) {
		return run(ctx, limit)
	}
}

// SummaryJob adapts an operation that returns a summary value into a Job.
func SummaryJob[T any](run func(ctx context.Context) (T, error)) Job {
	return func(ctx context.Context) (any, error) {
		return run(ctx)
	}
}

// CountJob adapts an operation that reports how many records it touched.
func CountJob(key string, run func(ctx context.Context) (int, error)) Job {
	return func(ctx context.Context) (any, error) {
		count, err := run(ctx)
		return map[string]int{key: count}, err
	}
}
