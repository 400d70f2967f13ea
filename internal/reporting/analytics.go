package reporting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// GlobalMetrics is the platform-wide snapshot shown on the analytics dashboard.
type GlobalMetrics struct {
	TakenUnixUTC       int64           `json:"taken_unix_utc"`
	DAU                int64           `json:"dau"`
	WAU                int64           `json:"wau"`
	MAU                int64           `json:"mau"`
	TotalUsers         int64           `json:"total_users"`
	TotalEntries       int64           `json:"total_entries"`
	GemsPurchased      int64           `json:"gems_purchased"`
	GemsSpent          int64           `json:"gems_spent"`
	ActiveStakes       int64           `json:"active_stakes"`
	ActiveProjects     int64           `json:"active_projects"`
	ARPU               decimal.Decimal `json:"arpu"`
	TaskCompletionRate decimal.Decimal `json:"task_completion_rate"`
}

// Snapshot is a stored GlobalMetrics row.
type Snapshot struct {
	SnapshotID         string          `json:"id"`
	TakenUnixUTC       int64           `json:"taken_unix_utc"`
	DAU                int64           `json:"dau"`
	WAU                int64           `json:"wau"`
	MAU                int64           `json:"mau"`
	TotalUsers         int64           `json:"total_users"`
	GemsPurchased      int64           `json:"gems_purchased"`
	ARPU               decimal.Decimal `json:"arpu"`
	TaskCompletionRate decimal.Decimal `json:"task_completion_rate"`
}

// Trend is the direction of a metric between two snapshots.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// GlobalReport pairs current metrics with the change since the latest snapshot.
type GlobalReport struct {
	Current  GlobalMetrics    `json:"current"`
	Previous *Snapshot        `json:"previous,omitempty"`
	Trends   map[string]Trend `json:"trends"`
}

type applicationOutcomes struct {
	Approved int64 `db:"approved"`
	Reviewed int64 `db:"reviewed"`
}

// GlobalMetrics computes activity windows by ledger activity at the current time.
func (reader *Reader) GlobalMetrics(ctx context.Context) (GlobalMetrics, error) {
	now := reader.nowFn()
	metrics := GlobalMetrics{TakenUnixUTC: now}

	windows := []struct {
		days   int64
		target *int64
	}{
		{days: 1, target: &metrics.DAU},
		{days: 7, target: &metrics.WAU},
		{days: 30, target: &metrics.MAU},
	}
	for _, window := range windows {
		since := unixToTime(now - window.days*secondsPerDay)
		if err := reader.db.GetContext(ctx, window.target, reader.db.Rebind(
			`SELECT COUNT(DISTINCT user_id) FROM ledger_entries WHERE created_at >= ?`), since); err != nil {
			return GlobalMetrics{}, fmt.Errorf("reporting.metrics.active_users: %w", err)
		}
	}

	counters := []struct {
		name   string
		query  string
		target *int64
	}{
		{name: "users", query: `SELECT COUNT(*) FROM users`, target: &metrics.TotalUsers},
		{name: "entries", query: `SELECT COUNT(*) FROM ledger_entries`, target: &metrics.TotalEntries},
		{name: "gems_purchased", query: `SELECT COALESCE(SUM(gems), 0) FROM payments WHERE kind = 'deposit' AND status = 'completed'`, target: &metrics.GemsPurchased},
		{name: "gems_spent", query: `SELECT COALESCE(SUM(-gems_delta), 0) FROM ledger_entries WHERE gems_delta < 0`, target: &metrics.GemsSpent},
		{name: "stakes", query: `SELECT COUNT(*) FROM stakes WHERE status = 'active'`, target: &metrics.ActiveStakes},
		{name: "projects", query: `SELECT COUNT(*) FROM funding_projects WHERE status = 'active'`, target: &metrics.ActiveProjects},
	}
	for _, counter := range counters {
		if err := reader.db.GetContext(ctx, counter.target, counter.query); err != nil {
			return GlobalMetrics{}, fmt.Errorf("reporting.metrics.%s: %w", counter.name, err)
		}
	}

	var outcomes applicationOutcomes
	if err := reader.db.GetContext(ctx, &outcomes, `SELECT
		COALESCE(SUM(CASE WHEN status = 'approved' THEN 1 ELSE 0 END), 0) AS approved,
		COALESCE(SUM(CASE WHEN status IN ('approved', 'rejected') THEN 1 ELSE 0 END), 0) AS reviewed
		FROM drop_applications`); err != nil {
		return GlobalMetrics{}, fmt.Errorf("reporting.metrics.applications: %w", err)
	}

	metrics.ARPU = decimal.Zero
	if metrics.TotalUsers > 0 {
		metrics.ARPU = decimal.NewFromInt(metrics.GemsPurchased).Mul(gemUnitPrice).
			Div(decimal.NewFromInt(metrics.TotalUsers)).Round(2)
	}
	metrics.TaskCompletionRate = decimal.Zero
	if outcomes.Reviewed > 0 {
		metrics.TaskCompletionRate = decimal.NewFromInt(outcomes.Approved).Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(outcomes.Reviewed)).Round(2)
	}
	return metrics, nil
}

// SaveSnapshot stores metrics as a new analytics_snapshots row.
func (reader *Reader) SaveSnapshot(ctx context.Context, metrics GlobalMetrics) (Snapshot, error) {
	snapshot := Snapshot{
		SnapshotID:         reader.newID(),
		TakenUnixUTC:       metrics.TakenUnixUTC,
		DAU:                metrics.DAU,
		WAU:                metrics.WAU,
		MAU:                metrics.MAU,
		TotalUsers:         metrics.TotalUsers,
		GemsPurchased:      metrics.GemsPurchased,
		ARPU:               metrics.ARPU,
		TaskCompletionRate: metrics.TaskCompletionRate,
	}
	_, err := reader.db.ExecContext(ctx, reader.db.Rebind(`INSERT INTO analytics_snapshots
		(snapshot_id, taken_at, dau, wau, mau, total_users, arpu, gems_purchased, task_completion_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		snapshot.SnapshotID, unixToTime(snapshot.TakenUnixUTC), snapshot.DAU, snapshot.WAU, snapshot.MAU,
		snapshot.TotalUsers, snapshot.ARPU.String(), snapshot.GemsPurchased, snapshot.TaskCompletionRate.String())
	if err != nil {
		return Snapshot{}, fmt.Errorf("reporting.snapshot.save: %w", err)
	}
	return snapshot, nil
}

// TakeSnapshot computes and stores the current metrics.
func (reader *Reader) TakeSnapshot(ctx context.Context) (Snapshot, error) {
	metrics, err := reader.GlobalMetrics(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return reader.SaveSnapshot(ctx, metrics)
}

type snapshotRow struct {
	SnapshotID         string          `db:"snapshot_id"`
	TakenAt            time.Time       `db:"taken_at"`
	DAU                int64           `db:"dau"`
	WAU                int64           `db:"wau"`
	MAU                int64           `db:"mau"`
	TotalUsers         int64           `db:"total_users"`
	GemsPurchased      int64           `db:"gems_purchased"`
	ARPU               decimal.Decimal `db:"arpu"`
	TaskCompletionRate decimal.Decimal `db:"task_completion_rate"`
}

// LatestSnapshot returns the newest stored snapshot, or nil when none exists.
func (reader *Reader) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var row snapshotRow
	err := reader.db.GetContext(ctx, &row, `SELECT snapshot_id, taken_at, dau, wau, mau, total_users, arpu, gems_purchased, task_completion_rate
		FROM analytics_snapshots ORDER BY taken_at DESC LIMIT 1`)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reporting.snapshot.latest: %w", err)
	}
	return &Snapshot{
		SnapshotID:         row.SnapshotID,
		TakenUnixUTC:       row.TakenAt.Unix(),
		DAU:                row.DAU,
		WAU:                row.WAU,
		MAU:                row.MAU,
		TotalUsers:         row.TotalUsers,
		GemsPurchased:      row.GemsPurchased,
		ARPU:               row.ARPU,
		TaskCompletionRate: row.TaskCompletionRate,
	}, nil
}

// GlobalReport returns current metrics and trends against the latest snapshot.
func (reader *Reader) GlobalReport(ctx context.Context) (GlobalReport, error) {
	current, err := reader.GlobalMetrics(ctx)
	if err != nil {
		return GlobalReport{}, err
	}
	previous, err := reader.LatestSnapshot(ctx)
	if err != nil {
		return GlobalReport{}, err
	}
	report := GlobalReport{Current: current, Previous: previous, Trends: map[string]Trend{}}
	if previous == nil {
		for _, name := range []string{"dau", "total_users", "gems_purchased"} {
			report.Trends[name] = TrendStable
		}
		return report, nil
	}
	report.Trends["dau"] = TrendOf(previous.DAU, current.DAU)
	report.Trends["total_users"] = TrendOf(previous.TotalUsers, current.TotalUsers)
	report.Trends["gems_purchased"] = TrendOf(previous.GemsPurchased, current.GemsPurchased)
	return report, nil
}

// TrendOf classifies a change beyond ±5% as up or down.
func TrendOf(previous int64, current int64) Trend {
	if previous == 0 {
		if current > 0 {
			return TrendUp
		}
		return TrendStable
	}
	change := decimal.NewFromInt(current - previous).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(previous))
	switch {
	case change.GreaterThan(decimal.NewFromInt(trendThresholdPercent)):
		return TrendUp
	case change.LessThan(decimal.NewFromInt(-trendThresholdPercent)):
		return TrendDown
	default:
		return TrendStable
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
