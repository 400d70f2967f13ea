package reporting

import (
	"context"
	"fmt"
)

// ActionCount counts admin actions of one kind.
type ActionCount struct {
	Action string `json:"action" db:"action"`
	Count  int64  `json:"count" db:"count"`
}

// Dashboard is the admin overview.
type Dashboard struct {
	TotalUsers          int64         `json:"total_users"`
	FlaggedContent      int64         `json:"flagged_content"`
	PendingApplications int64         `json:"pending_applications"`
	ActiveDrops         int64         `json:"active_drops"`
	ActiveStakes        int64         `json:"active_stakes"`
	PendingWithdrawals  int64         `json:"pending_withdrawals"`
	RecentActions       []ActionCount `json:"recent_actions"`
}

// Dashboard counts moderation and economy work for admins; recent actions cover the last 7 days.
func (reader *Reader) Dashboard(ctx context.Context) (Dashboard, error) {
	var dashboard Dashboard
	counters := []struct {
		name   string
		query  string
		target *int64
	}{
		{name: "users", query: `SELECT COUNT(*) FROM users`, target: &dashboard.TotalUsers},
		{name: "flagged_content", query: `SELECT COUNT(*) FROM contents WHERE status = 'flagged'`, target: &dashboard.FlaggedContent},
		{name: "pending_applications", query: `SELECT COUNT(*) FROM drop_applications WHERE status = 'pending'`, target: &dashboard.PendingApplications},
		{name: "active_drops", query: `SELECT COUNT(*) FROM drops WHERE status = 'active'`, target: &dashboard.ActiveDrops},
		{name: "active_stakes", query: `SELECT COUNT(*) FROM stakes WHERE status = 'active'`, target: &dashboard.ActiveStakes},
		{name: "pending_withdrawals", query: `SELECT COUNT(*) FROM payments WHERE kind = 'withdrawal' AND status = 'pending'`, target: &dashboard.PendingWithdrawals},
	}
	for _, counter := range counters {
		if err := reader.db.GetContext(ctx, counter.target, counter.query); err != nil {
			return Dashboard{}, fmt.Errorf("reporting.dashboard.%s: %w", counter.name, err)
		}
	}
	since := unixToTime(reader.nowFn() - 7*secondsPerDay)
	dashboard.RecentActions = make([]ActionCount, 0)
	if err := reader.db.SelectContext(ctx, &dashboard.RecentActions, reader.db.Rebind(`SELECT action, COUNT(*) AS count
		FROM admin_logs WHERE created_at >= ? GROUP BY action ORDER BY action`), since); err != nil {
		return Dashboard{}, fmt.Errorf("reporting.dashboard.actions: %w", err)
	}
	return dashboard, nil
}
