// Package reporting computes leaderboard, analytics and dashboard read models with plain SQL.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var ErrInvalidServiceConfig = errors.New("invalid reporting config")

const (
	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 100
	secondsPerDay           = 24 * 60 * 60
	trendThresholdPercent   = 5
)

// gemUnitPrice is the revenue attributed to one purchased gem when computing ARPU.
var gemUnitPrice = decimal.RequireFromString("0.10")

// Reader runs read-only queries against the shared database.
type Reader struct {
	db      *sqlx.DB
	weights []weightedColumn
	nowFn   func() int64
	newID   func() string
}

type weightedColumn struct {
	column string
	weight decimal.Decimal
}

// NewReader builds a Reader; leaderboard weights come from rules.
func NewReader(db *sqlx.DB, rules economy.Rules, now func() int64, newID func() string) (*Reader, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database is nil", ErrInvalidServiceConfig)
	}
	if now == nil || newID == nil {
		return nil, fmt.Errorf("%w: clock and id generator are required", ErrInvalidServiceConfig)
	}
	weights := make([]weightedColumn, 0, len(economy.Currencies()))
	for _, currency := range economy.Currencies() {
		weights = append(weights, weightedColumn{column: currency.String(), weight: rules.LeaderboardWeight(currency)})
	}
	return &Reader{db: db, weights: weights, nowFn: now, newID: newID}, nil
}

// NormalizeLeaderboardLimit clamps limit to 1..100, defaulting to 50.
func NormalizeLeaderboardLimit(limit int) int {
	if limit <= 0 {
		return defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		return maxLeaderboardLimit
	}
	return limit
}

// scoreExpression returns the weighted score over balances alias and its bind args.
func (reader *Reader) scoreExpression(alias string) (string, []any) {
	terms := make([]string, 0, len(reader.weights))
	args := make([]any, 0, len(reader.weights))
	for _, weighted := range reader.weights {
		terms = append(terms, fmt.Sprintf("COALESCE(%s.%s, 0) * CAST(? AS DOUBLE PRECISION)", alias, weighted.column))
		args = append(args, weighted.weight.InexactFloat64())
	}
	return "(" + strings.Join(terms, " + ") + ")", args
}

// score computes the displayed score exactly, rounded to two decimals.
func (reader *Reader) score(balance economy.Balance) decimal.Decimal {
	total := decimal.Zero
	for _, weighted := range reader.weights {
		currency, _ := economy.ParseCurrency(weighted.column)
		total = total.Add(weighted.weight.Mul(decimal.NewFromInt(balance.Amount(currency))))
	}
	return total.Round(2)
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Rank        int             `json:"rank"`
	UserID      string          `json:"user_id"`
	DisplayName string          `json:"display_name"`
	AvatarURL   string          `json:"avatar_url,omitempty"`
	Tier        string          `json:"tier"`
	Balance     economy.Balance `json:"balance"`
	Score       decimal.Decimal `json:"score"`
}

type leaderboardRow struct {
	UserID      string `db:"user_id"`
	DisplayName string `db:"display_name"`
	AvatarURL   string `db:"avatar_url"`
	Tier        string `db:"tier"`
	Points      int64  `db:"points"`
	Keys        int64  `db:"keys"`
	Gems        int64  `db:"gems"`
	Gold        int64  `db:"gold"`
}

// Leaderboard returns the top users by weighted score; ties go to the earliest account.
func (reader *Reader) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	limit = NormalizeLeaderboardLimit(limit)
	expression, args := reader.scoreExpression("b")
	query := `SELECT u.user_id, u.display_name, u.avatar_url, u.tier,
		COALESCE(b.points, 0) AS points, COALESCE(b.keys, 0) AS keys,
		COALESCE(b.gems, 0) AS gems, COALESCE(b.gold, 0) AS gold
		FROM users u
		LEFT JOIN balances b ON b.user_id = u.user_id
		ORDER BY ` + expression + ` DESC, u.created_at ASC, u.user_id ASC
		LIMIT ?`
	var rows []leaderboardRow
	if err := reader.db.SelectContext(ctx, &rows, reader.db.Rebind(query), append(args, limit)...); err != nil {
		return nil, fmt.Errorf("reporting.leaderboard: %w", err)
	}
	entries := make([]LeaderboardEntry, 0, len(rows))
	for index, row := range rows {
		balance := economy.Balance{UserID: row.UserID, Points: row.Points, Keys: row.Keys, Gems: row.Gems, Gold: row.Gold}
		entries = append(entries, LeaderboardEntry{
			Rank:        index + 1,
			UserID:      row.UserID,
			DisplayName: row.DisplayName,
			AvatarURL:   row.AvatarURL,
			Tier:        row.Tier,
			Balance:     balance,
			Score:       reader.score(balance),
		})
	}
	return entries, nil
}

// Rank is a user's leaderboard position. Rank is nil for unknown users.
type Rank struct {
	Rank       *int64           `json:"rank"`
	TotalUsers int64            `json:"total_users"`
	Score      *decimal.Decimal `json:"score,omitempty"`
}

// Rank counts users with a strictly higher score.
func (reader *Reader) Rank(ctx context.Context, userID economy.UserID) (Rank, error) {
	var row leaderboardRow
	err := reader.db.GetContext(ctx, &row, reader.db.Rebind(`SELECT u.user_id, u.display_name, u.avatar_url, u.tier,
		COALESCE(b.points, 0) AS points, COALESCE(b.keys, 0) AS keys,
		COALESCE(b.gems, 0) AS gems, COALESCE(b.gold, 0) AS gold
		FROM users u
		LEFT JOIN balances b ON b.user_id = u.user_id
		WHERE u.user_id = ?`), userID.String())
	if isNoRows(err) {
		return Rank{}, nil
	}
	if err != nil {
		return Rank{}, fmt.Errorf("reporting.rank: %w", err)
	}

	outer, outerArgs := reader.scoreExpression("b")
	inner, innerArgs := reader.scoreExpression("mine")
	query := `SELECT COUNT(*) FROM users u
		LEFT JOIN balances b ON b.user_id = u.user_id
		WHERE ` + outer + ` > (SELECT ` + inner + ` FROM users me LEFT JOIN balances mine ON mine.user_id = me.user_id WHERE me.user_id = ?)`
	args := append(append(outerArgs, innerArgs...), userID.String())
	var higher int64
	if err := reader.db.GetContext(ctx, &higher, reader.db.Rebind(query), args...); err != nil {
		return Rank{}, fmt.Errorf("reporting.rank: %w", err)
	}
	var total int64
	if err := reader.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return Rank{}, fmt.Errorf("reporting.rank: %w", err)
	}
	rank := higher + 1
	score := reader.score(economy.Balance{Points: row.Points, Keys: row.Keys, Gems: row.Gems, Gold: row.Gold})
	return Rank{Rank: &rank, TotalUsers: total, Score: &score}, nil
}

// UserActivity summarizes one user's recent economy activity.
type UserActivity struct {
	UserID               string         `json:"user_id"`
	SinceUnixUTC         int64          `json:"since_unix_utc"`
	Entries              int64          `json:"entries"`
	Earned               economy.Deltas `json:"earned"`
	Spent                economy.Deltas `json:"spent"`
	ApplicationsSent     int64          `json:"applications_sent"`
	ApplicationsApproved int64          `json:"applications_approved"`
	SharesBought         int64          `json:"shares_bought"`
	ActiveStakes         int64          `json:"active_stakes"`
	StakedGems           int64          `json:"staked_gems"`
	Balance              economy.Balance `json:"balance"`
}

type activityRow struct {
	Entries      int64 `db:"entries"`
	EarnedPoints int64 `db:"earned_points"`
	EarnedKeys   int64 `db:"earned_keys"`
	EarnedGems   int64 `db:"earned_gems"`
	EarnedGold   int64 `db:"earned_gold"`
	SpentPoints  int64 `db:"spent_points"`
	SpentKeys    int64 `db:"spent_keys"`
	SpentGems    int64 `db:"spent_gems"`
	SpentGold    int64 `db:"spent_gold"`
}

type applicationCounts struct {
	Sent     int64 `db:"sent"`
	Approved int64 `db:"approved"`
}

type stakeTotals struct {
	Count  int64 `db:"stakes"`
	Amount int64 `db:"amount"`
}

// UserActivity aggregates ledger, drop, share and stake activity since sinceUnixUTC.
func (reader *Reader) UserActivity(ctx context.Context, userID economy.UserID, sinceUnixUTC int64) (UserActivity, error) {
	since := unixToTime(sinceUnixUTC)
	activity := UserActivity{UserID: userID.String(), SinceUnixUTC: sinceUnixUTC}

	var ledger activityRow
	if err := reader.db.GetContext(ctx, &ledger, reader.db.Rebind(`SELECT COUNT(*) AS entries,
		COALESCE(SUM(CASE WHEN points_delta > 0 THEN points_delta ELSE 0 END), 0) AS earned_points,
		COALESCE(SUM(CASE WHEN keys_delta > 0 THEN keys_delta ELSE 0 END), 0) AS earned_keys,
		COALESCE(SUM(CASE WHEN gems_delta > 0 THEN gems_delta ELSE 0 END), 0) AS earned_gems,
		COALESCE(SUM(CASE WHEN gold_delta > 0 THEN gold_delta ELSE 0 END), 0) AS earned_gold,
		COALESCE(SUM(CASE WHEN points_delta < 0 THEN -points_delta ELSE 0 END), 0) AS spent_points,
		COALESCE(SUM(CASE WHEN keys_delta < 0 THEN -keys_delta ELSE 0 END), 0) AS spent_keys,
		COALESCE(SUM(CASE WHEN gems_delta < 0 THEN -gems_delta ELSE 0 END), 0) AS spent_gems,
		COALESCE(SUM(CASE WHEN gold_delta < 0 THEN -gold_delta ELSE 0 END), 0) AS spent_gold
		FROM ledger_entries WHERE user_id = ? AND created_at >= ?`), userID.String(), since); err != nil {
		return UserActivity{}, fmt.Errorf("reporting.activity.ledger: %w", err)
	}
	activity.Entries = ledger.Entries
	activity.Earned = economy.Deltas{Points: ledger.EarnedPoints, Keys: ledger.EarnedKeys, Gems: ledger.EarnedGems, Gold: ledger.EarnedGold}
	activity.Spent = economy.Deltas{Points: ledger.SpentPoints, Keys: ledger.SpentKeys, Gems: ledger.SpentGems, Gold: ledger.SpentGold}

	var applications applicationCounts
	if err := reader.db.GetContext(ctx, &applications, reader.db.Rebind(`SELECT COUNT(*) AS sent,
		COALESCE(SUM(CASE WHEN status = 'approved' THEN 1 ELSE 0 END), 0) AS approved
		FROM drop_applications WHERE user_id = ? AND created_at >= ?`), userID.String(), since); err != nil {
		return UserActivity{}, fmt.Errorf("reporting.activity.applications: %w", err)
	}
	activity.ApplicationsSent = applications.Sent
	activity.ApplicationsApproved = applications.Approved

	if err := reader.db.GetContext(ctx, &activity.SharesBought, reader.db.Rebind(`SELECT COALESCE(SUM(shares), 0)
		FROM share_purchases WHERE buyer_id = ? AND created_at >= ?`), userID.String(), since); err != nil {
		return UserActivity{}, fmt.Errorf("reporting.activity.shares: %w", err)
	}

	var stakes stakeTotals
	if err := reader.db.GetContext(ctx, &stakes, reader.db.Rebind(`SELECT COUNT(*) AS stakes, COALESCE(SUM(amount), 0) AS amount
		FROM stakes WHERE user_id = ? AND status = 'active'`), userID.String()); err != nil {
		return UserActivity{}, fmt.Errorf("reporting.activity.stakes: %w", err)
	}
	activity.ActiveStakes = stakes.Count
	activity.StakedGems = stakes.Amount

	var balance leaderboardRow
	err := reader.db.GetContext(ctx, &balance, reader.db.Rebind(`SELECT user_id, '' AS display_name, '' AS avatar_url, '' AS tier,
		points, keys, gems, gold FROM balances WHERE user_id = ?`), userID.String())
	if err != nil && !isNoRows(err) {
		return UserActivity{}, fmt.Errorf("reporting.activity.balance: %w", err)
	}
	activity.Balance = economy.Balance{UserID: userID.String(), Points: balance.Points, Keys: balance.Keys, Gems: balance.Gems, Gold: balance.Gold}
	return activity, nil
}

func unixToTime(unixUTC int64) time.Time {
	return time.Unix(unixUTC, 0).UTC()
}
