package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/promorang/internal/cache"
	"go.uber.org/zap"
)

const leaderboardCacheKey = "promorang:leaderboard:top"

// LeaderboardSource computes the leaderboard from the database.
type LeaderboardSource interface {
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

// CachedLeaderboard serves the top entries from a cache refreshed at most every ttl.
type CachedLeaderboard struct {
	source LeaderboardSource
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedLeaderboard wraps source with store. Cache failures fall back to source.
func NewCachedLeaderboard(source LeaderboardSource, store cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedLeaderboard {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedLeaderboard{source: source, cache: store, ttl: ttl, logger: logger}
}

// Leaderboard returns the first limit entries of the cached board.
func (leaderboard *CachedLeaderboard) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	limit = NormalizeLeaderboardLimit(limit)
	cached, err := leaderboard.cache.Get(ctx, leaderboardCacheKey)
	if err == nil {
		var entries []LeaderboardEntry
		if decodeErr := json.Unmarshal(cached, &entries); decodeErr == nil {
			return head(entries, limit), nil
		}
		leaderboard.logger.Warn("discarding undecodable leaderboard cache entry")
	} else if !errors.Is(err, cache.ErrMiss) {
		leaderboard.logger.Warn("leaderboard cache read failed", zap.Error(err))
	}
	entries, err := leaderboard.rebuild(ctx)
	if err != nil {
		return nil, err
	}
	return head(entries, limit), nil
}

// RefreshLeaderboard recomputes the board and stores it, returning the number of entries.
func (leaderboard *CachedLeaderboard) RefreshLeaderboard(ctx context.Context) (int, error) {
	entries, err := leaderboard.rebuild(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (leaderboard *CachedLeaderboard) rebuild(ctx context.Context) ([]LeaderboardEntry, error) {
	entries, err := leaderboard.source.Leaderboard(ctx, maxLeaderboardLimit)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	if err := leaderboard.cache.Set(ctx, leaderboardCacheKey, encoded, leaderboard.ttl); err != nil {
		leaderboard.logger.Warn("leaderboard cache write failed", zap.Error(err))
	}
	return entries, nil
}

func head(entries []LeaderboardEntry, limit int) []LeaderboardEntry {
	if len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
