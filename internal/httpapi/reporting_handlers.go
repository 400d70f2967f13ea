package httpapi

import (
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/promorang/internal/reporting"
	"github.com/gin-gonic/gin"
)

const (
	defaultActivityDays = 30
	maxActivityDays     = 365
)

func (server *Server) handleLeaderboard(ctx *gin.Context) {
	limit, err := queryInt(ctx, "limit", 0)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	entries, err := server.deps.Leaderboard.Leaderboard(ctx.Request.Context(), limit)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, gin.H{"leaderboard": entries})
}

// handleRank answers anonymous and invalid sessions with a null rank.
func (server *Server) handleRank(ctx *gin.Context) {
	userID, ok := sessionOf(ctx).UserID()
	if !ok {
		respondOK(ctx, reporting.Rank{})
		return
	}
	rank, err := server.deps.Reporting.Rank(ctx.Request.Context(), userID)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, rank)
}

func (server *Server) handleUserAnalytics(ctx *gin.Context) {
	days, err := queryInt(ctx, "days", defaultActivityDays)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	if days <= 0 || days > maxActivityDays {
		server.respondFailure(ctx, fmt.Errorf("%w: days must be between 1 and %d", errInvalidBody, maxActivityDays))
		return
	}
	since := server.clock().Add(-time.Duration(days) * 24 * time.Hour).Unix()
	activity, err := server.deps.Reporting.UserActivity(ctx.Request.Context(), callerID(ctx), since)
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, activity)
}

func (server *Server) handleGlobalAnalytics(ctx *gin.Context) {
	report, err := server.deps.Reporting.GlobalReport(ctx.Request.Context())
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, report)
}

func (server *Server) handleDashboard(ctx *gin.Context) {
	dashboard, err := server.deps.Reporting.Dashboard(ctx.Request.Context())
	if err != nil {
		server.respondFailure(ctx, err)
		return
	}
	respondOK(ctx, dashboard)
}
