package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"github.com/gin-gonic/gin"
)

type route struct {
	Method      string
	Path        string
	Policy      Policy
	Description string
	handler     gin.HandlerFunc
}

func (server *Server) routeTable() []route {
	return []route{
		{http.MethodGet, "/healthz", PolicyPublic, "Liveness probe", server.handleHealth},
		{http.MethodGet, "/metrics", PolicyPublic, "Prometheus metrics", gin.WrapH(server.deps.Metrics.Handler())},
		{http.MethodGet, "/sdk/docs", PolicyPublic, "This endpoint catalog", server.handleDocs},

		{http.MethodGet, "/auth/google/url", PolicyPublic, "Google consent URL; sets the OAuth state cookie", server.handleGoogleURL},
		{http.MethodGet, "/auth/google/callback", PolicyPublic, "Completes Google sign-in and redirects to the frontend", server.handleGoogleCallback},
		{http.MethodGet, "/auth/session", PolicyRequired, "Current user", server.handleSession},
		{http.MethodPost, "/auth/logout", PolicyPublic, "Clears the session cookie", server.handleLogout},

		{http.MethodGet, "/economy/me", PolicyRequired, "Caller balance", server.handleBalance},
		{http.MethodGet, "/economy/profile", PolicyRequired, "Balance, tier and tier multiplier", server.handleProfile},
		{http.MethodPost, "/economy/convert", PolicyRequired, "Convert between currencies", server.handleConvert},
		{http.MethodGet, "/economy/history", PolicyRequired, "Ledger entries, newest first", server.handleHistory},
		{http.MethodGet, "/economy/reconcile", PolicyRequired, "Replays the ledger against the balance", server.handleReconcile},

		{http.MethodGet, "/content", PolicyPublic, "Active content listings", server.handleListContent},
		{http.MethodGet, "/content/:id", PolicyPublic, "Content detail", server.handleGetContent},
		{http.MethodPost, "/content", PolicyRequired, "Create a content listing", server.handleCreateContent},
		{http.MethodPost, "/content/buy-shares", PolicyRequired, "Buy content shares with gems; body {content_id, shares_count}", server.handleBuyShares},

		{http.MethodGet, "/drops", PolicyPublic, "Active drops before their deadline", server.handleListDrops},
		{http.MethodPost, "/drops", PolicyRequired, "Create a drop", server.handleCreateDrop},
		{http.MethodPost, "/drops/:id/apply", PolicyRequired, "Apply to a drop", server.handleApplyToDrop},
		{http.MethodGet, "/drops/applications", PolicyRequired, "Caller's drop applications", server.handleListApplications},

		{http.MethodPost, "/growth-hub/stake", PolicyRequired, "Stake gems in a channel; body {amount, channel_name}", server.handleStake},
		{http.MethodGet, "/growth-hub/stakes", PolicyRequired, "Caller's stakes", server.handleListStakes},
		{http.MethodGet, "/growth-hub/channels", PolicyPublic, "Staking channels", server.handleChannels},
		{http.MethodGet, "/growth-hub/projects", PolicyPublic, "Funding projects", server.handleListProjects},
		{http.MethodPost, "/growth-hub/projects", PolicyRequired, "Create a funding project", server.handleCreateProject},
		{http.MethodPost, "/growth-hub/projects/:id/fund", PolicyRequired, "Fund a project with gems", server.handleFundProject},

		{http.MethodGet, "/leaderboard", PolicyPublic, "Top users by composite score", server.handleLeaderboard},
		{http.MethodGet, "/leaderboard/rank", PolicyOptional, "Caller rank; null when signed out", server.handleRank},
		{http.MethodGet, "/analytics/user", PolicyRequired, "Caller activity over the last days", server.handleUserAnalytics},
		{http.MethodGet, "/analytics/global", PolicyAdmin, "Platform metrics with trends", server.handleGlobalAnalytics},

		{http.MethodGet, "/payments/packages", PolicyPublic, "Purchasable gem packages", server.handlePackages},
		{http.MethodPost, "/payments/checkout", PolicyRequired, "Stripe checkout for a gem package", server.handleCheckout},
		{http.MethodPost, "/payments/webhook", PolicyPublic, "Stripe webhook (signature verified)", server.handleStripeWebhook},
		{http.MethodPost, "/payments/withdraw", PolicyRequired, "Request a gem withdrawal", server.handleWithdraw},

		{http.MethodPost, "/admin/content/:id/moderate", PolicyAdmin, "Approve, reject or flag content", server.handleModerateContent},
		{http.MethodPost, "/admin/applications/:id/review", PolicyAdmin, "Approve or reject a drop application", server.handleReviewApplication},
		{http.MethodPost, "/admin/entries/:id/audit", PolicyAdmin, "Verify, flag or reverse a ledger entry", server.handleAuditEntry},
		{http.MethodPost, "/admin/refill", PolicyAdmin, "Credit a user", server.handleRefill},
		{http.MethodGet, "/admin/logs", PolicyAdmin, "Admin action log", server.handleAdminLogs},
		{http.MethodGet, "/admin/dashboard", PolicyAdmin, "Moderation and economy counts", server.handleDashboard},

		{http.MethodPost, "/partners/apps", PolicyRequired, "Register a partner app; the API key is shown once", server.handleRegisterApp},
		{http.MethodGet, "/partners/apps", PolicyRequired, "Caller's partner apps", server.handleListApps},
		{http.MethodGet, "/partners/apps/:id/usage", PolicyRequired, "Partner app usage", server.handleAppUsage},
		{http.MethodPost, "/partners/apps/:id/events", PolicyRequired, "Queue a webhook event", server.handleQueueEvent},
		{http.MethodGet, "/partners/validate", PolicyAPIKey, "Validates the X-API-Key header", server.handleValidateKey},

		{http.MethodGet, "/automations/jobs", PolicyAdmin, "Job states", server.handleJobs},
		{http.MethodPost, "/automations/trigger", PolicyAdmin, "Run a job now", server.handleTriggerJob},
	}
}

func (server *Server) handleHealth(ctx *gin.Context) {
	respondOK(ctx, gin.H{"status": "ok"})
}

// bindJSON decodes the body into target; an empty body leaves target untouched.
func bindJSON(ctx *gin.Context, target any) error {
	if err := ctx.ShouldBindJSON(target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

func queryInt(ctx *gin.Context, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(ctx.Query(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errInvalidBody, name)
	}
	return value, nil
}

func paging(ctx *gin.Context) (int, int, error) {
	limit, err := queryInt(ctx, "limit", 0)
	if err != nil {
		return 0, 0, err
	}
	offset, err := queryInt(ctx, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

// idempotencyKey reads the optional Idempotency-Key header.
func idempotencyKey(ctx *gin.Context) (economy.IdempotencyKey, error) {
	return economy.OptionalIdempotencyKey(ctx.GetHeader(idempotencyHeader))
}
