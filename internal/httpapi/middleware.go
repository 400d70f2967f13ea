package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/promorang/internal/partners"
	"github.com/MarkoPoloResearchLab/promorang/internal/session"
	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	sessionContextKey  = "promorang_session"
	userContextKey     = "promorang_user"
	partnerContextKey  = "promorang_partner_app"
	idempotencyHeader  = "Idempotency-Key"
	apiKeyHeader       = "X-API-Key"
	visitorIdleTimeout = 10 * time.Minute
	sweepInterval      = time.Minute
)

// Policy is the access rule a route declares.
type Policy string

const (
	PolicyPublic   Policy = "public"
	PolicyOptional Policy = "optional"
	PolicyRequired Policy = "required"
	PolicyAdmin    Policy = "admin"
	PolicyAPIKey   Policy = "api_key"
)

// resolveSession binds the tagged session result for every request.
func (server *Server) resolveSession() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		result := server.deps.Sessions.FromRequest(ctx.Request)
		if result.State() == session.StateInvalid {
			server.logger.Debug("invalid session", zap.String("reason", result.Reason()))
		}
		ctx.Set(sessionContextKey, result)
		ctx.Next()
	}
}

func sessionOf(ctx *gin.Context) session.Result {
	value, ok := ctx.Get(sessionContextKey)
	if !ok {
		return session.Anonymous()
	}
	result, ok := value.(session.Result)
	if !ok {
		return session.Anonymous()
	}
	return result
}

// callerID returns the authenticated user; only valid behind PolicyRequired or PolicyAdmin.
func callerID(ctx *gin.Context) economy.UserID {
	userID, _ := sessionOf(ctx).UserID()
	return userID
}

func (server *Server) policyHandlers(policy Policy) []gin.HandlerFunc {
	switch policy {
	case PolicyRequired:
		return []gin.HandlerFunc{server.requireSession()}
	case PolicyAdmin:
		return []gin.HandlerFunc{server.requireSession(), server.requireAdmin()}
	case PolicyAPIKey:
		return []gin.HandlerFunc{server.requireAPIKey()}
	default:
		return nil
	}
}

func (server *Server) requireSession() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		result := sessionOf(ctx)
		switch result.State() {
		case session.StateAuthenticated:
			ctx.Next()
		case session.StateInvalid:
			respondError(ctx, http.StatusUnauthorized, codeUnauthorized, "invalid session")
		default:
			respondError(ctx, http.StatusUnauthorized, codeUnauthorized, "authentication required")
		}
	}
}

func (server *Server) requireAdmin() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		user, err := server.deps.Economy.User(ctx.Request.Context(), callerID(ctx))
		if errors.Is(err, economy.ErrUserNotFound) {
			respondError(ctx, http.StatusUnauthorized, codeUnauthorized, "unknown user")
			return
		}
		if err != nil {
			server.respondFailure(ctx, err)
			return
		}
		if !user.IsAdmin() {
			respondError(ctx, http.StatusForbidden, codeForbidden, "admin role required")
			return
		}
		ctx.Set(userContextKey, user)
		ctx.Next()
	}
}

// requireAPIKey authenticates a partner app and records the call against it.
func (server *Server) requireAPIKey() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		rawKey := ctx.GetHeader(apiKeyHeader)
		if rawKey == "" {
			respondError(ctx, http.StatusUnauthorized, codeUnauthorized, "missing api key")
			return
		}
		app, err := server.deps.Partners.Authenticate(ctx.Request.Context(), rawKey)
		if err != nil {
			server.respondFailure(ctx, err)
			return
		}
		if err := server.deps.Partners.RecordUsage(ctx.Request.Context(), app.AppID, ctx.FullPath()); err != nil {
			server.logger.Warn("partner usage not recorded", zap.String("app_id", app.AppID), zap.Error(err))
		}
		ctx.Set(partnerContextKey, app)
		ctx.Next()
	}
}

func partnerOf(ctx *gin.Context) (partners.App, bool) {
	value, ok := ctx.Get(partnerContextKey)
	if !ok {
		return partners.App{}, false
	}
	app, ok := value.(partners.App)
	return app, ok
}

func (server *Server) requestTimeout() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), server.cfg.RequestTimeout)
		defer cancel()
		ctx.Request = ctx.Request.WithContext(requestCtx)
		ctx.Next()
	}
}

// rateLimit applies one token bucket per caller: the user id when authenticated, the client IP otherwise.
func (server *Server) rateLimit() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method == http.MethodOptions {
			ctx.Next()
			return
		}
		key, authenticated := "ip:"+ctx.ClientIP(), false
		if userID, ok := sessionOf(ctx).UserID(); ok {
			key, authenticated = "user:"+userID.String(), true
		}
		if !server.limiter.allow(key, authenticated) {
			server.logger.Warn("rate limit exceeded", zap.String("key", key), zap.String("path", ctx.Request.URL.Path))
			ctx.Header("Retry-After", strconv.Itoa(int(server.limiter.retryAfter(authenticated).Seconds())))
			respondError(ctx, http.StatusTooManyRequests, codeRateLimited, "too many requests")
			return
		}
		ctx.Next()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	mu            sync.Mutex
	visitors      map[string]*visitor
	authenticated int
	anonymous     int
	clock         func() time.Time
}

func newRateLimiter(authenticatedPerMinute int, anonymousPerMinute int, clock func() time.Time) *rateLimiter {
	return &rateLimiter{
		visitors:      make(map[string]*visitor),
		authenticated: authenticatedPerMinute,
		anonymous:     anonymousPerMinute,
		clock:         clock,
	}
}

func perMinute(requests int) rate.Limit {
	return rate.Limit(float64(requests) / time.Minute.Seconds())
}

func (limiter *rateLimiter) allow(key string, authenticated bool) bool {
	now := limiter.clock()
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	entry, ok := limiter.visitors[key]
	if !ok {
		requests := limiter.anonymous
		if authenticated {
			requests = limiter.authenticated
		}
		entry = &visitor{limiter: rate.NewLimiter(perMinute(requests), requests)}
		limiter.visitors[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (limiter *rateLimiter) retryAfter(authenticated bool) time.Duration {
	requests := limiter.anonymous
	if authenticated {
		requests = limiter.authenticated
	}
	interval := time.Minute / time.Duration(requests)
	if interval < time.Second {
		return time.Second
	}
	return interval
}

// sweep drops buckets idle for longer than visitorIdleTimeout.
func (limiter *rateLimiter) sweep() int {
	cutoff := limiter.clock().Add(-visitorIdleTimeout)
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	removed := 0
	for key, entry := range limiter.visitors {
		if entry.lastSeen.Before(cutoff) {
			delete(limiter.visitors, key)
			removed++
		}
	}
	return removed
}

func (limiter *rateLimiter) startSweeper(ctx context.Context) func() {
	sweepCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				limiter.sweep()
			}
		}
	}()
	return cancel
}
