// Package httpapi exposes the rewards economy over HTTP with a uniform JSON envelope.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/promorang/internal/admin"
	"github.com/MarkoPoloResearchLab/promorang/internal/automation"
	"github.com/MarkoPoloResearchLab/promorang/internal/cache"
	"github.com/MarkoPoloResearchLab/promorang/internal/catalog"
	"github.com/MarkoPoloResearchLab/promorang/internal/metrics"
	"github.com/MarkoPoloResearchLab/promorang/internal/oauth"
	"github.com/MarkoPoloResearchLab/promorang/internal/partners"
	"github.com/MarkoPoloResearchLab/promorang/internal/payments"
	"github.com/MarkoPoloResearchLab/promorang/internal/reporting"
	"github.com/MarkoPoloResearchLab/promorang/internal/session"
	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultRequestTimeout  = 15 * time.Second
	defaultExternalTimeout = 10 * time.Second
	defaultAuthenticated   = 100
	defaultAnonymous       = 20
	shutdownTimeout        = 5 * time.Second
)

var ErrInvalidServerConfig = errors.New("invalid http server config")

// Config holds the HTTP-facing settings.
type Config struct {
	ListenAddr      string
	AllowedOrigins  []string
	FrontendURL     string
	SecureCookies   bool
	RequestTimeout  time.Duration
	ExternalTimeout time.Duration
	// AdminUserIDs are promoted to the admin role when they sign in. Entries may be user ids, provider subjects or emails.
	AdminUserIDs []string
	// Requests per minute per caller.
	RateLimitAuthenticated int
	RateLimitAnonymous     int
}

// Dependencies are the services behind the routes. Payments and OAuth are optional.
type Dependencies struct {
	Economy     *economy.Service
	Catalog     *catalog.Service
	Reporting   *reporting.Reader
	Leaderboard *reporting.CachedLeaderboard
	Admin       *admin.Service
	Partners    *partners.Service
	Payments    *payments.Service
	OAuth       *oauth.Provider
	Sessions    *session.Manager
	Automation  *automation.Runner
	Metrics     *metrics.Registry
	Logger      *zap.Logger
	Clock       func() time.Time
}

// Server owns the router and its handlers.
type Server struct {
	cfg     Config
	deps    Dependencies
	logger  *zap.Logger
	clock   func() time.Time
	limiter *rateLimiter
	admins  map[string]struct{}
	routes  []route
	router  *gin.Engine
}

// New validates deps and builds the router.
func New(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Economy == nil || deps.Catalog == nil || deps.Reporting == nil || deps.Admin == nil ||
		deps.Partners == nil || deps.Sessions == nil || deps.Automation == nil || deps.Metrics == nil {
		return nil, fmt.Errorf("%w: missing service dependency", ErrInvalidServerConfig)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	if deps.Leaderboard == nil {
		deps.Leaderboard = reporting.NewCachedLeaderboard(deps.Reporting, cache.NewMemory(deps.Clock), 0, deps.Logger)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ExternalTimeout <= 0 {
		cfg.ExternalTimeout = defaultExternalTimeout
	}
	if cfg.RateLimitAuthenticated <= 0 {
		cfg.RateLimitAuthenticated = defaultAuthenticated
	}
	if cfg.RateLimitAnonymous <= 0 {
		cfg.RateLimitAnonymous = defaultAnonymous
	}
	cfg.FrontendURL = strings.TrimRight(strings.TrimSpace(cfg.FrontendURL), "/")
	if len(cfg.AllowedOrigins) == 0 {
		if cfg.FrontendURL == "" {
			return nil, fmt.Errorf("%w: allowed origins or frontend url required", ErrInvalidServerConfig)
		}
		cfg.AllowedOrigins = []string{cfg.FrontendURL}
	}

	admins := make(map[string]struct{}, len(cfg.AdminUserIDs))
	for _, id := range cfg.AdminUserIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			admins[strings.ToLower(trimmed)] = struct{}{}
		}
	}

	server := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  deps.Logger,
		clock:   deps.Clock,
		limiter: newRateLimiter(cfg.RateLimitAuthenticated, cfg.RateLimitAnonymous, deps.Clock),
		admins:  admins,
	}
	server.routes = server.routeTable()
	server.router = server.setupRouter()
	return server, nil
}

// Handler returns the gin engine.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              server.cfg.ListenAddr,
		Handler:           server.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopSweep := server.limiter.startSweeper(ctx)
	defer stopSweep()

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("promorang api listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (server *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(server.deps.Metrics.GinMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization", idempotencyHeader, apiKeyHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(server.resolveSession())
	router.Use(server.rateLimit())
	router.Use(server.requestTimeout())

	for _, registered := range server.routes {
		handlers := append(server.policyHandlers(registered.Policy), registered.handler)
		router.Handle(registered.Method, registered.Path, handlers...)
	}
	router.NoRoute(func(ctx *gin.Context) {
		respondError(ctx, http.StatusNotFound, codeNotFound, "route not found")
	})
	return router
}
