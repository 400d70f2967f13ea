package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/promorang/internal/admin"
	"github.com/MarkoPoloResearchLab/promorang/internal/automation"
	"github.com/MarkoPoloResearchLab/promorang/internal/cache"
	"github.com/MarkoPoloResearchLab/promorang/internal/catalog"
	"github.com/MarkoPoloResearchLab/promorang/internal/config"
	"github.com/MarkoPoloResearchLab/promorang/internal/httpapi"
	"github.com/MarkoPoloResearchLab/promorang/internal/metrics"
	"github.com/MarkoPoloResearchLab/promorang/internal/oauth"
	"github.com/MarkoPoloResearchLab/promorang/internal/partners"
	"github.com/MarkoPoloResearchLab/promorang/internal/payments"
	"github.com/MarkoPoloResearchLab/promorang/internal/reporting"
	"github.com/MarkoPoloResearchLab/promorang/internal/retry"
	"github.com/MarkoPoloResearchLab/promorang/internal/session"
	"github.com/MarkoPoloResearchLab/promorang/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/promorang/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	leaderboardTTL     = time.Minute
	automationStaleAge = time.Hour
)

// application is the fully wired service graph behind promorangd.
type application struct {
	server  *httpapi.Server
	runner  *automation.Runner
	logger  *zap.Logger
	closers []io.Closer
}

func (app *application) close() {
	for index := len(app.closers) - 1; index >= 0; index-- {
		if err := app.closers[index].Close(); err != nil {
			app.logger.Warn("close failed", zap.Error(err))
		}
	}
}

type closerFunc func() error

func (fn closerFunc) Close() error { return fn() }

func buildApplication(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *application, err error) {
	app := &application{logger: logger}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	app.closers = append(app.closers, closerFunc(db.close))
	if err := prepareSchema(db, cfg.AutoMigrate, logger); err != nil {
		return nil, err
	}

	rules := economy.DefaultRules()
	if strings.TrimSpace(cfg.RulesFile) != "" {
		if rules, err = economy.LoadRules(cfg.RulesFile); err != nil {
			return nil, fmt.Errorf("rules: %w", err)
		}
	}
	logger.Info("economy rules loaded", zap.String("version", rules.Version))

	clock := func() time.Time { return time.Now().UTC() }
	unixClock := func() int64 { return clock().Unix() }
	registry := metrics.NewRegistry()
	store := gormstore.New(db.gorm)

	economyService, err := economy.NewService(store, rules, unixClock,
		economy.WithOperationLogger(metrics.NewOperationLogger(logger, registry)))
	if err != nil {
		return nil, fmt.Errorf("economy service init: %w", err)
	}
	catalogService, err := catalog.NewService(store, rules, unixClock)
	if err != nil {
		return nil, fmt.Errorf("catalog service init: %w", err)
	}
	reader, err := reporting.NewReader(db.reader(), rules, unixClock, uuid.NewString)
	if err != nil {
		return nil, fmt.Errorf("reporting init: %w", err)
	}
	leaderboardCache, err := openCache(ctx, cfg.RedisURL, clock, logger)
	if err != nil {
		return nil, err
	}
	if closer, ok := leaderboardCache.(io.Closer); ok {
		app.closers = append(app.closers, closer)
	}
	leaderboard := reporting.NewCachedLeaderboard(reader, leaderboardCache, leaderboardTTL, logger)
	adminService, err := admin.NewService(store, economyService, unixClock, logger)
	if err != nil {
		return nil, fmt.Errorf("admin service init: %w", err)
	}
	partnerService, err := partners.NewService(store, unixClock, cfg.ExternalTimeout,
		partners.WithRetrier(retry.New()),
		partners.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("partner service init: %w", err)
	}
	sessions, err := session.NewManager(session.Config{
		SigningKey: cfg.SessionSigningKey,
		CookieName: cfg.SessionCookieName,
		TTL:        cfg.SessionTTL,
		Clock:      clock,
	})
	if err != nil {
		return nil, fmt.Errorf("session manager init: %w", err)
	}

	var jobStore automation.Store = store
	if db.driver == driverPostgres {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("job store pool: %w", err)
		}
		app.closers = append(app.closers, closerFunc(func() error {
			pool.Close()
			return nil
		}))
		jobStore = pgstore.New(pool)
	}
	runner, err := automation.NewRunner(jobStore, clock, automationStaleAge, logger)
	if err != nil {
		return nil, fmt.Errorf("automation init: %w", err)
	}
	jobs := map[string]automation.Job{
		automation.JobStakingRewards:    automation.BatchJob(economyService.DistributeStakingRewards, automation.StakingBatchSize),
		automation.JobAnalyticsSnapshot: automation.SummaryJob(reader.TakeSnapshot),
		automation.JobLeaderboard:       automation.CountJob("entries", leaderboard.RefreshLeaderboard),
		automation.JobPartnerWebhooks:   automation.BatchJob(partnerService.DeliverPending, automation.WebhookBatchSize),
	}
	for name, job := range jobs {
		if err := runner.Register(name, job); err != nil {
			return nil, err
		}
	}
	runner.Observe(func(result automation.RunResult) {
		registry.ObserveJob(result.Name, string(result.Status))
	})
	app.runner = runner

	deps := httpapi.Dependencies{
		Economy:     economyService,
		Catalog:     catalogService,
		Reporting:   reader,
		Leaderboard: leaderboard,
		Admin:       adminService,
		Partners:    partnerService,
		Sessions:    sessions,
		Automation:  runner,
		Metrics:     registry,
		Logger:      logger,
		Clock:       clock,
	}
	if cfg.StripeEnabled() {
		client := payments.NewClient(payments.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			Packages:      cfg.StripeGemPackages,
			SuccessURL:    cfg.FrontendURL + "/payments/success",
			CancelURL:     cfg.FrontendURL + "/payments/cancel",
			Timeout:       cfg.ExternalTimeout,
			Retrier:       retry.New(),
			Clock:         clock,
		})
		if deps.Payments, err = payments.NewService(client, economyService, logger); err != nil {
			return nil, fmt.Errorf("payments init: %w", err)
		}
	} else {
		logger.Info("stripe not configured; payment routes disabled")
	}
	if cfg.GoogleEnabled() {
		deps.OAuth, err = oauth.NewProvider(oauth.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Timeout:      cfg.ExternalTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("oauth init: %w", err)
		}
	} else {
		logger.Info("google oauth not configured; sign-in routes disabled")
	}

	app.server, err = httpapi.New(httpapi.Config{
		ListenAddr:             cfg.ListenAddr,
		AllowedOrigins:         cfg.AllowedOrigins,
		FrontendURL:            cfg.FrontendURL,
		SecureCookies:          cfg.SecureCookies,
		RequestTimeout:         cfg.RequestTimeout,
		ExternalTimeout:        cfg.ExternalTimeout,
		AdminUserIDs:           cfg.AdminUserIDs,
		RateLimitAuthenticated: cfg.RateLimitAuthenticated,
		RateLimitAnonymous:     cfg.RateLimitAnonymous,
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("http server init: %w", err)
	}
	return app, nil
}

// openCache returns the leaderboard cache. An unreachable Redis is logged and
// kept; reads fall back to the database until it recovers.
func openCache(ctx context.Context, redisURL string, clock func() time.Time, logger *zap.Logger) (cache.Cache, error) {
	store, err := cache.New(redisURL, clock)
	if err != nil {
		return nil, fmt.Errorf("cache init: %w", err)
	}
	if redisCache, ok := store.(*cache.Redis); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := redisCache.Ping(pingCtx); err != nil {
			logger.Warn("redis unavailable", zap.Error(err))
		}
	}
	return store, nil
}

func runServer(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	if cfg.EnableScheduler {
		scheduler, err := automation.NewScheduler(app.runner, automation.DefaultSpecs(), logger)
		if err != nil {
			return fmt.Errorf("scheduler init: %w", err)
		}
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	logger.Info("promorangd starting", zap.String("listen_addr", cfg.ListenAddr))
	if err := app.server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("promorangd stopped")
	return nil
}
