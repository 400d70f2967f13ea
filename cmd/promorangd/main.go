package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarkoPoloResearchLab/promorang/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	envPrefix = "PROMORANG"

	flagEnvFile                = "env-file"
	flagDatabaseURL            = "database-url"
	flagListenAddr             = "listen-addr"
	flagAllowedOrigins         = "allowed-origins"
	flagSessionSigningKey      = "session-signing-key"
	flagSessionCookieName      = "session-cookie-name"
	flagSessionTTL             = "session-ttl"
	flagSecureCookies          = "secure-cookies"
	flagFrontendURL            = "frontend-url"
	flagGoogleClientID         = "google-client-id"
	flagGoogleClientSecret     = "google-client-secret"
	flagGoogleRedirectURL      = "google-redirect-url"
	flagStripeSecretKey        = "stripe-secret-key"
	flagStripeWebhookSecret    = "stripe-webhook-secret"
	flagStripeGemPackages      = "stripe-gem-packages"
	flagRulesFile              = "rules-file"
	flagRedisURL               = "redis-url"
	flagEnableScheduler        = "enable-scheduler"
	flagRequestTimeout         = "request-timeout"
	flagExternalTimeout        = "external-timeout"
	flagAdminUserIDs           = "admin-user-ids"
	flagRateLimitAuthenticated = "rate-limit-authenticated"
	flagRateLimitAnonymous     = "rate-limit-anonymous"
	flagAutoMigrate            = "auto-migrate"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "promorangd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:           "promorangd",
		Short:         "Promorang rewards backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagEnvFile, ".env", "optional dotenv file loaded before reading the environment")
	flags.String(flagDatabaseURL, "", "postgres:// URL or sqlite path (default sqlite:///tmp/promorang.db)")
	flags.String(flagListenAddr, "", "HTTP listen address (default :8080)")
	flags.String(flagAllowedOrigins, "", "comma-separated CORS origins (default frontend url)")
	flags.String(flagSessionSigningKey, "", "HS256 session signing key, at least 32 bytes (required)")
	flags.String(flagSessionCookieName, "", "session cookie name (default pr_token)")
	flags.Duration(flagSessionTTL, 0, "session lifetime (default 168h)")
	flags.Bool(flagSecureCookies, false, "mark session and state cookies Secure")
	flags.String(flagFrontendURL, "", "frontend base URL used for redirects")
	flags.String(flagGoogleClientID, "", "Google OAuth client id")
	flags.String(flagGoogleClientSecret, "", "Google OAuth client secret")
	flags.String(flagGoogleRedirectURL, "", "Google OAuth redirect URL")
	flags.String(flagStripeSecretKey, "", "Stripe secret key")
	flags.String(flagStripeWebhookSecret, "", "Stripe webhook signing secret")
	flags.String(flagStripeGemPackages, "", "gem packages as <gems>=<price id>, comma-separated")
	flags.String(flagRulesFile, "", "YAML economy rules file (default built-in rules)")
	flags.String(flagRedisURL, "", "Redis URL for the leaderboard cache (default in-memory)")
	flags.Bool(flagEnableScheduler, false, "run automation jobs on their cron schedules")
	flags.Duration(flagRequestTimeout, 0, "per-request deadline (default 15s)")
	flags.Duration(flagExternalTimeout, 0, "deadline for Google, Stripe and partner webhook calls (default 10s)")
	flags.String(flagAdminUserIDs, "", "comma-separated user ids, subjects or emails promoted to admin")
	flags.Int(flagRateLimitAuthenticated, 0, "requests per minute per user (default 100)")
	flags.Int(flagRateLimitAnonymous, 0, "requests per minute per client IP (default 20)")
	flags.Bool(flagAutoMigrate, false, "apply schema migrations on startup")

	cmd.AddCommand(newServeCommand(cfg), newMigrateCommand(cfg), newRunJobCommand(cfg))
	return cmd
}

func newServeCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			return runServer(ctx, *cfg, logger)
		},
	}
}

func newMigrateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			return runMigrations(cmd.Context(), *cfg, logger)
		},
	}
}

func newRunJobCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run-job <name>",
		Short: "Run one automation job and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			app, err := buildApplication(cmd.Context(), *cfg, logger)
			if err != nil {
				return err
			}
			defer app.close()

			result, err := app.runner.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(result); err != nil {
				return err
			}
			if result.Error != "" {
				return fmt.Errorf("job %s failed: %s", result.Name, result.Error)
			}
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	envFile, err := flags.GetString(flagEnvFile)
	if err != nil {
		return err
	}
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(flagDatabaseURL, envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return err
	}

	for _, flagName := range []string{
		flagDatabaseURL, flagListenAddr, flagAllowedOrigins, flagSessionSigningKey, flagSessionCookieName,
		flagSessionTTL, flagSecureCookies, flagFrontendURL, flagGoogleClientID, flagGoogleClientSecret,
		flagGoogleRedirectURL, flagStripeSecretKey, flagStripeWebhookSecret, flagStripeGemPackages,
		flagRulesFile, flagRedisURL, flagEnableScheduler, flagRequestTimeout, flagExternalTimeout,
		flagAdminUserIDs, flagRateLimitAuthenticated, flagRateLimitAnonymous, flagAutoMigrate,
	} {
		if err := v.BindPFlag(flagName, flags.Lookup(flagName)); err != nil {
			return err
		}
	}

	packages, err := config.ParseGemPackages(v.GetString(flagStripeGemPackages))
	if err != nil {
		return err
	}

	*cfg = config.Config{
		DatabaseURL:            v.GetString(flagDatabaseURL),
		ListenAddr:             v.GetString(flagListenAddr),
		AllowedOrigins:         config.ParseList(v.GetString(flagAllowedOrigins)),
		SessionSigningKey:      v.GetString(flagSessionSigningKey),
		SessionCookieName:      v.GetString(flagSessionCookieName),
		SessionTTL:             v.GetDuration(flagSessionTTL),
		SecureCookies:          v.GetBool(flagSecureCookies),
		FrontendURL:            v.GetString(flagFrontendURL),
		GoogleClientID:         v.GetString(flagGoogleClientID),
		GoogleClientSecret:     v.GetString(flagGoogleClientSecret),
		GoogleRedirectURL:      v.GetString(flagGoogleRedirectURL),
		StripeSecretKey:        v.GetString(flagStripeSecretKey),
		StripeWebhookSecret:    v.GetString(flagStripeWebhookSecret),
		StripeGemPackages:      packages,
		RulesFile:              v.GetString(flagRulesFile),
		RedisURL:               v.GetString(flagRedisURL),
		EnableScheduler:        v.GetBool(flagEnableScheduler),
		RequestTimeout:         v.GetDuration(flagRequestTimeout),
		ExternalTimeout:        v.GetDuration(flagExternalTimeout),
		AdminUserIDs:           config.ParseList(v.GetString(flagAdminUserIDs)),
		RateLimitAuthenticated: v.GetInt(flagRateLimitAuthenticated),
		RateLimitAnonymous:     v.GetInt(flagRateLimitAnonymous),
		AutoMigrate:            v.GetBool(flagAutoMigrate),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = config.DefaultDatabaseURL
	}
	return nil
}

// loadEnvFile reads a dotenv file; a missing file is not an error.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
