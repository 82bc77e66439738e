package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/practiceline/handoff/config"
	"github.com/practiceline/handoff/httpapi"
	"github.com/practiceline/handoff/jwt"
	otelexport "github.com/practiceline/handoff/metrics/export/otel"
	"github.com/practiceline/handoff/metrics/export/prometheus"
)

func serveCmd() *cobra.Command {
	var (
		opts        runtimeOptions
		role        string
		otelMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the handoff HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if role != "" {
				cfg.Role = role
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(cfg, opts, otelMetrics)
		},
	}
	addRuntimeFlags(cmd, &opts)
	cmd.Flags().StringVar(&role, "role", "", "central, tenant or all (overrides ROLE)")
	cmd.Flags().BoolVar(&otelMetrics, "otel-metrics", false, "publish metrics through the global OpenTelemetry meter provider")
	return cmd
}

func addRuntimeFlags(cmd *cobra.Command, opts *runtimeOptions) {
	cmd.Flags().BoolVar(&opts.devRedis, "dev-redis", false, "use an in-process miniredis instead of REDIS_URL")
	cmd.Flags().StringSliceVar(&opts.devMembers, "dev-member", nil, "user@tenant membership for the static directory")
	cmd.Flags().StringSliceVar(&opts.devDomains, "dev-domain", nil, "tenant=domain entry for the static directory")
	cmd.Flags().StringVar(&opts.auditLog, "audit-log", "", "append JSON audit events to this file instead of the log")
}

func runServer(cfg *config.Config, opts runtimeOptions, otelMetrics bool) error {
	logger := newLogger(cfg)
	ctx := context.Background()

	svc, err := buildRuntime(ctx, cfg, opts, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	engineCfg := svc.engine.Config()
	for _, w := range engineCfg.Lint() {
		logger.Warn().Str("code", w.Code).Str("severity", w.Severity.String()).Msg(w.Message)
	}

	handlerOpts := httpapi.Options{
		TenantID:    cfg.TenantID,
		LandingPath: cfg.LandingPath,
		LoginPath:   cfg.LoginPath,
		Logger:      logger,
	}
	if cfg.ServesCentral() {
		central, err := newSessionManager(cfg.CentralSessionKey, cfg.CentralIssuer, "", time.Hour)
		if err != nil {
			return fmt.Errorf("central session verifier: %w", err)
		}
		handlerOpts.Auth = httpapi.BearerAuthenticator{Manager: central, Cookie: cfg.SessionCookie}
	}
	if cfg.ServesTenant() {
		tenant, err := newSessionManager(cfg.SessionKey, "handoff", cfg.TenantID, cfg.SessionTTL)
		if err != nil {
			return fmt.Errorf("tenant session signer: %w", err)
		}
		handlerOpts.Sessions = httpapi.CookieSessions{Manager: tenant, Name: cfg.SessionCookie, Insecure: cfg.IsDev()}
	}

	if otelMetrics {
		exp, err := otelexport.NewOTelExporter(otel.GetMeterProvider().Meter("github.com/practiceline/handoff"), svc.engine)
		if err != nil {
			return err
		}
		defer func() { _ = exp.Close() }()
	}

	e := httpapi.NewServer(httpapi.ServerConfig{
		Role:     httpapi.Role(cfg.Role),
		Handlers: httpapi.NewHandlers(svc.engine, handlerOpts),
		Metrics:  prometheus.NewPrometheusExporter(svc.engine).Handler(),
		Health:   svc.health,
		Logger:   logger,
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("role", cfg.Role).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newSessionManager(hexKey, issuer, audience string, ttl time.Duration) (*jwt.Manager, error) {
	key, err := config.DecodeKey(hexKey)
	if err != nil {
		return nil, err
	}
	return jwt.NewManager(jwt.Config{
		TTL:           ttl,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    key,
		Issuer:        issuer,
		Audience:      audience,
		Leeway:        30 * time.Second,
	})
}
