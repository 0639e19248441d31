// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/homescan/guidebot/pkg/extensions"
	"github.com/homescan/guidebot/services/chatbot/config"
	"github.com/homescan/guidebot/services/chatbot/handlers"
	"github.com/homescan/guidebot/services/chatbot/identity"
	"github.com/homescan/guidebot/services/chatbot/middleware"
	"github.com/homescan/guidebot/services/chatbot/observability"
	"github.com/homescan/guidebot/services/chatbot/routes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cleanup, err := observability.InitTracer(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to setup the OTLP tracer: %w", err)
	}
	defer cleanup(context.Background())

	a, err := buildApp(cfg, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("Failed to close the turn store", "error", err)
		}
	}()

	handler, err := newHTTPHandler(cfg, a, promhttp.Handler())
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serveUntilDone(ctx, srv, cfg.Server.ShutdownTimeout)
}

// newHTTPHandler builds the gin engine with every route and wraps it in
// CORS.
func newHTTPHandler(cfg config.Config, a *app, metrics http.Handler) (http.Handler, error) {
	provider, err := identity.New(cfg.Auth.Provider, cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return nil, fmt.Errorf("configure auth: %w", err)
	}
	audit := extensions.NewSlogAuditLogger(slog.Default())
	opts := extensions.DefaultOptions().WithAuth(provider).WithAudit(audit)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))

	routes.SetupRoutes(router, routes.Config{
		Handler: handlers.NewChatHandler(a.orch, audit),
		Health:  handlers.HealthCheck(version, a.gen.Configured()),
		Metrics: metrics,
		Limiter: middleware.NewOwnerLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
		Options: opts,
	})

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(router), nil
}

// serveUntilDone runs srv until ctx ends, then drains in-flight requests
// for at most grace.
func serveUntilDone(ctx context.Context, srv *http.Server, grace time.Duration) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting the guidebot server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("Shutting down the guidebot server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
