// Package main is the entry point for the listening gateway.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/echolens/listening-gateway/internal/agent"
	"github.com/echolens/listening-gateway/internal/auth"
	"github.com/echolens/listening-gateway/internal/config"
	"github.com/echolens/listening-gateway/internal/handler"
	"github.com/echolens/listening-gateway/internal/middleware"
	natsclient "github.com/echolens/listening-gateway/internal/nats"
	"github.com/echolens/listening-gateway/internal/session"
	"github.com/echolens/listening-gateway/pkg/logger"
	"github.com/echolens/listening-gateway/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting listening gateway")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "listening-gateway", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS for artifact archival (optional)
	var nc *natsclient.Client
	var archiver *natsclient.Archiver
	if cfg.NATSURL != "" {
		nc, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer nc.Close()

		archiver = natsclient.NewArchiver(nc)
		if err := archiver.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure artifacts stream", zap.Error(err))
			os.Exit(1)
		}
	}

	// Upstream credentials: forward the caller's bearer token, falling back
	// to the configured service token.
	var tokenSource auth.TokenSource
	if cfg.AgentForwardAuth {
		tokenSource = auth.NewForwardingTokenSource(cfg.AgentServiceToken)
	} else {
		tokenSource = auth.NewStaticTokenSource(cfg.AgentServiceToken)
	}

	// Initialize the agent client and session registry
	agentClient := agent.NewClient(cfg.AgentBaseURL, tokenSource, log)
	registry := session.NewRegistry(agentClient, archiver, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(nc)
	chatHandler := handler.NewChatHandler(registry, log)
	sourcesHandler := handler.NewSourcesHandler(registry, log)
	studioHandler := handler.NewStudioHandler(registry, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/chat", func(r chi.Router) {
			r.Post("/messages", chatHandler.Send)
			r.Post("/cancel", chatHandler.Cancel)
			r.Get("/transcript", chatHandler.Transcript)
			r.Get("/stream", chatHandler.Stream)
			r.Delete("/session", chatHandler.ResetSession)
		})

		r.Route("/sources", func(r chi.Router) {
			r.Get("/", sourcesHandler.List)
			r.Put("/", sourcesHandler.Replace)
			r.Get("/pending-setup", sourcesHandler.PendingSetup)
			r.Delete("/pending-setup", sourcesHandler.DismissPendingSetup)
			r.Post("/{id}/select", sourcesHandler.Select)
			r.Post("/{id}/deselect", sourcesHandler.Deselect)
		})

		r.Route("/studio", func(r chi.Router) {
			r.Get("/artifacts", studioHandler.List)
			r.Delete("/artifacts/{id}", studioHandler.Delete)
		})
	})

	// Create HTTP server. WriteTimeout stays at the configured value; the
	// default of 0 keeps long-lived SSE passthrough connections alive.
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
