// Storefront serves the guest cart and checkout over REST and MCP.
// It owns the one CartStore for this client and is the page payment
// providers redirect back to.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guest-checkout/internal/apiclient"
	"guest-checkout/internal/app"
	"guest-checkout/internal/config"
	"guest-checkout/internal/handler"
	"guest-checkout/internal/middleware"
	"guest-checkout/internal/model"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	// Load configuration
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.String("store_backend", cfg.Store.Backend),
		slog.String("checkout_mode", cfg.Checkout.Mode),
		slog.String("default_provider", cfg.Checkout.DefaultProvider),
	)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("wiring components: %w", err)
	}
	defer a.Close()

	unsubscribe := a.Cart.Subscribe(func(c *model.Cart) {
		logger.Debug("cart changed",
			slog.String("session_id", c.SessionID),
			slog.Int("count", c.Count()),
			slog.String("total", c.Total().StringFixed(2)),
		)
	})
	defer unsubscribe()

	// The cart service may be down at boot; the first request retries.
	if err := a.Cart.Load(ctx); err != nil {
		logger.Warn("initial cart load failed", slog.String("error", err.Error()))
	}

	deps := handler.Deps{
		Cart:          a.Cart,
		Checkout:      a.Checkout,
		Returns:       a.Returns,
		Confirmations: a.Confirmations,
		Providers:     a.Providers.Names(),
	}
	if p, ok := a.Store.(handler.Pinger); ok {
		deps.Backend = p
	}
	h := handler.New(deps, logger)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery must be outermost to catch panics from logging middleware.
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.GuestSession(apiclient.SessionHeader, a.Sessions.Current),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("public_base_url", cfg.PublicBaseURL),
		)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
