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

	"github.com/ewbankkit/wascc-keyvalue/algorithms"
	"github.com/ewbankkit/wascc-keyvalue/dispatch"
	"github.com/ewbankkit/wascc-keyvalue/handler"
	"github.com/ewbankkit/wascc-keyvalue/store"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := store.New(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to create store (backend=%s): %w", cfg.Store.Backend, err)
	}
	defer s.Close()

	opts := []dispatch.Option{dispatch.WithLogger(logger)}
	if cfg.RateLimit > 0 {
		// Limiter state stays local so actors cannot reach it through the store.
		limiter, err := algorithms.New(cfg.RateAlgorithm, cfg.RateLimit, cfg.RateWindow, store.NewMemoryStore(nil))
		if err != nil {
			return err
		}
		opts = append(opts, dispatch.WithRateLimiter(limiter))
	}
	if cfg.AdminToken != "" {
		opts = append(opts, dispatch.WithBoundActorsOnly())
	} else {
		logger.Warn("ADMIN_TOKEN not set: admin route disabled, any actor name is served")
	}
	provider := dispatch.New(s, opts...)

	addr := cfg.Host + ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.New(provider, logger, handler.WithAdminToken(cfg.AdminToken)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("keyvalue provider starting",
			"addr", addr,
			"capability", provider.CapabilityID(),
			"store", cfg.Store.Backend,
			"rate_limit", cfg.RateLimit,
			"admin", cfg.AdminToken != "",
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
