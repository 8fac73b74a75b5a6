// Command catalog-gateway serves the catalog over HTTP through a cached,
// throttled and retrying client session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sall0568/cinescope-client/pkg/config"
	"github.com/sall0568/cinescope-client/pkg/logging"
	"github.com/sall0568/cinescope-client/pkg/session"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default: ./config.yaml if present)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "catalog-gateway: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logCfg := cfg.LoggerConfig()
	logCfg.Service = "catalog-gateway"
	logger := logging.Setup(logCfg)

	sess, err := session.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn().Err(err).Msg("Session close failed")
		}
	}()

	if err := sess.Start(); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(sess, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return serve(ctx, srv, cfg.Server.ShutdownTimeout, logger)
}

// serve runs srv until ctx ends, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Msg("Starting catalog gateway")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down catalog gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
