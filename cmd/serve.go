package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/app"
	"github.com/jmehdipour/realestate-billing/internal/db"
	httpSrv "github.com/jmehdipour/realestate-billing/internal/http"
	"github.com/jmehdipour/realestate-billing/internal/ratelimit"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		if err := cfg.ValidateServe(); err != nil {
			return err
		}

		lc, err := app.NewLifecycle(cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := lc.Close(); err != nil {
				log.Warn("close lifecycle stores", zap.Error(err))
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var limiter ratelimit.Limiter
		switch cfg.RateLimit.Backend {
		case "redis":
			rdb, err := db.OpenRedis(cfg.Redis)
			if err != nil {
				return fmt.Errorf("redis connect: %w", err)
			}
			defer func() { _ = rdb.Close() }()
			limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.KeyPrefix)
		default:
			mem := ratelimit.NewMemoryLimiter()
			go mem.Run(ctx, cfg.RateLimit.SweepInterval)
			limiter = mem
		}

		server := httpSrv.NewServer(cfg, httpSrv.Deps{
			Subscriptions: lc.Service,
			Webhooks:      lc.Provider,
			Events:        lc.Events,
			Listings:      lc.Listings,
			Limiter:       limiter,
			Rules:         ratelimit.RulesFromConfig(cfg.RateLimit.Rules),
			Log:           log,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		runErr := waitForServer(ctx, errCh, log)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)

		return runErr
	},
}

// waitForServer blocks until a shutdown signal or the listener exits, and
// returns the listener's error unless it was a normal close.
func waitForServer(ctx context.Context, errCh <-chan error, log *zap.Logger) error {
	select {
	case <-ctx.Done():
		log.Info("signal received, shutting down")
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server exited", zap.Error(err))
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}
