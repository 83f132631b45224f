package worker

import (
	"context"
	"errors"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func metricsServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

// startMetrics serves /metrics on --metrics-addr until stop is called.
// An empty address disables the listener.
func startMetrics(cmd *cobra.Command, log *zap.Logger) (stop func()) {
	addr, _ := cmd.Flags().GetString("metrics-addr")
	if addr == "" {
		return func() {}
	}

	e := metricsServer()
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics listener exited", zap.String("addr", addr), zap.Error(err))
		}
	}()
	log.Info("metrics listener started", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	}
}
