package worker

import (
	"fmt"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/config"
	"github.com/jmehdipour/realestate-billing/internal/logger"
	"github.com/jmehdipour/realestate-billing/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewWorkerCmd returns the parent "worker" command.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background workers",
	}
	cmd.PersistentFlags().Duration("every", 0, "repeat the job on this interval; 0 runs it once")
	cmd.PersistentFlags().String("metrics-addr", "", "serve /metrics on this address while the worker runs (e.g. :9102)")

	// attach subcommands
	cmd.AddCommand(syncCmd)
	cmd.AddCommand(expireTrialsCmd)
	cmd.AddCommand(remindersCmd)
	cmd.AddCommand(notificationsCmd)

	return cmd
}

func setup(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	metrics.MustRegister(prometheus.DefaultRegisterer)
	return cfg, logger.Init(cfg.Log.Level), nil
}

func every(cmd *cobra.Command) time.Duration {
	d, _ := cmd.Flags().GetDuration("every")
	return d
}
