package worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/realestate-billing/internal/app"
	"github.com/jmehdipour/realestate-billing/internal/config"
	"github.com/jmehdipour/realestate-billing/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncCmd = &cobra.Command{
	Use:   "sync-subscriptions",
	Short: "Reconcile active subscriptions against the billing provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd, "sync-subscriptions", func(cfg config.Config, lc *app.Lifecycle, log *zap.Logger) func(context.Context) error {
			job := worker.NewSyncJob(lc.Subscriptions, lc.Provider, lc.Reconciler, app.BatchOptions(cfg), log)
			return func(ctx context.Context) error {
				_, err := job.Run(ctx)
				return err
			}
		})
	},
}

var expireTrialsCmd = &cobra.Command{
	Use:   "expire-trials",
	Short: "Expire trials older than the trial length and pause their listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd, "expire-trials", func(cfg config.Config, lc *app.Lifecycle, log *zap.Logger) func(context.Context) error {
			job := worker.NewTrialJob(lc.Subscriptions, lc.Cascade, lc.Notifier, lc.Journal,
				cfg.Billing.TrialPlanID, cfg.Billing.TrialLength, app.BatchOptions(cfg), log)
			return func(ctx context.Context) error {
				_, err := job.Run(ctx)
				return err
			}
		})
	},
}

var remindersCmd = &cobra.Command{
	Use:   "trial-reminders",
	Short: "Warn users whose trial ends in the next days",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd, "trial-reminders", func(cfg config.Config, lc *app.Lifecycle, log *zap.Logger) func(context.Context) error {
			job := worker.NewReminderJob(lc.Subscriptions, lc.Notifier, cfg.Billing.TrialPlanID,
				cfg.Billing.TrialLength, cfg.Billing.ReminderFrom, cfg.Billing.ReminderTo, app.BatchOptions(cfg), log)
			return func(ctx context.Context) error {
				_, err := job.Run(ctx)
				return err
			}
		})
	},
}

// runLifecycle wires the shared stores, builds the job and runs it once or on --every.
func runLifecycle(cmd *cobra.Command, name string, build func(config.Config, *app.Lifecycle, *zap.Logger) func(context.Context) error) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

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
	defer startMetrics(cmd, log)()

	log.Info("job started", zap.String("job", name), zap.Duration("every", every(cmd)))
	return worker.RunEvery(ctx, every(cmd), name, log, build(cfg, lc, log))
}
