package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/realestate-billing/internal/dispatcher"
	"github.com/jmehdipour/realestate-billing/internal/kafka"
	"github.com/jmehdipour/realestate-billing/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Deliver lifecycle notifications from Kafka to the notification endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		endpoints := dispatcher.EndpointsFromConfig(cfg.Notifications.Endpoints)
		if len(endpoints) == 0 {
			return fmt.Errorf("no notification endpoints enabled in config")
		}
		disp := dispatcher.NewDispatcher(endpoints, cfg.Notifications.MaxAttempts)

		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Notifications.Topic)
		defer consumer.Close()

		w := worker.NewNotificationsWorker(consumer, disp, log)
		if cfg.Workers.Concurrency > 1 {
			w.Workers = cfg.Workers.Concurrency
		}

		// graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		defer startMetrics(cmd, log)()

		log.Info("notifications worker started",
			zap.String("topic", cfg.Notifications.Topic),
			zap.String("group", cfg.Kafka.GroupID),
			zap.Int("workers", w.Workers))
		return w.Run(ctx)
	},
}
