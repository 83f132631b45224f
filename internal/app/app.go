// Package app builds the object graph shared by the serve and worker commands.
package app

import (
	"errors"
	"fmt"

	"github.com/jmehdipour/realestate-billing/internal/billing"
	"github.com/jmehdipour/realestate-billing/internal/config"
	"github.com/jmehdipour/realestate-billing/internal/db"
	"github.com/jmehdipour/realestate-billing/internal/kafka"
	"github.com/jmehdipour/realestate-billing/internal/notify"
	"github.com/jmehdipour/realestate-billing/internal/repository"
	"github.com/jmehdipour/realestate-billing/internal/service/lifecycle"
	"github.com/jmehdipour/realestate-billing/internal/worker"
	"github.com/jmoiron/sqlx"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Lifecycle holds the stores and services every subscription job needs.
type Lifecycle struct {
	MySQL      *sqlx.DB
	ClickHouse *sqlx.DB

	Subscriptions repository.SubscriptionsRepository
	Listings      repository.ListingsRepository
	Events        repository.LifecycleEventsRepository

	Provider   *billing.StripeProvider
	Notifier   notify.Notifier
	Cascade    *lifecycle.Cascade
	Journal    *lifecycle.Journal
	Reconciler *lifecycle.Reconciler
	Service    *lifecycle.Service

	producer *kafka.Producer
}

// NewLifecycle opens MySQL and ClickHouse and wires the lifecycle services on top.
func NewLifecycle(cfg config.Config, log *zap.Logger) (*Lifecycle, error) {
	if cfg.Billing.StripeSecretKey == "" {
		return nil, errors.New("billing.stripe_secret_key is required")
	}

	mysqlDB, err := db.OpenMySQL(cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("mysql connect: %w", err)
	}
	chDB, err := db.OpenClickHouse(cfg.ClickHouse)
	if err != nil {
		_ = mysqlDB.Close()
		return nil, fmt.Errorf("clickhouse connect: %w", err)
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Notifications.Topic, true, func(msgs []kafkago.Message, err error) {
		if err != nil {
			log.Warn("notification batch not delivered to kafka", zap.Int("messages", len(msgs)), zap.Error(err))
		}
	})

	l := &Lifecycle{
		MySQL:         mysqlDB,
		ClickHouse:    chDB,
		Subscriptions: repository.NewSubscriptionsRepository(mysqlDB),
		Listings:      repository.NewListingsRepository(mysqlDB),
		Events:        repository.NewLifecycleEventsRepository(chDB),
		Provider:      billing.NewStripeProvider(cfg.Billing.StripeSecretKey, cfg.Billing.StripeWebhookSecret),
		Notifier:      notify.NewKafkaNotifier(producer, log),
		producer:      producer,
	}
	l.Cascade = lifecycle.NewCascade(repository.NewTxRunner(mysqlDB), l.Subscriptions, l.Listings)
	l.Journal = lifecycle.NewJournal(l.Events, log)
	l.Reconciler = lifecycle.NewReconciler(l.Subscriptions, l.Cascade, l.Journal, log)
	l.Service = lifecycle.NewService(
		l.Subscriptions,
		l.Provider,
		l.Reconciler,
		l.Cascade,
		l.Notifier,
		l.Journal,
		lifecycle.Options{
			PortalReturnURL: cfg.Billing.PortalReturnURL,
			CallTimeout:     cfg.Billing.CallTimeout,
		},
		log,
	)
	return l, nil
}

// BatchOptions are the worker knobs from config.
func BatchOptions(cfg config.Config) worker.Options {
	return worker.Options{
		CallTimeout: cfg.Billing.CallTimeout,
		PaceRPS:     cfg.Billing.PaceRPS,
		Concurrency: cfg.Workers.Concurrency,
	}
}

// Close flushes pending notifications and closes the stores.
func (l *Lifecycle) Close() error {
	return errors.Join(l.producer.Close(), l.ClickHouse.Close(), l.MySQL.Close())
}
