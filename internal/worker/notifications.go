package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/kafka"
	"github.com/jmehdipour/realestate-billing/internal/metrics"
	"github.com/jmehdipour/realestate-billing/internal/model"
	"go.uber.org/zap"
)

// MessageSource is the consumer side of the notification topic.
type MessageSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// Deliverer hands one notification to the delivery endpoints.
type Deliverer interface {
	Deliver(ctx context.Context, n model.Notification) error
}

// NotificationsWorker:
// - fetches notification envelopes from Kafka,
// - delivers them through the dispatcher,
// - commits every message once handled (at-least-once).
type NotificationsWorker struct {
	Source  MessageSource
	Deliver Deliverer
	Workers int // goroutines delivering messages
	log     *zap.Logger
}

func NewNotificationsWorker(src MessageSource, d Deliverer, log *zap.Logger) *NotificationsWorker {
	return &NotificationsWorker{Source: src, Deliver: d, Workers: 8, log: log}
}

// Run blocks until ctx is cancelled.
func (w *NotificationsWorker) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 8
	}

	msgCh := make(chan kafka.Message, w.Workers*2)

	go func() {
		defer close(msgCh)
		for {
			m, err := w.Source.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.log.Warn("kafka fetch failed", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(200 * time.Millisecond):
				}
				continue
			}
			select {
			case msgCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	done := make(chan struct{}, w.Workers)
	for i := 0; i < w.Workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for m := range msgCh {
				w.processOne(ctx, m)
			}
		}()
	}
	for i := 0; i < w.Workers; i++ {
		<-done
	}
	return nil
}

func (w *NotificationsWorker) processOne(ctx context.Context, m kafka.Message) {
	var n model.Notification
	if err := json.Unmarshal(m.Value, &n); err != nil || n.ID == "" || n.UserID == "" {
		// poison message: commit and skip
		w.log.Warn("bad notification envelope",
			zap.Int64("offset", m.Offset),
			zap.Error(err))
		w.commit(ctx, m)
		return
	}

	if err := w.Deliver.Deliver(ctx, n); err != nil {
		metrics.Notifications.WithLabelValues("failed", n.Type.String()).Inc()
		w.log.Error("notification delivery failed",
			zap.String("id", n.ID),
			zap.String("user_id", n.UserID),
			zap.String("type", n.Type.String()),
			zap.Error(err))
	} else {
		metrics.Notifications.WithLabelValues("delivered", n.Type.String()).Inc()
	}

	w.commit(ctx, m)
}

func (w *NotificationsWorker) commit(ctx context.Context, m kafka.Message) {
	if err := w.Source.Commit(ctx, m); err != nil && ctx.Err() == nil {
		w.log.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}
