// Package notify hands user notifications to the delivery pipeline without
// making callers wait for, or fail on, delivery.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/metrics"
	"github.com/jmehdipour/realestate-billing/internal/model"
	"github.com/jmehdipour/realestate-billing/internal/util"
	"go.uber.org/zap"
)

// Notifier publishes a notification. Implementations must not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// New fills in id and timestamp for a notification of type t.
func New(userID string, t model.NotificationType, metadata map[string]any) model.Notification {
	now := time.Now().UTC()
	return model.Notification{
		ID:        util.NewIDAt(now),
		UserID:    userID,
		Type:      t,
		Metadata:  metadata,
		CreatedAt: now,
	}
}

// Publisher is the transport the KafkaNotifier writes to.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// KafkaNotifier encodes notifications and publishes them keyed by user id.
type KafkaNotifier struct {
	pub Publisher
	log *zap.Logger
}

func NewKafkaNotifier(pub Publisher, log *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{pub: pub, log: log}
}

var _ Notifier = (*KafkaNotifier)(nil)

func (k *KafkaNotifier) Notify(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := k.pub.Publish(ctx, n.UserID, body); err != nil {
		metrics.Notifications.WithLabelValues("publish_failed", n.Type.String()).Inc()
		k.log.Warn("publish notification failed",
			zap.String("user_id", n.UserID),
			zap.String("type", n.Type.String()),
			zap.Error(err))
		return err
	}
	metrics.Notifications.WithLabelValues("published", n.Type.String()).Inc()
	return nil
}
