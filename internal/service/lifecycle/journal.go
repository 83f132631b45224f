package lifecycle

import (
	"context"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/model"
	"github.com/jmehdipour/realestate-billing/internal/repository"
	"github.com/jmehdipour/realestate-billing/internal/util"
	"go.uber.org/zap"
)

// Jobs that produce lifecycle events.
const (
	JobSync       = "sync"
	JobTrial      = "trial"
	JobCancel     = "cancel"
	JobReactivate = "reactivate"
	JobWebhook    = "webhook"
)

// Journal appends transitions to the lifecycle event log. Write failures are
// logged and never returned. A nil Journal records nothing.
type Journal struct {
	repo repository.LifecycleEventsRepository
	log  *zap.Logger
}

func NewJournal(repo repository.LifecycleEventsRepository, log *zap.Logger) *Journal {
	return &Journal{repo: repo, log: log}
}

func (j *Journal) Record(ctx context.Context, job string, sub model.Subscription, from model.SubscriptionStatus, paused int64) {
	if j == nil || j.repo == nil {
		return
	}
	ev := model.LifecycleEvent{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		Job:            job,
		FromStatus:     from.String(),
		ToStatus:       sub.Status.String(),
		PausedListings: paused,
		CreatedAt:      sub.UpdatedAt,
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	ev.ID = util.NewIDAt(ev.CreatedAt)
	if err := j.repo.Insert(ctx, ev); err != nil {
		j.log.Warn("record lifecycle event failed",
			zap.String("job", job),
			zap.Int64("subscription_id", sub.ID),
			zap.Error(err))
	}
}
