package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/model"
	"github.com/jmehdipour/realestate-billing/internal/notify"
	"github.com/jmehdipour/realestate-billing/internal/repository"
	"github.com/jmehdipour/realestate-billing/internal/service/lifecycle"
	"go.uber.org/zap"
)

type TrialSummary struct {
	Total    int `json:"total"`
	Expired  int `json:"expired"`
	Notified int `json:"notified"`
	Errors   int `json:"errors"`
}

// TrialJob expires trials older than the trial length. Trials are not managed
// by the billing provider, so no provider call is made.
type TrialJob struct {
	subs        repository.SubscriptionsRepository
	cascade     *lifecycle.Cascade
	notifier    notify.Notifier
	journal     *lifecycle.Journal
	planID      string
	trialLength time.Duration
	opts        Options
	log         *zap.Logger
	now         func() time.Time
}

func NewTrialJob(
	subs repository.SubscriptionsRepository,
	cascade *lifecycle.Cascade,
	notifier notify.Notifier,
	journal *lifecycle.Journal,
	planID string,
	trialLength time.Duration,
	opts Options,
	log *zap.Logger,
) *TrialJob {
	return &TrialJob{
		subs:        subs,
		cascade:     cascade,
		notifier:    notifier,
		journal:     journal,
		planID:      planID,
		trialLength: trialLength,
		opts:        opts.withDefaults(),
		log:         log,
		now:         time.Now,
	}
}

func (j *TrialJob) Run(ctx context.Context) (TrialSummary, error) {
	defer observeDuration(lifecycle.JobTrial, time.Now())

	cutoff := j.now().UTC().Add(-j.trialLength)
	rows, err := j.subs.ListTrials(ctx, j.planID, time.Time{}, cutoff)
	if err != nil {
		return TrialSummary{}, fmt.Errorf("list expired trials: %w", err)
	}

	sum := TrialSummary{Total: len(rows)}
	t := &tally{job: lifecycle.JobTrial}

	forEach(ctx, rows, j.opts.Concurrency, func(ctx context.Context, sub *model.Subscription) {
		from := sub.Status
		paused, err := j.cascade.Terminate(ctx, sub, model.SubscriptionExpired)
		if err != nil {
			t.record("error", &sum.Errors)
			j.log.Error("expire trial failed",
				zap.Int64("subscription_id", sub.ID),
				zap.String("user_id", sub.UserID),
				zap.Error(err))
			return
		}
		t.record("expired", &sum.Expired)
		j.journal.Record(ctx, lifecycle.JobTrial, *sub, from, paused)

		n := notify.New(sub.UserID, model.NotificationTrialExpired, map[string]any{
			"subscription_id": sub.ID,
			"plan_id":         sub.PlanID,
			"paused_listings": paused,
		})
		if err := j.notifier.Notify(ctx, n); err != nil {
			j.log.Warn("trial expired notification not sent",
				zap.Int64("subscription_id", sub.ID),
				zap.String("user_id", sub.UserID),
				zap.Error(err))
			return
		}
		t.record("notified", &sum.Notified)
	})

	j.log.Info("trial expiration finished",
		zap.Int("total", sum.Total),
		zap.Int("expired", sum.Expired),
		zap.Int("notified", sum.Notified),
		zap.Int("errors", sum.Errors))
	return sum, nil
}
