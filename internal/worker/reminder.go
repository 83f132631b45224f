package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/model"
	"github.com/jmehdipour/realestate-billing/internal/notify"
	"github.com/jmehdipour/realestate-billing/internal/repository"
	"go.uber.org/zap"
)

const jobReminder = "reminder"

type ReminderSummary struct {
	Total    int `json:"total"`
	Notified int `json:"notified"`
	Errors   int `json:"errors"`
}

// ReminderJob warns trial users whose trial is about to end. It never changes state.
type ReminderJob struct {
	subs        repository.SubscriptionsRepository
	notifier    notify.Notifier
	planID      string
	trialLength time.Duration
	from, to    time.Duration // trial age window
	opts        Options
	log         *zap.Logger
	now         func() time.Time
}

func NewReminderJob(
	subs repository.SubscriptionsRepository,
	notifier notify.Notifier,
	planID string,
	trialLength, from, to time.Duration,
	opts Options,
	log *zap.Logger,
) *ReminderJob {
	return &ReminderJob{
		subs:        subs,
		notifier:    notifier,
		planID:      planID,
		trialLength: trialLength,
		from:        from,
		to:          to,
		opts:        opts.withDefaults(),
		log:         log,
		now:         time.Now,
	}
}

func (j *ReminderJob) Run(ctx context.Context) (ReminderSummary, error) {
	defer observeDuration(jobReminder, time.Now())

	now := j.now().UTC()
	rows, err := j.subs.ListTrials(ctx, j.planID, now.Add(-j.to), now.Add(-j.from))
	if err != nil {
		return ReminderSummary{}, fmt.Errorf("list trials to remind: %w", err)
	}

	daysLeft := int((j.trialLength - j.from) / (24 * time.Hour))
	sum := ReminderSummary{Total: len(rows)}
	t := &tally{job: jobReminder}

	forEach(ctx, rows, j.opts.Concurrency, func(ctx context.Context, sub *model.Subscription) {
		n := notify.New(sub.UserID, model.NotificationTrialExpiringSoon, map[string]any{
			"subscription_id": sub.ID,
			"days_left":       daysLeft,
			"expires_at":      sub.CreatedAt.Add(j.trialLength).UTC().Format(time.RFC3339),
		})
		if err := j.notifier.Notify(ctx, n); err != nil {
			t.record("error", &sum.Errors)
			j.log.Warn("trial reminder not sent",
				zap.Int64("subscription_id", sub.ID),
				zap.String("user_id", sub.UserID),
				zap.Error(err))
			return
		}
		t.record("notified", &sum.Notified)
	})

	j.log.Info("trial reminders finished",
		zap.Int("total", sum.Total),
		zap.Int("notified", sum.Notified),
		zap.Int("errors", sum.Errors))
	return sum, nil
}
