package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/billing"
	"github.com/jmehdipour/realestate-billing/internal/model"
	"github.com/jmehdipour/realestate-billing/internal/repository"
	"github.com/jmehdipour/realestate-billing/internal/service/lifecycle"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SyncSummary reports one synchronizer run. Synced counts every row checked
// against the provider without error; Updated and Expired are subsets of it.
type SyncSummary struct {
	Total   int `json:"total"`
	Synced  int `json:"synced"`
	Updated int `json:"updated"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// SyncJob reconciles every active local subscription against the billing provider.
type SyncJob struct {
	subs       repository.SubscriptionsRepository
	provider   billing.Provider
	reconciler *lifecycle.Reconciler
	opts       Options
	log        *zap.Logger
}

func NewSyncJob(
	subs repository.SubscriptionsRepository,
	provider billing.Provider,
	reconciler *lifecycle.Reconciler,
	opts Options,
	log *zap.Logger,
) *SyncJob {
	return &SyncJob{subs: subs, provider: provider, reconciler: reconciler, opts: opts.withDefaults(), log: log}
}

// Run processes the batch; only failing to list the rows is returned as an error.
func (j *SyncJob) Run(ctx context.Context) (SyncSummary, error) {
	defer observeDuration(lifecycle.JobSync, time.Now())

	rows, err := j.subs.ListByStatus(ctx, model.SubscriptionActive)
	if err != nil {
		return SyncSummary{}, fmt.Errorf("list active subscriptions: %w", err)
	}

	sum := SyncSummary{Total: len(rows)}
	t := &tally{job: lifecycle.JobSync}
	pace := j.opts.limiter()

	forEach(ctx, rows, j.opts.Concurrency, func(ctx context.Context, sub *model.Subscription) {
		if sub.ProviderID() == "" {
			t.record("skipped", &sum.Skipped)
			return
		}

		out, err := j.syncOne(ctx, sub, pace)
		if err != nil {
			t.record("error", &sum.Errors)
			j.log.Error("sync subscription failed",
				zap.Int64("subscription_id", sub.ID),
				zap.String("user_id", sub.UserID),
				zap.Error(err))
			return
		}

		switch out {
		case lifecycle.OutcomeUpdated:
			t.record(string(out), &sum.Synced, &sum.Updated)
		case lifecycle.OutcomeExpired:
			t.record(string(out), &sum.Synced, &sum.Expired)
		default:
			t.record(string(out), &sum.Synced)
		}
	})

	j.log.Info("subscription sync finished",
		zap.Int("total", sum.Total),
		zap.Int("synced", sum.Synced),
		zap.Int("updated", sum.Updated),
		zap.Int("expired", sum.Expired),
		zap.Int("skipped", sum.Skipped),
		zap.Int("errors", sum.Errors))
	return sum, nil
}

func (j *SyncJob) syncOne(ctx context.Context, sub *model.Subscription, pace *rate.Limiter) (lifecycle.Outcome, error) {
	if pace != nil {
		if err := pace.Wait(ctx); err != nil {
			return "", err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, j.opts.CallTimeout)
	ps, err := j.provider.GetSubscription(callCtx, sub.ProviderID())
	cancel()
	if err != nil {
		return "", err
	}
	return j.reconciler.Reconcile(ctx, lifecycle.JobSync, sub, ps)
}
