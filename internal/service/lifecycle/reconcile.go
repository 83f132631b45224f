package lifecycle

import (
	"context"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/billing"
	"github.com/jmehdipour/realestate-billing/internal/model"
	"github.com/jmehdipour/realestate-billing/internal/repository"
	"go.uber.org/zap"
)

// Outcome is what reconciling one row did.
type Outcome string

const (
	OutcomeSynced  Outcome = "synced"  // already matched the provider
	OutcomeUpdated Outcome = "updated" // status or billing fields overwritten, no cascade
	OutcomeExpired Outcome = "expired" // moved to canceled and listings paused
)

// Reconciler derives local subscription state from the provider's view.
// Applying the same provider snapshot twice leaves the row unchanged the
// second time, which is what makes sync runs and webhook replays safe.
type Reconciler struct {
	subs    repository.SubscriptionsRepository
	cascade *Cascade
	journal *Journal
	log     *zap.Logger
	now     func() time.Time
}

func NewReconciler(subs repository.SubscriptionsRepository, cascade *Cascade, journal *Journal, log *zap.Logger) *Reconciler {
	return &Reconciler{subs: subs, cascade: cascade, journal: journal, log: log, now: time.Now}
}

// Reconcile brings sub in line with ps. An ended provider subscription (canceled,
// or a cancel_at in the past) cancels the row and pauses listings; any other
// drift is mirrored without touching listings.
func (r *Reconciler) Reconcile(ctx context.Context, job string, sub *model.Subscription, ps *billing.Subscription) (Outcome, error) {
	target, err := ps.Status.Local()
	if err != nil {
		return "", err
	}
	from := sub.Status

	if ps.Ended(r.now()) || target.Terminal() {
		if sub.Status.Terminal() {
			return OutcomeSynced, nil
		}
		sub.CancelAtPeriodEnd = false
		paused, err := r.cascade.Terminate(ctx, sub, model.SubscriptionCanceled)
		if err != nil {
			return "", err
		}
		r.log.Info("subscription canceled by provider",
			zap.String("job", job),
			zap.Int64("subscription_id", sub.ID),
			zap.String("user_id", sub.UserID),
			zap.String("provider_status", ps.Status.String()),
			zap.Int64("paused_listings", paused))
		r.journal.Record(ctx, job, *sub, from, paused)
		return OutcomeExpired, nil
	}

	if !mirror(sub, target, ps) {
		return OutcomeSynced, nil
	}
	if err := r.subs.Update(ctx, nil, sub); err != nil {
		return "", err
	}
	if from != sub.Status {
		r.log.Info("subscription status updated",
			zap.String("job", job),
			zap.Int64("subscription_id", sub.ID),
			zap.String("from", from.String()),
			zap.String("to", sub.Status.String()))
		r.journal.Record(ctx, job, *sub, from, 0)
	}
	return OutcomeUpdated, nil
}

// mirror copies provider fields onto sub and reports whether anything changed.
func mirror(sub *model.Subscription, status model.SubscriptionStatus, ps *billing.Subscription) bool {
	changed := false
	if sub.Status != status {
		sub.Status = status
		changed = true
	}
	if sub.CancelAtPeriodEnd != ps.CancelAtPeriodEnd {
		sub.CancelAtPeriodEnd = ps.CancelAtPeriodEnd
		changed = true
	}
	if !ps.CurrentPeriodEnd.IsZero() &&
		(sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.Equal(ps.CurrentPeriodEnd)) {
		end := ps.CurrentPeriodEnd
		sub.CurrentPeriodEnd = &end
		changed = true
	}
	return changed
}
