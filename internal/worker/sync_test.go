package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/billing"
	"github.com/jmehdipour/realestate-billing/internal/model"
	"github.com/jmehdipour/realestate-billing/internal/service/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func paidSub(id int64, user, providerID string) model.Subscription {
	return model.Subscription{
		ID:                   id,
		UserID:               user,
		PlanID:               "pro",
		Status:               model.SubscriptionActive,
		BillingCycle:         model.CycleMonthly,
		StripeSubscriptionID: strPtr(providerID),
		CreatedAt:            time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newSyncJob(subs *memSubs, listings *memListings, provider *stubProvider, opts Options) *SyncJob {
	log := zap.NewNop()
	cascade := lifecycle.NewCascade(inlineTx{}, subs, listings)
	rec := lifecycle.NewReconciler(subs, cascade, nil, log)
	return NewSyncJob(subs, provider, rec, opts, log)
}

func TestSyncBatchContinuesAfterRowFailure(t *testing.T) {
	subs := newMemSubs(paidSub(1, "u1", "S1"), paidSub(2, "u2", "S2"), paidSub(3, "u3", "S3"))
	listings := newMemListings(
		model.Listing{ID: 30, OwnerID: "u3", Status: model.ListingActive},
		model.Listing{ID: 31, OwnerID: "u3", Status: model.ListingDraft},
		model.Listing{ID: 10, OwnerID: "u1", Status: model.ListingActive},
	)
	provider := &stubProvider{
		subs: map[string]billing.Subscription{
			"S1": {ID: "S1", Status: billing.StatusActive},
			"S3": {ID: "S3", Status: billing.StatusCanceled},
		},
		errs: map[string]error{"S2": errors.New("provider timeout")},
	}

	sum, err := newSyncJob(subs, listings, provider, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SyncSummary{Total: 3, Synced: 2, Expired: 1, Errors: 1}, sum)
	assert.Equal(t, 3, provider.calls)
	assert.Equal(t, model.SubscriptionActive, subs.get(1).Status)
	assert.Equal(t, model.SubscriptionActive, subs.get(2).Status)
	assert.Equal(t, model.SubscriptionCanceled, subs.get(3).Status)
	assert.Equal(t, model.ListingPaused, listings.status(30))
	assert.Equal(t, model.ListingDraft, listings.status(31))
	assert.Equal(t, model.ListingActive, listings.status(10))
}

func TestSyncCallTimeoutBoundsHungProvider(t *testing.T) {
	subs := newMemSubs(paidSub(1, "u1", "S1"), paidSub(2, "u2", "S2"), paidSub(3, "u3", "S3"))
	listings := newMemListings(model.Listing{ID: 30, OwnerID: "u3", Status: model.ListingActive})
	provider := &stubProvider{
		subs: map[string]billing.Subscription{
			"S1": {ID: "S1", Status: billing.StatusActive},
			"S3": {ID: "S3", Status: billing.StatusCanceled},
		},
		hang: map[string]bool{"S2": true},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	sum, err := newSyncJob(subs, listings, provider, Options{CallTimeout: 20 * time.Millisecond}).Run(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, SyncSummary{Total: 3, Synced: 2, Expired: 1, Errors: 1}, sum)
	require.Len(t, provider.ctxErrs, 1)
	assert.ErrorIs(t, provider.ctxErrs[0], context.DeadlineExceeded)
	assert.Equal(t, model.SubscriptionActive, subs.get(2).Status)
	assert.Equal(t, model.SubscriptionCanceled, subs.get(3).Status)
	assert.Equal(t, model.ListingPaused, listings.status(30))
}

func TestSyncTwiceYieldsSameState(t *testing.T) {
	subs := newMemSubs(paidSub(1, "u1", "S1"), paidSub(2, "u2", "S2"))
	listings := newMemListings(
		model.Listing{ID: 10, OwnerID: "u1", Status: model.ListingActive},
		model.Listing{ID: 20, OwnerID: "u2", Status: model.ListingActive},
	)
	provider := &stubProvider{subs: map[string]billing.Subscription{
		"S1": {ID: "S1", Status: billing.StatusCanceled},
		"S2": {ID: "S2", Status: billing.StatusPastDue},
	}}
	job := newSyncJob(subs, listings, provider, Options{})

	first, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Expired)
	assert.Equal(t, 1, first.Updated)
	after := subs.snapshot()
	updates := subs.updates

	second, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Expired)
	assert.Zero(t, second.Updated)
	assert.Equal(t, after, subs.snapshot())
	assert.Equal(t, updates, subs.updates)
	assert.Equal(t, model.ListingPaused, listings.status(10))
	assert.Equal(t, model.ListingActive, listings.status(20))
}

func TestSyncScheduledCancelInThePast(t *testing.T) {
	subs := newMemSubs(paidSub(1, "u1", "S1"))
	listings := newMemListings(model.Listing{ID: 10, OwnerID: "u1", Status: model.ListingActive})
	past := time.Now().Add(-time.Minute)
	provider := &stubProvider{subs: map[string]billing.Subscription{
		"S1": {ID: "S1", Status: billing.StatusActive, CancelAtPeriodEnd: true, CancelAt: &past},
	}}

	sum, err := newSyncJob(subs, listings, provider, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Expired)
	assert.Equal(t, model.SubscriptionCanceled, subs.get(1).Status)
	assert.False(t, subs.get(1).CancelAtPeriodEnd)
	assert.Equal(t, model.ListingPaused, listings.status(10))
}

func TestSyncSkipsRowsWithoutProviderID(t *testing.T) {
	trial := paidSub(1, "u1", "")
	trial.StripeSubscriptionID = nil
	subs := newMemSubs(trial)
	provider := &stubProvider{}

	sum, err := newSyncJob(subs, newMemListings(), provider, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncSummary{Total: 1, Skipped: 1}, sum)
	assert.Zero(t, provider.calls)
}

func TestSyncCountsUnknownProviderStatusAsError(t *testing.T) {
	subs := newMemSubs(paidSub(1, "u1", "S1"))
	provider := &stubProvider{subs: map[string]billing.Subscription{
		"S1": {ID: "S1", Status: billing.Status("on_hold")},
	}}

	sum, err := newSyncJob(subs, newMemListings(), provider, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Errors)
	assert.Equal(t, model.SubscriptionActive, subs.get(1).Status)
}

func TestSyncBoundedConcurrency(t *testing.T) {
	var rows []model.Subscription
	provided := map[string]billing.Subscription{}
	for i := 1; i <= 20; i++ {
		id := fmt.Sprintf("S%d", i)
		rows = append(rows, paidSub(int64(i), fmt.Sprintf("u%d", i), id))
		st := billing.StatusActive
		if i%2 == 0 {
			st = billing.StatusTrialing
		}
		provided[id] = billing.Subscription{ID: id, Status: st}
	}
	subs := newMemSubs(rows...)
	provider := &stubProvider{subs: provided}

	sum, err := newSyncJob(subs, newMemListings(), provider, Options{Concurrency: 4, PaceRPS: 1000}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, sum.Synced)
	assert.Equal(t, 10, sum.Updated)
	assert.Zero(t, sum.Errors)
	assert.Equal(t, model.SubscriptionTrialing, subs.get(2).Status)
}
