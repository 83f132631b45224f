package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/model"
	"github.com/jmehdipour/realestate-billing/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSubs struct {
	rows []model.Subscription
}

func (m *memSubs) ListByStatus(context.Context, model.SubscriptionStatus) ([]model.Subscription, error) {
	return nil, nil
}

func (m *memSubs) ListTrials(context.Context, string, time.Time, time.Time) ([]model.Subscription, error) {
	return nil, nil
}

func (m *memSubs) FindByUser(_ context.Context, userID string) ([]model.Subscription, error) {
	var out []model.Subscription
	for _, s := range m.rows {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSubs) GetByProviderID(context.Context, string) (*model.Subscription, error) {
	return nil, repository.ErrNotFound
}

func (m *memSubs) Create(_ context.Context, _ *sqlx.Tx, sub *model.Subscription) error {
	sub.ID = int64(len(m.rows) + 1)
	sub.Version = 1
	m.rows = append(m.rows, *sub)
	return nil
}

func (m *memSubs) Update(context.Context, *sqlx.Tx, *model.Subscription) error { return nil }

func TestSeedSubscriptionsCreatesOnlyMissing(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	owners := demoOwners()
	repo := &memSubs{rows: []model.Subscription{
		{ID: 100, UserID: owners[0], PlanID: "agencia-pro", Status: model.SubscriptionPastDue},
		{ID: 101, UserID: owners[1], PlanID: "trial", Status: model.SubscriptionExpired},
	}}

	created, err := seedSubscriptions(context.Background(), repo, demoSubscriptions(now, "trial"))
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	again, err := seedSubscriptions(context.Background(), repo, demoSubscriptions(now, "trial"))
	require.NoError(t, err)
	assert.Zero(t, again)

	rows, err := repo.FindByUser(context.Background(), owners[1])
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, model.SubscriptionActive, rows[1].Status)
	assert.Equal(t, model.CycleMonthly, rows[1].BillingCycle)
}
