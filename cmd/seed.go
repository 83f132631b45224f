package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/db"
	"github.com/jmehdipour/realestate-billing/internal/model"
	"github.com/jmehdipour/realestate-billing/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo subscriptions and listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		sqlDB, err := db.OpenMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		ctx := cmd.Context()
		now := time.Now().UTC()
		subs := repository.NewSubscriptionsRepository(sqlDB)
		created, err := seedSubscriptions(ctx, subs, demoSubscriptions(now, cfg.Billing.TrialPlanID))
		if err != nil {
			return err
		}
		if err := seedListings(ctx, sqlDB, demoOwners()); err != nil {
			return err
		}

		log.Info("seed completed",
			zap.Int("owners", len(demoOwners())),
			zap.Int("subscriptions_created", created),
		)
		return nil
	},
}

func demoOwners() []string {
	return []string{
		"6a1f0d4e-2c3b-4f5a-9e8d-000000000001", // paying agency
		"6a1f0d4e-2c3b-4f5a-9e8d-000000000002", // trial past its length
		"6a1f0d4e-2c3b-4f5a-9e8d-000000000003", // trial due for a reminder
		"6a1f0d4e-2c3b-4f5a-9e8d-000000000004", // fresh trial
	}
}

func demoSubscriptions(now time.Time, trialPlan string) []model.Subscription {
	owners := demoOwners()
	periodEnd := now.AddDate(0, 1, 0)
	trial := func(user string, created time.Time) model.Subscription {
		return model.Subscription{
			UserID: user, PlanID: trialPlan, Status: model.SubscriptionActive,
			BillingCycle: model.CycleMonthly, CreatedAt: created,
		}
	}
	return []model.Subscription{
		{
			UserID:               owners[0],
			PlanID:               "agencia-pro",
			Status:               model.SubscriptionActive,
			BillingCycle:         model.CycleMonthly,
			StripeSubscriptionID: strptr("sub_demo_agencia_pro"),
			StripeCustomerID:     strptr("cus_demo_agencia_pro"),
			CurrentPeriodEnd:     &periodEnd,
			CreatedAt:            now.AddDate(0, -3, 0),
		},
		trial(owners[1], now.AddDate(0, 0, -15)),
		trial(owners[2], now.Add(-(12*24+12)*time.Hour)),
		trial(owners[3], now.AddDate(0, 0, -1)),
	}
}

// seedSubscriptions creates a subscription for every demo user that has no
// open one yet, so reruns leave existing rows alone.
func seedSubscriptions(ctx context.Context, repo repository.SubscriptionsRepository, subs []model.Subscription) (int, error) {
	created := 0
	for i := range subs {
		s := subs[i]
		existing, err := repo.FindByUser(ctx, s.UserID)
		if err != nil {
			return created, fmt.Errorf("find subscriptions for %s: %w", s.UserID, err)
		}
		if hasOpen(existing) {
			continue
		}
		if err := repo.Create(ctx, nil, &s); err != nil {
			return created, fmt.Errorf("create subscription for %s: %w", s.UserID, err)
		}
		created++
	}
	return created, nil
}

func hasOpen(subs []model.Subscription) bool {
	for _, s := range subs {
		if !s.Status.Terminal() {
			return true
		}
	}
	return false
}

// seedListings gives every demo owner without properties a few published ones.
func seedListings(ctx context.Context, dbx *sqlx.DB, owners []string) error {
	const q = `
INSERT INTO properties (owner_id, title, status, created_at, updated_at)
SELECT ?, ?, ?, NOW(), NOW()
FROM DUAL
WHERE NOT EXISTS (SELECT 1 FROM properties WHERE owner_id = ? AND title = ?)
`
	titles := []string{"Departamento 2 ambientes", "Casa con jardín", "Local comercial"}
	for _, owner := range owners {
		for _, title := range titles {
			if _, err := dbx.ExecContext(ctx, q, owner, title, model.ListingActive, owner, title); err != nil {
				return fmt.Errorf("insert listing %q for %s: %w", title, owner, err)
			}
		}
	}
	return nil
}

func strptr(s string) *string { return &s }
