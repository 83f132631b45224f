package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/realestate-billing/internal/model"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStaleSubscription means the row changed since it was read (optimistic lock).
	ErrStaleSubscription = errors.New("subscription was modified concurrently")
	// ErrDuplicateSubscription means more than one open subscription exists for a user.
	ErrDuplicateSubscription = errors.New("more than one open subscription for user")
)

// SubscriptionsRepository persists the local mirror of billing subscriptions.
type SubscriptionsRepository interface {
	ListByStatus(ctx context.Context, status model.SubscriptionStatus) ([]model.Subscription, error)
	// ListTrials returns active subscriptions on planID created in [after, before].
	// A zero after means no lower bound.
	ListTrials(ctx context.Context, planID string, after, before time.Time) ([]model.Subscription, error)
	// FindByUser returns all rows of a user, newest first.
	FindByUser(ctx context.Context, userID string) ([]model.Subscription, error)
	GetByProviderID(ctx context.Context, providerID string) (*model.Subscription, error)
	Create(ctx context.Context, tx *sqlx.Tx, sub *model.Subscription) error
	// Update writes status, cancel flag and period end if sub.Version is still current,
	// and bumps sub.Version on success.
	Update(ctx context.Context, tx *sqlx.Tx, sub *model.Subscription) error
}

type SubscriptionsRepositoryImpl struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSubscriptionsRepository(db *sqlx.DB) *SubscriptionsRepositoryImpl {
	return &SubscriptionsRepositoryImpl{db: db, now: time.Now}
}

var _ SubscriptionsRepository = (*SubscriptionsRepositoryImpl)(nil)

const subscriptionColumns = `
	id, user_id, plan_id, status, billing_cycle, stripe_subscription_id, stripe_customer_id,
	current_period_start, current_period_end, cancel_at_period_end, featured_used, usage_reset_at,
	version, created_at, updated_at`

func (r *SubscriptionsRepositoryImpl) ListByStatus(ctx context.Context, status model.SubscriptionStatus) ([]model.Subscription, error) {
	var rows []model.Subscription
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+subscriptionColumns+`
		  FROM subscriptions
		 WHERE status = ?
		 ORDER BY id
	`, status.String())
	if err != nil {
		return nil, err
	}
	if err := normalizeStatuses(rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SubscriptionsRepositoryImpl) ListTrials(ctx context.Context, planID string, after, before time.Time) ([]model.Subscription, error) {
	q := `
		SELECT ` + subscriptionColumns + `
		  FROM subscriptions
		 WHERE plan_id = ? AND status = ? AND created_at <= ?`
	args := []any{planID, model.SubscriptionActive.String(), before}
	if !after.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, after)
	}
	q += " ORDER BY id"

	var rows []model.Subscription
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	if err := normalizeStatuses(rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SubscriptionsRepositoryImpl) FindByUser(ctx context.Context, userID string) ([]model.Subscription, error) {
	var rows []model.Subscription
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+subscriptionColumns+`
		  FROM subscriptions
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	if err := normalizeStatuses(rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SubscriptionsRepositoryImpl) GetByProviderID(ctx context.Context, providerID string) (*model.Subscription, error) {
	var s model.Subscription
	err := r.db.GetContext(ctx, &s, `
		SELECT `+subscriptionColumns+`
		  FROM subscriptions
		 WHERE stripe_subscription_id = ?
		 ORDER BY created_at DESC
		 LIMIT 1
	`, providerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := normalizeStatus(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// normalizeStatus rejects a status column outside the closed set.
func normalizeStatus(s *model.Subscription) error {
	st, err := model.ParseSubscriptionStatus(string(s.Status))
	if err != nil {
		return fmt.Errorf("subscription %d: %w", s.ID, err)
	}
	s.Status = st
	return nil
}

func normalizeStatuses(rows []model.Subscription) error {
	for i := range rows {
		if err := normalizeStatus(&rows[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *SubscriptionsRepositoryImpl) Create(ctx context.Context, tx *sqlx.Tx, sub *model.Subscription) error {
	const q = `
		INSERT INTO subscriptions
		    (user_id, plan_id, status, billing_cycle, stripe_subscription_id, stripe_customer_id,
		     current_period_start, current_period_end, cancel_at_period_end, featured_used,
		     usage_reset_at, version, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`
	now := r.now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	sub.Version = 1

	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q,
			sub.UserID, sub.PlanID, sub.Status.String(), string(sub.BillingCycle),
			sub.StripeSubscriptionID, sub.StripeCustomerID,
			sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, sub.FeaturedUsed,
			sub.UsageResetAt, sub.CreatedAt, sub.UpdatedAt,
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		sub.ID = id
		return nil
	})
}

func (r *SubscriptionsRepositoryImpl) Update(ctx context.Context, tx *sqlx.Tx, sub *model.Subscription) error {
	const q = `
		UPDATE subscriptions
		   SET status = ?, cancel_at_period_end = ?, current_period_end = ?,
		       version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?
	`
	now := r.now().UTC()
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q,
			sub.Status.String(), sub.CancelAtPeriodEnd, sub.CurrentPeriodEnd, now,
			sub.ID, sub.Version,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrStaleSubscription
		}
		sub.Version++
		sub.UpdatedAt = now
		return nil
	})
}
