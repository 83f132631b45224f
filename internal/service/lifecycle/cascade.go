package lifecycle

import (
	"context"
	"fmt"

	"github.com/jmehdipour/realestate-billing/internal/model"
	"github.com/jmehdipour/realestate-billing/internal/repository"
	"github.com/jmoiron/sqlx"
)

// Cascade ends a subscription and pauses the owner's active listings in one
// transaction, so a crash cannot leave a terminal subscription with listings
// still published.
type Cascade struct {
	tx       repository.TxRunner
	subs     repository.SubscriptionsRepository
	listings repository.ListingsRepository
}

func NewCascade(tx repository.TxRunner, subs repository.SubscriptionsRepository, listings repository.ListingsRepository) *Cascade {
	return &Cascade{tx: tx, subs: subs, listings: listings}
}

// Terminate writes sub with status and pauses every "activa" listing of its owner.
// It returns the number of listings paused. On failure *sub is restored whole,
// including the version and timestamps Update bumped before the rollback.
func (c *Cascade) Terminate(ctx context.Context, sub *model.Subscription, status model.SubscriptionStatus) (int64, error) {
	prev := *sub
	sub.Status = status

	var paused int64
	err := c.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if err := c.subs.Update(ctx, tx, sub); err != nil {
			return err
		}
		ids, err := c.listings.ActiveIDsByOwner(ctx, tx, sub.UserID)
		if err != nil {
			return fmt.Errorf("select active listings: %w", err)
		}
		paused, err = c.listings.BulkSetStatus(ctx, tx, ids, model.ListingPaused)
		if err != nil {
			return fmt.Errorf("pause listings: %w", err)
		}
		return nil
	})
	if err != nil {
		*sub = prev
		return 0, err
	}
	return paused, nil
}
