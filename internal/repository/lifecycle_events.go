package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/realestate-billing/internal/model"
	"github.com/jmoiron/sqlx"
)

// LifecycleEventsRepository appends and lists subscription transitions in ClickHouse.
type LifecycleEventsRepository interface {
	Insert(ctx context.Context, events ...model.LifecycleEvent) error
	ListByUser(ctx context.Context, userID, job string, limit, offset int) ([]model.LifecycleEvent, error)
}

type chLifecycleEventsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewLifecycleEventsRepository(ch *sqlx.DB) LifecycleEventsRepository {
	return &chLifecycleEventsRepository{ch: ch}
}

// Insert sends all events as one ClickHouse batch (prepare + exec per row + commit).
func (r *chLifecycleEventsRepository) Insert(ctx context.Context, events ...model.LifecycleEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lifecycle_events
		    (id, subscription_id, user_id, job, from_status, to_status, paused_listings, created_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare lifecycle batch: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.SubscriptionID, e.UserID, e.Job, e.FromStatus, e.ToStatus, e.PausedListings, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("append lifecycle event %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

func (r *chLifecycleEventsRepository) ListByUser(ctx context.Context, userID, job string, limit, offset int) ([]model.LifecycleEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, subscription_id, user_id, job, from_status, to_status, paused_listings, created_at
		FROM lifecycle_events
		WHERE user_id = ?
	`
	args := []any{userID}

	if job != "" {
		q += " AND job = ?"
		args = append(args, job)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.LifecycleEvent
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
